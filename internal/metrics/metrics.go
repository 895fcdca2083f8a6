// Package metrics collects in-process counters, gauges and latency
// distributions for the memory graph and exports them as JSON or in the
// Prometheus text format.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// defaultWindow is the number of samples kept per histogram and timer.
const defaultWindow = 1000

// Collector collects and manages metrics.
type Collector struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	timers     map[string]*Timer
	startTime  time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		timers:     make(map[string]*Timer),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds n to the counter. Negative values are ignored.
func (c *Counter) Add(n int64) {
	if n > 0 {
		c.value.Add(n)
	}
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Gauge represents a value that can go up or down.
type Gauge struct {
	bits atomic.Uint64
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.Add(-1) }

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Histogram keeps a sliding window of the most recent observations.
type Histogram struct {
	mu     sync.Mutex
	values []float64
	next   int
	full   bool
	total  int64
}

// NewHistogram creates a histogram that keeps the last window observations.
func NewHistogram(window int) *Histogram {
	if window <= 0 {
		window = defaultWindow
	}
	return &Histogram{values: make([]float64, window)}
}

// Observe records a value in the histogram, overwriting the oldest one once
// the window is full.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.values[h.next] = v
	h.next++
	if h.next == len(h.values) {
		h.next = 0
		h.full = true
	}
	h.total++
	h.mu.Unlock()
}

// sorted returns a sorted copy of the window and the all-time count.
func (h *Histogram) sorted() ([]float64, int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.values)
	}
	out := make([]float64, n)
	copy(out, h.values[:n])
	sort.Float64s(out)
	return out, h.total
}

// Percentile returns the p-th percentile (0-100) of the window.
func (h *Histogram) Percentile(p float64) float64 {
	values, _ := h.sorted()
	if len(values) == 0 {
		return 0
	}
	return values[int(float64(len(values)-1)*p/100)]
}

// Stats returns histogram statistics over the window.
func (h *Histogram) Stats() HistogramStats {
	values, total := h.sorted()
	n := len(values)
	if n == 0 {
		return HistogramStats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return HistogramStats{
		Count: n,
		Total: total,
		Min:   values[0],
		Max:   values[n-1],
		Avg:   sum / float64(n),
		P50:   values[(n-1)*50/100],
		P90:   values[(n-1)*90/100],
		P99:   values[(n-1)*99/100],
	}
}

// HistogramStats contains histogram statistics. Count covers the window,
// Total every observation ever made.
type HistogramStats struct {
	Count int     `json:"count"`
	Total int64   `json:"total"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
}

// Timer measures durations in seconds.
type Timer struct {
	histogram *Histogram
}

// Start starts a new timer context.
func (t *Timer) Start() *TimerContext {
	return &TimerContext{timer: t, start: time.Now()}
}

// Observe records an externally measured duration.
func (t *Timer) Observe(d time.Duration) {
	t.histogram.Observe(d.Seconds())
}

// Stats returns the timer's duration statistics in seconds.
func (t *Timer) Stats() HistogramStats {
	return t.histogram.Stats()
}

// TimerContext represents an active timer.
type TimerContext struct {
	timer *Timer
	start time.Time
}

// Stop stops the timer and records the duration.
func (tc *TimerContext) Stop() time.Duration {
	d := time.Since(tc.start)
	tc.timer.Observe(d)
	return d
}

// Counter returns or creates a counter.
func (c *Collector) Counter(name string) *Counter {
	return getOrCreate(c, func() map[string]*Counter { return c.counters }, name, func() *Counter { return &Counter{} })
}

// Gauge returns or creates a gauge.
func (c *Collector) Gauge(name string) *Gauge {
	return getOrCreate(c, func() map[string]*Gauge { return c.gauges }, name, func() *Gauge { return &Gauge{} })
}

// Histogram returns or creates a histogram.
func (c *Collector) Histogram(name string) *Histogram {
	return getOrCreate(c, func() map[string]*Histogram { return c.histograms }, name, func() *Histogram { return NewHistogram(defaultWindow) })
}

// Timer returns or creates a timer.
func (c *Collector) Timer(name string) *Timer {
	return getOrCreate(c, func() map[string]*Timer { return c.timers }, name, func() *Timer { return &Timer{histogram: NewHistogram(defaultWindow)} })
}

// getOrCreate looks name up in the map returned by table, creating the
// metric on first use. table is only called with c.mu held.
func getOrCreate[T any](c *Collector, table func() map[string]*T, name string, create func() *T) *T {
	c.mu.RLock()
	v, ok := table()[name]
	c.mu.RUnlock()
	if ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	m := table()
	if v, ok := m[name]; ok {
		return v
	}
	v = create()
	m[name] = v
	return v
}

// Uptime returns the duration since the collector was created.
func (c *Collector) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// Snapshot is a point-in-time view of every metric.
type Snapshot struct {
	Uptime     string                    `json:"uptime"`
	Counters   map[string]int64          `json:"counters"`
	Gauges     map[string]float64        `json:"gauges"`
	Histograms map[string]HistogramStats `json:"histograms"`
	Timers     map[string]HistogramStats `json:"timers"`
}

// Snapshot reads every metric.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:     time.Since(c.startTime).Round(time.Millisecond).String(),
		Counters:   make(map[string]int64, len(c.counters)),
		Gauges:     make(map[string]float64, len(c.gauges)),
		Histograms: make(map[string]HistogramStats, len(c.histograms)),
		Timers:     make(map[string]HistogramStats, len(c.timers)),
	}
	for name, counter := range c.counters {
		s.Counters[name] = counter.Value()
	}
	for name, gauge := range c.gauges {
		s.Gauges[name] = gauge.Value()
	}
	for name, hist := range c.histograms {
		s.Histograms[name] = hist.Stats()
	}
	for name, timer := range c.timers {
		s.Timers[name] = timer.Stats()
	}
	return s
}

// Export exports metrics to indented JSON.
func (c *Collector) Export() ([]byte, error) {
	return json.MarshalIndent(c.Snapshot(), "", "  ")
}

// ExportPrometheus exports metrics in the Prometheus text format, sorted by
// metric name.
func (c *Collector) ExportPrometheus() string {
	var sb strings.Builder
	_ = c.WritePrometheus(&sb)
	return sb.String()
}

// WritePrometheus writes metrics in the Prometheus text format to w.
func (c *Collector) WritePrometheus(w io.Writer) error {
	s := c.Snapshot()

	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	for _, name := range sortedKeys(s.Counters) {
		printf("# TYPE %s counter\n%s %d\n", name, name, s.Counters[name])
	}
	for _, name := range sortedKeys(s.Gauges) {
		printf("# TYPE %s gauge\n%s %g\n", name, name, s.Gauges[name])
	}
	summary := func(name string, st HistogramStats) {
		printf("# TYPE %s summary\n", name)
		printf("%s{quantile=\"0.5\"} %g\n", name, st.P50)
		printf("%s{quantile=\"0.9\"} %g\n", name, st.P90)
		printf("%s{quantile=\"0.99\"} %g\n", name, st.P99)
		printf("%s_count %d\n", name, st.Total)
	}
	for _, name := range sortedKeys(s.Histograms) {
		summary(name, s.Histograms[name])
	}
	for _, name := range sortedKeys(s.Timers) {
		summary(name+"_seconds", s.Timers[name])
	}
	return err
}

// Reset drops every metric.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters = make(map[string]*Counter)
	c.gauges = make(map[string]*Gauge)
	c.histograms = make(map[string]*Histogram)
	c.timers = make(map[string]*Timer)
	c.startTime = time.Now()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
