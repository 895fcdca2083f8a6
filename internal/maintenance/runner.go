// Package maintenance runs periodic cleanup passes over a graph, records
// them in the journal and persists the surviving contents.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/journal"
	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/metrics"
)

// Recorder stores cleanup runs. *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, run *journal.Run) error
}

// Saver persists graph snapshots. *store.Store implements it.
type Saver interface {
	Save(ctx context.Context, snap *graph.Snapshot) error
	GC() error
}

// Options configures a Runner. Journal and Store are optional.
type Options struct {
	MinImportance       float64
	MinRelationStrength float64
	Interval            time.Duration

	Journal Recorder
	Store   Saver
	Logger  *logger.Logger
	Metrics *metrics.Collector
}

// Runner owns the maintenance loop for one graph.
type Runner struct {
	graph   *graph.Graph
	opts    Options
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewRunner creates a runner for g.
func NewRunner(g *graph.Graph, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Runner{graph: g, opts: opts, log: log.WithPrefix("maintenance"), metrics: m}
}

// RunOnce performs a single pass: cleanup, journal entry, snapshot. The
// cleanup itself always happens; the returned error reports the first
// persistence failure.
func (r *Runner) RunOnce(ctx context.Context) (*journal.Run, error) {
	report := r.graph.CleanupReport(r.opts.MinImportance, r.opts.MinRelationStrength)
	r.metrics.Counter(metrics.MetricCleanupRuns).Inc()

	run := journal.NewRun(r.graph.Now(), r.opts.MinImportance, r.opts.MinRelationStrength,
		report, r.graph.NodeCount(), r.graph.RelationCount())

	var firstErr error
	if r.opts.Journal != nil {
		if err := r.opts.Journal.Record(ctx, run); err != nil {
			firstErr = fmt.Errorf("recording cleanup run: %w", err)
		}
	}

	if r.opts.Store != nil {
		if err := r.opts.Store.Save(ctx, r.graph.Snapshot()); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("saving snapshot: %w", err)
			}
		} else if report.Total() > 0 {
			if err := r.opts.Store.GC(); err != nil {
				r.log.Warn("value log gc failed: %v", err)
			}
		}
	}

	return run, firstErr
}

// Run calls RunOnce every Interval until ctx is cancelled. Failed passes
// are logged and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.opts.Interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %v", r.opts.Interval)
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.log.Info("running cleanup every %v", r.opts.Interval)
	for {
		select {
		case <-ticker.C:
			run, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Error("maintenance pass failed: %v", err)
				continue
			}
			r.log.Debug("pass done: %d evicted, %d nodes left", run.Total, run.NodeCountAfter)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
