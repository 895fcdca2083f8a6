// Package profiler collects CPU and heap profiles and serves pprof over HTTP.
package profiler

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JNZader/memgraph/internal/logger"
)

// Config configures the profiler. Every field is optional.
type Config struct {
	CPUProfile string // file for the CPU profile
	MemProfile string // file for the heap profile, written on Stop
	HTTPAddr   string // address for the pprof endpoints, e.g. "127.0.0.1:6060"
	Logger     *logger.Logger
}

// Profiler handles profile collection.
type Profiler struct {
	cpuFile    *os.File
	memFile    string
	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time
	log        *logger.Logger
}

// New starts the profiles requested by cfg.
func New(cfg Config) (*Profiler, error) {
	p := &Profiler{
		memFile:   cfg.MemProfile,
		startTime: time.Now(),
		log:       cfg.Logger,
	}
	if p.log == nil {
		p.log = logger.Nop()
	}
	p.log = p.log.WithPrefix("profiler")

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		p.cpuFile = f
	}

	if cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			p.stopCPU()
			return nil, fmt.Errorf("failed to listen for pprof: %w", err)
		}
		p.listener = ln
		p.httpServer = &http.Server{
			Handler:      pprofMux(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		}

		go func() {
			if err := p.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.log.Error("pprof server: %v", err)
			}
		}()
		p.log.Info("pprof listening on http://%s/debug/pprof/", ln.Addr())
	}

	return p, nil
}

// pprofMux registers the pprof handlers on a private mux instead of
// http.DefaultServeMux.
func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	return mux
}

// Addr returns the pprof listen address, or "" when HTTP is disabled.
func (p *Profiler) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Stop stops profiling, writes the heap profile and closes the pprof server.
func (p *Profiler) Stop() error {
	var errs []error

	if err := p.stopCPU(); err != nil {
		errs = append(errs, err)
	}

	if p.memFile != "" {
		if err := writeHeapProfile(p.memFile); err != nil {
			errs = append(errs, err)
		}
	}

	if p.httpServer != nil {
		if err := p.httpServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pprof server: %w", err))
		}
	}

	p.log.Debug("stopped after %s, %s", p.Duration().Round(time.Millisecond), Stats())
	return errors.Join(errs...)
}

func (p *Profiler) stopCPU() error {
	if p.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	if err != nil {
		return fmt.Errorf("close CPU profile: %w", err)
	}
	return nil
}

func writeHeapProfile(path string) error {
	// Up-to-date heap statistics.
	runtime.GC()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create memory profile: %w", err)
	}
	defer f.Close()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write memory profile: %w", err)
	}
	return nil
}

// Duration returns the time since the profiler started.
func (p *Profiler) Duration() time.Duration {
	return time.Since(p.startTime)
}

// Stats returns current memory statistics.
func Stats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		HeapAlloc:  m.HeapAlloc,
		HeapInuse:  m.HeapInuse,
		Goroutines: runtime.NumGoroutine(),
	}
}

// MemStats is a subset of runtime.MemStats.
type MemStats struct {
	Alloc      uint64 // currently allocated bytes
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // memory obtained from the OS
	NumGC      uint32
	HeapAlloc  uint64
	HeapInuse  uint64
	Goroutines int
}

func (m MemStats) String() string {
	return fmt.Sprintf(
		"Alloc: %s, HeapAlloc: %s, Sys: %s, NumGC: %d, Goroutines: %d",
		humanize.IBytes(m.Alloc),
		humanize.IBytes(m.HeapAlloc),
		humanize.IBytes(m.Sys),
		m.NumGC,
		m.Goroutines,
	)
}
