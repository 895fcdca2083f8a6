// Package worker provides a bounded worker pool used to fan out memory
// ingestion work.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Submit once the pool no longer accepts tasks.
var ErrPoolClosed = errors.New("worker pool closed")

// Task represents a task to be executed by a worker.
type Task interface {
	Execute(ctx context.Context) error
	ID() string
}

// Result contains the result of a task execution.
type Result struct {
	TaskID   string
	Error    error
	Duration time.Duration
}

// Pool manages a fixed set of workers draining a bounded task queue.
type Pool struct {
	workers int
	tasks   chan Task
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	// mu guards closed and the close of tasks against concurrent Submit.
	mu     sync.RWMutex
	closed bool

	started   atomic.Bool
	processed atomic.Int64
	errors    atomic.Int64
}

// Config configures the worker pool.
type Config struct {
	Workers   int // Number of workers (default: GOMAXPROCS)
	QueueSize int // Size of task queue (default: workers * 2)
}

// NewPool creates a new worker pool.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan Task, cfg.QueueSize),
		results: make(chan Result, cfg.QueueSize),
	}
}

// Start launches the workers. Cancelling ctx aborts running tasks and makes
// the workers exit. Calling Start twice, or after Close, is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.started.Load() {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started.Store(true)
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case task, ok := <-p.tasks:
			if !ok {
				return
			}

			start := time.Now()
			err := p.execute(task)

			p.processed.Add(1)
			if err != nil {
				p.errors.Add(1)
			}

			select {
			case p.results <- Result{TaskID: task.ID(), Error: err, Duration: time.Since(start)}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// execute runs task, converting a panic into an error so one bad task
// cannot take down the pool.
func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID(), r)
		}
	}()
	return task.Execute(p.ctx)
}

// Submit queues a task, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if !p.started.Load() {
		return fmt.Errorf("pool not started")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Results returns the results channel. It is closed once the pool has shut
// down and every worker has exited.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting tasks, waits for queued tasks to finish and closes
// the results channel. Results must be drained concurrently.
func (p *Pool) Close() {
	if !p.markClosed() {
		return
	}
	p.wg.Wait()
	p.cancel()
	close(p.results)
}

// Stop cancels running tasks, discards queued ones and waits for the
// workers to exit.
func (p *Pool) Stop() {
	// cancel is written before started is set, so it is safe to read here
	// without mu while a blocked Submit holds it.
	if p.started.Load() {
		p.cancel()
	}

	if !p.markClosed() {
		return
	}
	p.wg.Wait()
	close(p.results)
}

// markClosed closes the task queue exactly once and reports whether this
// call did so.
func (p *Pool) markClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	close(p.tasks)
	if p.cancel == nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}
	return true
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Processed: p.processed.Load(),
		Errors:    p.errors.Load(),
		Pending:   len(p.tasks),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int
	Processed int64
	Errors    int64
	Pending   int
}

// String returns a string representation of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("workers=%d processed=%d errors=%d pending=%d",
		s.Workers, s.Processed, s.Errors, s.Pending)
}

// Run executes tasks on a temporary pool and returns their results in
// completion order. It returns early with ctx's error if ctx is cancelled
// before every task was queued.
func Run(ctx context.Context, cfg Config, tasks []Task) ([]Result, error) {
	pool := NewPool(cfg)
	pool.Start(ctx)

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()

	var submitErr error
	for _, task := range tasks {
		if err := pool.Submit(ctx, task); err != nil {
			submitErr = err
			break
		}
	}

	if submitErr != nil {
		pool.Stop()
	} else {
		pool.Close()
	}
	<-done

	return results, submitErr
}
