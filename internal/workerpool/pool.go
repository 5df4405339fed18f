// Package workerpool provides the bounded-concurrency task runner used by
// the calibrator and walk-forward simulator for embarrassingly parallel
// evaluation of independent trials/sample dates. Workers share no
// mutable state; each task closure holds only immutable references.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls pool sizing.
type Config struct {
	NumWorkers int
	QueueSize  int
}

// DefaultConfig bounds concurrency by CPU count.
func DefaultConfig() Config {
	return Config{NumWorkers: runtime.NumCPU(), QueueSize: 256}
}

// Task is one unit of independent work; RunAll returns its result or error
// at the task's own index, whatever order tasks complete in.
type Task func(ctx context.Context) (any, error)

// Result pairs a task's index (for result re-assembly by the caller) with
// its outcome.
type Result struct {
	Index int
	Value any
	Err   error
}

// Metrics tracks pool-wide counters with atomic accessors.
type Metrics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Panicked  int64
}

// Pool runs tasks with bounded concurrency via a semaphore channel and a
// WaitGroup, recovering panics per task so one bad trial cannot take down
// the run.
type Pool struct {
	cfg     Config
	logger  *zap.Logger
	metrics Metrics
}

func New(logger *zap.Logger, cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.NumWorkers * 4
	}
	return &Pool{cfg: cfg, logger: logger.Named("workerpool")}
}

// RunAll executes every task with concurrency bounded by cfg.NumWorkers and
// returns results indexed identically to tasks. A task's panic is
// recovered and reported as an error for that index only.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	sem := make(chan struct{}, p.cfg.NumWorkers)
	var wg sync.WaitGroup

	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		sem <- struct{}{}
		atomic.AddInt64(&p.metrics.Submitted, 1)

		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&p.metrics.Panicked, 1)
					results[i] = Result{Index: i, Err: panicToError(r)}
				}
			}()

			if ctx.Err() != nil {
				results[i] = Result{Index: i, Err: ctx.Err()}
				return
			}

			val, err := task(ctx)
			if err != nil {
				atomic.AddInt64(&p.metrics.Failed, 1)
			} else {
				atomic.AddInt64(&p.metrics.Completed, 1)
			}
			results[i] = Result{Index: i, Value: val, Err: err}
		}()
	}

	wg.Wait()
	return results
}

// Snapshot returns a copy of the pool's cumulative metrics.
func (p *Pool) Snapshot() Metrics {
	return Metrics{
		Submitted: atomic.LoadInt64(&p.metrics.Submitted),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panicked:  atomic.LoadInt64(&p.metrics.Panicked),
	}
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errPanic{r}
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return "panic recovered in task" }
