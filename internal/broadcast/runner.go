package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner moves a submitted job off the request path.
type Runner interface {
	Submit(ctx context.Context, job Job) error
}

// ExecuteFunc runs a job to completion.
type ExecuteFunc func(ctx context.Context, job Job) (Result, error)

// DropFunc settles a job that was accepted but never started.
type DropFunc func(ctx context.Context, job Job)

// LocalRunner executes jobs in goroutines of this process, at most workers at a time.
// Jobs run under the runner's base context, not the submitting request's.
type LocalRunner struct {
	base    context.Context
	sem     chan struct{}
	timeout time.Duration
	log     *slog.Logger

	mu   sync.RWMutex
	exec ExecuteFunc
	drop DropFunc
	wg   sync.WaitGroup
}

func NewLocalRunner(base context.Context, workers int, timeout time.Duration, log *slog.Logger) *LocalRunner {
	if log == nil {
		log = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	return &LocalRunner{
		base:    base,
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		log:     log.With(slog.String("component", "broadcast_runner")),
	}
}

// Handle registers the function that executes submitted jobs.
func (r *LocalRunner) Handle(exec ExecuteFunc) {
	r.mu.Lock()
	r.exec = exec
	r.mu.Unlock()
}

// OnDrop registers the function called for jobs abandoned because the runner shut down.
func (r *LocalRunner) OnDrop(drop DropFunc) {
	r.mu.Lock()
	r.drop = drop
	r.mu.Unlock()
}

func (r *LocalRunner) Submit(_ context.Context, job Job) error {
	r.mu.RLock()
	exec, drop := r.exec, r.drop
	r.mu.RUnlock()

	if exec == nil {
		return errNoHandler
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
		case <-r.base.Done():
			r.log.Warn("broadcast dropped on shutdown", slog.String("broadcast_id", job.ID))
			if drop != nil {
				drop(context.WithoutCancel(r.base), job)
			}
			return
		}
		defer func() { <-r.sem }()

		ctx := r.base
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		if _, err := exec(ctx, job); err != nil {
			r.log.Warn("broadcast ended with error", slog.String("broadcast_id", job.ID), slog.Any("error", err))
		}
	}()

	return nil
}

// Wait blocks until every submitted job has returned.
func (r *LocalRunner) Wait() {
	r.wg.Wait()
}
