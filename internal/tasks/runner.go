// Package tasks runs detached background work that must outlive the request that scheduled it.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/metrics"
)

// Config controls Runner behavior.
type Config struct {
	// Timeout bounds each task. Zero means no limit.
	Timeout time.Duration
}

// Runner spawns background tasks and tracks them for graceful shutdown.
type Runner struct {
	base   context.Context
	cfg    Config
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Runner. Tasks inherit values from base but not its cancellation.
func New(base context.Context, cfg Config, logger *zap.Logger) *Runner {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		base:   context.WithoutCancel(base),
		cfg:    cfg,
		logger: logger.Named("tasks"),
	}
}

// Go runs fn on its own goroutine and returns immediately. Errors and panics
// are logged, never returned to the caller.
func (r *Runner) Go(name string, fn func(context.Context) error) {
	r.wg.Add(1)
	metrics.IncActiveTasks()
	go func() {
		defer r.wg.Done()
		defer metrics.DecActiveTasks()

		ctx := r.base
		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
		}

		start := time.Now()
		err := r.run(ctx, fn)
		if err != nil {
			metrics.ObserveBackgroundTask(name, "failure")
			r.logger.Error("background task failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		metrics.ObserveBackgroundTask(name, "success")
		r.logger.Debug("background task finished", zap.String("task", name), zap.Duration("elapsed", time.Since(start)))
	}()
}

func (r *Runner) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background tasks: %w", ctx.Err())
	}
}
