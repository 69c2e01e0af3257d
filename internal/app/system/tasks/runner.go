// Package tasks runs periodic background jobs for the life of the process.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Job is a named function run every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // per run; defaults to Interval
	Run      func(ctx context.Context) error
}

// Runner owns the goroutines of a set of jobs.
type Runner struct {
	log   *zap.Logger
	clock clockwork.Clock

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. A nil clock uses the real clock.
func NewRunner(logger *zap.Logger, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{log: logger, clock: clock}
}

// Start launches every job. Each runs once immediately, then on its interval,
// until Stop is called.
func (r *Runner) Start(jobs ...Job) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	for _, j := range jobs {
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
	r.log.Info("background tasks started", zap.Int("jobs", len(jobs)))
}

// Stop cancels all jobs and waits for in-flight runs to return.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.log.Info("background tasks stopped")
}

func (r *Runner) loop(ctx context.Context, j Job) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(j.Interval)
	defer ticker.Stop()

	r.runOnce(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.runOnce(ctx, j)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := j.Run(runCtx); err != nil && ctx.Err() == nil {
		r.log.Warn("background task failed", zap.String("task", j.Name), zap.Error(err))
	}
}
