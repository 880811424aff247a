package pipeline

import (
	"context"
	"fmt"
	"time"

	"eve-arbitrage/internal/logger"
)

// Scheduler runs the pipeline on a fixed interval and on demand. A failed run
// leaves the last published batch in place until the next success.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	trigger  chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler. interval <= 0 disables periodic runs;
// Trigger still works.
func NewScheduler(r *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. With a positive interval the first run starts
// immediately. The loop exits when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		var tick <-chan time.Time
		if s.interval > 0 {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
			s.runOnce(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				s.runOnce(ctx)
			case <-s.trigger:
				s.runOnce(ctx)
			}
		}
	}()
	if s.interval > 0 {
		logger.Info("RUN", fmt.Sprintf("Scheduler started, every %v", s.interval))
	}
}

// Trigger queues a run. It returns false when a run is already running or queued.
func (s *Scheduler) Trigger() bool {
	if s.runner.Running() {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// runOnce ignores the error; the runner logs it and keeps it in LastRun.
func (s *Scheduler) runOnce(ctx context.Context) {
	_, _ = s.runner.Run(ctx)
}
