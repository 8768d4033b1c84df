// Package scheduler runs a job immediately and then on a fixed interval,
// tracking streaks of consecutive failures.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rewired-gh/dailythread/internal/logger"
)

var ErrInvalidInterval = errors.New("interval must be positive")

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Hooks are called after each job run from the scheduler goroutine.
type Hooks struct {
	// OnFailure receives the error and the length of the current failure streak.
	OnFailure func(ctx context.Context, err error, consecutive int)
	// OnRecovery is called on the first success after failures.
	OnRecovery func(ctx context.Context, failures int)
}

// Scheduler runs a Job on a clock.
type Scheduler struct {
	clock       clockwork.Clock
	interval    time.Duration
	job         Job
	hooks       Hooks
	consecutive int
}

// New creates a scheduler. A nil clock uses the real clock.
func New(clock clockwork.Clock, interval time.Duration, job Job, hooks Hooks) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, interval: interval, job: job, hooks: hooks}, nil
}

// Run executes the job now and then on every tick until ctx is cancelled.
// Ticks missed while a job is running are dropped.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Debug("Running initial cycle")
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return
		case <-ticker.Chan():
			logger.Debug("Starting scheduled cycle")
			s.runOnce(ctx)
		}
	}
}

// RunOnce executes the job a single time and reports its result to the hooks.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	err := s.job(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// shutdown interrupted the job; not a failure of the job itself
			return err
		}
		s.consecutive++
		logger.Error("Cycle failed (%d consecutive): %v", s.consecutive, err)
		if s.hooks.OnFailure != nil {
			s.hooks.OnFailure(ctx, err, s.consecutive)
		}
		return err
	}
	if s.consecutive > 0 {
		logger.Info("Cycle recovered after %d consecutive failure(s)", s.consecutive)
		if s.hooks.OnRecovery != nil {
			s.hooks.OnRecovery(ctx, s.consecutive)
		}
	}
	s.consecutive = 0
	return nil
}

// ConsecutiveFailures returns the length of the current failure streak.
func (s *Scheduler) ConsecutiveFailures() int {
	return s.consecutive
}
