// SPDX-License-Identifier: Apache-2.0

package compactor

import (
	"context"
	"log/slog"
	"time"
)

type Runner interface {
	Compact(ctx context.Context) (Result, error)
}

// Scheduler runs compactions on a fixed interval and on demand. Triggers that
// arrive while a run is pending collapse into that run.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
	trigger  chan struct{}
}

// NewScheduler returns a scheduler. An interval <= 0 disables the ticker and
// leaves only triggers.
func NewScheduler(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a compaction without blocking.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run compacts once at start, then on each tick or trigger until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.Info("compaction scheduler started", "interval", s.interval.String())
	s.runOnce(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("compaction scheduler stopped")
			return nil
		case <-tick:
			s.runOnce(ctx, "interval")
		case <-s.trigger:
			s.runOnce(ctx, "trigger")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, cause string) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.runner.Compact(ctx)
	if err != nil {
		// Already logged by the compactor; the next tick retries.
		s.logger.Debug("scheduled compaction failed", "cause", cause, "error", err)
		return
	}
	if res.Skipped {
		s.logger.Debug("scheduled compaction skipped", "cause", cause)
	}
}
