package core

// scheduler.go runs ingest cycles on a fixed interval.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// failed cycle is logged and does not stop the scheduler; the next tick runs
// the same reconciliation again.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ScheduleConfig holds configuration for the ingest scheduler.
type ScheduleConfig struct {
	Interval   time.Duration // How often to run (default: 1h)
	RunOnStart bool          // Run once immediately before the first tick
	RunTimeout time.Duration // Upper bound for a single run (default: 5m)
}

const (
	defaultScheduleInterval = time.Hour
	defaultRunTimeout       = 5 * time.Minute
)

// StartScheduler runs the service every Interval until ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context, cfg ScheduleConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultScheduleInterval
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}

	slog.Info("ingest scheduler started",
		"interval", cfg.Interval,
		"run_on_start", cfg.RunOnStart,
		"run_timeout", cfg.RunTimeout,
	)

	if cfg.RunOnStart {
		s.runScheduled(ctx, TriggerStartup, cfg.RunTimeout)
	}

	ticker := s.clock.NewTimer(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ingest scheduler stopped")
			return
		case <-ticker.Chan():
			s.runScheduled(ctx, TriggerSchedule, cfg.RunTimeout)
			ticker.Reset(cfg.Interval)
		}
	}
}

// runScheduled performs one bounded run and logs a skipped tick when a
// manual run is still executing.
func (s *Service) runScheduled(ctx context.Context, trigger Trigger, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.Run(runCtx, trigger); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			slog.Warn("scheduled run skipped, previous run still active")
			return
		}
		// Run already logged the failure with its run ID.
		slog.Debug("scheduled run returned error", "error", err)
	}
}
