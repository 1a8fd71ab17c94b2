package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/JonMunkholm/osversion-ingest/internal/logging"
)

// Service runs reconciliation cycles: collect candidates, read the table,
// reconcile, plan, write and verify.
type Service struct {
	source   CandidateSource
	store    TableStore
	opts     IngestOptions
	history  *History
	observer RunObserver
	clock    clock.Clock

	running atomic.Bool
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithHistory sets the run history the service records into.
func WithHistory(h *History) ServiceOption {
	return func(s *Service) { s.history = h }
}

// WithObserver registers an observer for finished runs.
func WithObserver(o RunObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides the wall clock used for run timestamps.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// NewService creates a Service reading candidates from source and writing to
// store.
func NewService(source CandidateSource, store TableStore, opts IngestOptions, options ...ServiceOption) (*Service, error) {
	if source == nil {
		return nil, errors.New("candidate source is required")
	}
	if store == nil {
		return nil, errors.New("table store is required")
	}
	if opts.Table == "" {
		return nil, errors.New("destination table name is required")
	}

	s := &Service{
		source:   source,
		store:    store,
		opts:     opts,
		history:  NewHistory(DefaultHistorySize),
		observer: nopObserver{},
		clock:    clock.WallClock,
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// Options returns the toggles the service was built with.
func (s *Service) Options() IngestOptions {
	return s.opts
}

// History returns the run history.
func (s *Service) History() *History {
	return s.history
}

// Running reports whether a run is executing.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Run executes one reconciliation cycle.
//
// Failures that leave no usable baseline (fetch, catalog shape, table read)
// are returned as errors. Write failures and row-count mismatches are logged
// and recorded in the result but not returned: nothing was persisted, and the
// next run recomputes the same diff. A run started while another is executing
// fails with ErrRunInProgress.
func (s *Service) Run(ctx context.Context, trigger Trigger) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	run := RunResult{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: s.clock.Now(),
		Outcome:   OutcomeRunning,
	}
	ctx = logging.ContextWithRunID(ctx, run.ID)
	s.history.Put(run)

	logging.FromContext(ctx).Info("ingest run started",
		"trigger", trigger,
		"table", s.opts.Table,
		"ingest", s.opts.Ingest,
		"force", s.opts.Force,
	)

	err := s.execute(ctx, &run)
	s.finish(ctx, &run, err)

	return run, err
}

func (s *Service) execute(ctx context.Context, run *RunResult) error {
	logger := logging.FromContext(ctx)

	candidate, err := s.source.Collect(ctx)
	if err != nil {
		return err
	}
	run.CandidateRows = len(candidate)

	persisted, err := s.store.Persisted(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistedRead, err)
	}
	run.PersistedRows = len(persisted)

	diff := Reconcile(candidate, persisted, s.opts.Force)
	run.Added = diff.Added
	run.Stale = diff.Stale

	plan, err := PlanWrite(s.opts.Table, diff, s.opts.AllowEmptyReplace)
	run.Mode = plan.Mode
	if err != nil {
		run.Outcome = OutcomeRefused
		run.setError(err)
		logger.Warn("write refused", "error", err, "persisted", len(persisted))
		return nil
	}

	command := plan.Command()
	run.ExpectedRows = plan.ExpectedRows()
	logger.Info("write planned",
		"mode", plan.Mode,
		"rows", len(plan.Rows),
		"candidate", len(candidate),
		"persisted", len(persisted),
		"added", diff.Added,
		"stale", diff.Stale,
	)
	logger.Debug("query formed", "command", command)

	if plan.Skip() {
		run.Outcome = OutcomeNoChanges
		logger.Info("mappings haven't changed, skipping ingestion")
		return nil
	}

	if !s.opts.Ingest {
		run.Outcome = OutcomeDryRun
		run.Command = command
		logger.Info("ingestion disabled, command not executed", "command", command)
		return nil
	}

	logger.Info("mappings have changed, ingesting", "mode", plan.Mode, "rows", len(plan.Rows))

	written, err := s.store.Apply(ctx, plan)
	if err != nil {
		run.Outcome = OutcomeWriteFailed
		run.setError(fmt.Errorf("%w: %w", ErrWrite, err))
		logger.Error("ingestion failed", "at", s.clock.Now(), "error", err)
		return nil
	}
	run.WrittenRows = written

	if written != run.ExpectedRows {
		run.Outcome = OutcomeRowCountMismatch
		run.setError(fmt.Errorf("%w: expected %d, ingested %d", ErrRowCountMismatch, run.ExpectedRows, written))
		logger.Error("unexpected ingestion size", "expected", run.ExpectedRows, "ingested", written)
		return nil
	}

	run.Outcome = OutcomeIngested
	logger.Info("ingestion successful", "rows", written, "mode", plan.Mode)
	return nil
}

func (s *Service) finish(ctx context.Context, run *RunResult, err error) {
	finished := s.clock.Now()
	run.FinishedAt = &finished

	logger := logging.FromContext(ctx)
	if err != nil {
		run.Outcome = OutcomeFailed
		run.setError(err)
		logger.Error("ingest run failed",
			"error", err,
			"code", run.ErrorCode,
			"duration_ms", run.Duration().Milliseconds(),
		)
	} else {
		logger.Info("ingest run finished",
			"outcome", run.Outcome,
			"written", run.WrittenRows,
			"duration_ms", run.Duration().Milliseconds(),
		)
	}

	s.history.Put(*run)
	s.observer.ObserveRun(*run)
}

func (r *RunResult) setError(err error) {
	r.ErrorCode = MapError(err).Code
	r.Error = err.Error()
}
