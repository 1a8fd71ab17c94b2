package core

import (
	"context"
	"time"
)

// CandidateSource produces the candidate records for one run.
// Implemented by catalog.Collector.
type CandidateSource interface {
	Collect(ctx context.Context) ([]Record, error)
}

// TableStore is the destination table.
type TableStore interface {
	// Persisted returns every row currently stored in the table.
	Persisted(ctx context.Context) ([]Record, error)

	// Apply executes the write plan and returns the affected-row count the
	// destination reports.
	Apply(ctx context.Context, plan WritePlan) (int64, error)
}

// IngestOptions are the deploy-time toggles of a run.
type IngestOptions struct {
	// Table is the destination table name.
	Table string

	// Ingest executes write plans when true. When false the planned
	// command is only logged (dry run).
	Ingest bool

	// Force always rewrites the full candidate set with a replace.
	Force bool

	// AllowEmptyReplace permits a replace with zero rows, i.e. clearing
	// the table when the catalogs come back empty.
	AllowEmptyReplace bool
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerStartup  Trigger = "startup"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeRunning          Outcome = "running"
	OutcomeNoChanges        Outcome = "no_changes"
	OutcomeIngested         Outcome = "ingested"
	OutcomeDryRun           Outcome = "dry_run"
	OutcomeRefused          Outcome = "refused"
	OutcomeWriteFailed      Outcome = "write_failed"
	OutcomeRowCountMismatch Outcome = "row_count_mismatch"
	OutcomeFailed           Outcome = "failed"
)

// RunResult records one reconciliation cycle.
type RunResult struct {
	ID         string     `json:"id"`
	Trigger    Trigger    `json:"trigger"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	CandidateRows int       `json:"candidateRows"`
	PersistedRows int       `json:"persistedRows"`
	Added         int       `json:"added"`
	Stale         int       `json:"stale"`
	Mode          WriteMode `json:"mode,omitempty"`
	ExpectedRows  int64     `json:"expectedRows"`
	WrittenRows   int64     `json:"writtenRows"`

	// Command is the rendered write command, kept for dry runs.
	Command string `json:"command,omitempty"`

	Outcome   Outcome `json:"outcome"`
	ErrorCode string  `json:"errorCode,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r RunResult) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunObserver receives every finished run. Implemented by metrics.Collector.
type RunObserver interface {
	ObserveRun(RunResult)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(RunResult) {}
