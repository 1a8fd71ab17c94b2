package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

type fakeSource struct {
	records []Record
	err     error

	// block, when set, holds Collect until it is closed.
	block   chan struct{}
	started chan struct{}
	calls   int
	mu      sync.Mutex
}

func (f *fakeSource) Collect(ctx context.Context) ([]Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	persisted []Record
	readErr   error

	// written overrides the reported row count when >= 0.
	written  int64
	applyErr error
	applied  []WritePlan
}

func newFakeStore(persisted ...Record) *fakeStore {
	return &fakeStore{persisted: persisted, written: -1}
}

func (f *fakeStore) Persisted(ctx context.Context) ([]Record, error) {
	return f.persisted, f.readErr
}

func (f *fakeStore) Apply(ctx context.Context, plan WritePlan) (int64, error) {
	f.applied = append(f.applied, plan)
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	if f.written >= 0 {
		return f.written, nil
	}
	if plan.Mode == ModeReplace {
		f.persisted = append([]Record(nil), plan.Rows...)
	} else {
		f.persisted = append(f.persisted, plan.Rows...)
	}
	return int64(len(plan.Rows)), nil
}

type recordingObserver struct {
	runs []RunResult
}

func (o *recordingObserver) ObserveRun(r RunResult) { o.runs = append(o.runs, r) }

func newTestService(t *testing.T, source CandidateSource, store TableStore, opts IngestOptions, extra ...ServiceOption) *Service {
	t.Helper()
	if opts.Table == "" {
		opts.Table = "OsVersionImages"
	}
	svc, err := NewService(source, store, opts, extra...)
	if err != nil {
		t.Fatalf("NewService error = %v", err)
	}
	return svc
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(nil, newFakeStore(), IngestOptions{Table: "T"}); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewService(&fakeSource{}, nil, IngestOptions{Table: "T"}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewService(&fakeSource{}, newFakeStore(), IngestOptions{}); err == nil {
		t.Error("expected error for empty table")
	}
}

func TestService_Run(t *testing.T) {
	tests := []struct {
		name        string
		candidate   []Record
		persisted   []Record
		opts        IngestOptions
		wantOutcome Outcome
		wantMode    WriteMode
		wantApplied int
	}{
		{
			name:        "no changes skips write",
			candidate:   []Record{r1, r2},
			persisted:   []Record{r1, r2},
			opts:        IngestOptions{Ingest: true},
			wantOutcome: OutcomeNoChanges,
			wantMode:    ModeSkip,
		},
		{
			name:        "new rows are appended",
			candidate:   []Record{r1, r2, r3},
			persisted:   []Record{r1},
			opts:        IngestOptions{Ingest: true},
			wantOutcome: OutcomeIngested,
			wantMode:    ModeAppend,
			wantApplied: 1,
		},
		{
			name:        "removed rows trigger replace",
			candidate:   []Record{r1},
			persisted:   []Record{r1, r2},
			opts:        IngestOptions{Ingest: true},
			wantOutcome: OutcomeIngested,
			wantMode:    ModeReplace,
			wantApplied: 1,
		},
		{
			name:        "force replaces unchanged table",
			candidate:   []Record{r1},
			persisted:   []Record{r1},
			opts:        IngestOptions{Ingest: true, Force: true},
			wantOutcome: OutcomeIngested,
			wantMode:    ModeReplace,
			wantApplied: 1,
		},
		{
			name:        "dry run writes nothing",
			candidate:   []Record{r1, r2},
			persisted:   []Record{r1},
			opts:        IngestOptions{Ingest: false},
			wantOutcome: OutcomeDryRun,
			wantMode:    ModeAppend,
		},
		{
			name:        "dry run still skips when unchanged",
			candidate:   []Record{r1},
			persisted:   []Record{r1},
			opts:        IngestOptions{Ingest: false},
			wantOutcome: OutcomeNoChanges,
			wantMode:    ModeSkip,
		},
		{
			name:        "empty replace refused",
			candidate:   nil,
			persisted:   []Record{r1},
			opts:        IngestOptions{Ingest: true},
			wantOutcome: OutcomeRefused,
			wantMode:    ModeSkip,
		},
		{
			name:        "empty replace allowed clears table",
			candidate:   nil,
			persisted:   []Record{r1},
			opts:        IngestOptions{Ingest: true, AllowEmptyReplace: true},
			wantOutcome: OutcomeIngested,
			wantMode:    ModeReplace,
			wantApplied: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(tt.persisted...)
			obs := &recordingObserver{}
			svc := newTestService(t, &fakeSource{records: tt.candidate}, store, tt.opts, WithObserver(obs))

			run, err := svc.Run(context.Background(), TriggerManual)
			if err != nil {
				t.Fatalf("Run error = %v", err)
			}

			if run.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q (error %q)", run.Outcome, tt.wantOutcome, run.Error)
			}
			if run.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", run.Mode, tt.wantMode)
			}
			if len(store.applied) != tt.wantApplied {
				t.Errorf("Apply called %d times, want %d", len(store.applied), tt.wantApplied)
			}
			if run.ID == "" || run.FinishedAt == nil {
				t.Errorf("run not finalised: %+v", run)
			}
			if len(obs.runs) != 1 || obs.runs[0].ID != run.ID {
				t.Errorf("observer saw %d runs", len(obs.runs))
			}
			if stored, ok := svc.History().Get(run.ID); !ok || stored.Outcome != run.Outcome {
				t.Errorf("history entry = %+v, %v", stored, ok)
			}
		})
	}
}

func TestService_RunConverges(t *testing.T) {
	store := newFakeStore(r1, r2)
	source := &fakeSource{records: []Record{r2, r3}}
	svc := newTestService(t, source, store, IngestOptions{Ingest: true})

	first, err := svc.Run(context.Background(), TriggerSchedule)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Outcome != OutcomeIngested || first.Mode != ModeReplace {
		t.Fatalf("first run = %s/%s", first.Outcome, first.Mode)
	}

	second, err := svc.Run(context.Background(), TriggerSchedule)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Outcome != OutcomeNoChanges {
		t.Errorf("second run outcome = %q, want no_changes", second.Outcome)
	}
}

func TestService_DryRunKeepsCommand(t *testing.T) {
	svc := newTestService(t, &fakeSource{records: []Record{r1}}, newFakeStore(), IngestOptions{})

	run, err := svc.Run(context.Background(), TriggerCLI)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !strings.HasPrefix(run.Command, ".set-or-append OsVersionImages <|") {
		t.Errorf("Command = %q", run.Command)
	}
	if run.ExpectedRows != 1 || run.WrittenRows != 0 {
		t.Errorf("ExpectedRows = %d, WrittenRows = %d", run.ExpectedRows, run.WrittenRows)
	}
}

func TestService_RowCountMismatchIsNotAnError(t *testing.T) {
	store := newFakeStore(r1)
	store.written = 1
	svc := newTestService(t, &fakeSource{records: []Record{r1, r2, r3}}, store, IngestOptions{Ingest: true})

	run, err := svc.Run(context.Background(), TriggerSchedule)
	if err != nil {
		t.Fatalf("Run returned error %v, want nil", err)
	}
	if run.Outcome != OutcomeRowCountMismatch {
		t.Errorf("Outcome = %q, want %q", run.Outcome, OutcomeRowCountMismatch)
	}
	if run.ErrorCode != "WRITE002" {
		t.Errorf("ErrorCode = %q, want WRITE002", run.ErrorCode)
	}
	if run.ExpectedRows != 2 || run.WrittenRows != 1 {
		t.Errorf("ExpectedRows = %d, WrittenRows = %d", run.ExpectedRows, run.WrittenRows)
	}
}

func TestService_WriteFailureIsRecorded(t *testing.T) {
	store := newFakeStore()
	store.applyErr = errors.New("kusto: 400 Bad Request")
	svc := newTestService(t, &fakeSource{records: []Record{r1}}, store, IngestOptions{Ingest: true})

	run, err := svc.Run(context.Background(), TriggerSchedule)
	if err != nil {
		t.Fatalf("Run returned error %v, want nil", err)
	}
	if run.Outcome != OutcomeWriteFailed || run.ErrorCode != "WRITE001" {
		t.Errorf("Outcome = %q code %q", run.Outcome, run.ErrorCode)
	}
	if !strings.Contains(run.Error, "400 Bad Request") {
		t.Errorf("Error = %q", run.Error)
	}
}

func TestService_HardFailures(t *testing.T) {
	tests := []struct {
		name     string
		source   *fakeSource
		store    *fakeStore
		wantErr  error
		wantCode string
	}{
		{
			name:     "fetch",
			source:   &fakeSource{err: fmt.Errorf("environment prod: %w: 503", ErrFetch)},
			store:    newFakeStore(),
			wantErr:  ErrFetch,
			wantCode: "FETCH001",
		},
		{
			name:     "malformed catalog",
			source:   &fakeSource{err: fmt.Errorf("environment prod: %w: $.versions", ErrMalformedCatalog)},
			store:    newFakeStore(),
			wantErr:  ErrMalformedCatalog,
			wantCode: "CAT001",
		},
		{
			name:     "table read",
			source:   &fakeSource{records: []Record{r1}},
			store:    &fakeStore{readErr: errors.New("permission denied"), written: -1},
			wantErr:  ErrPersistedRead,
			wantCode: "READ001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.source, tt.store, IngestOptions{Ingest: true})

			run, err := svc.Run(context.Background(), TriggerSchedule)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if run.Outcome != OutcomeFailed || run.ErrorCode != tt.wantCode {
				t.Errorf("Outcome = %q code %q, want failed %s", run.Outcome, run.ErrorCode, tt.wantCode)
			}
			if len(tt.store.applied) != 0 {
				t.Error("store written after hard failure")
			}
		})
	}
}

func TestService_RejectsConcurrentRun(t *testing.T) {
	source := &fakeSource{
		records: []Record{r1},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc := newTestService(t, source, newFakeStore(r1), IngestOptions{Ingest: true})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), TriggerSchedule)
		done <- err
	}()

	<-source.started
	if !svc.Running() {
		t.Error("Running() = false during a run")
	}

	if _, err := svc.Run(context.Background(), TriggerManual); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Run error = %v, want ErrRunInProgress", err)
	}

	close(source.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run error = %v", err)
	}
	if svc.Running() {
		t.Error("Running() = true after the run finished")
	}
}

func TestService_UsesClock(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := testclock.NewClock(start)
	svc := newTestService(t, &fakeSource{}, newFakeStore(), IngestOptions{}, WithClock(clk))

	run, err := svc.Run(context.Background(), TriggerCLI)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !run.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, start)
	}
	if run.Duration() != 0 {
		t.Errorf("Duration = %v, want 0 on a frozen clock", run.Duration())
	}
}
