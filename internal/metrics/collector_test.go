package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

func finishedRun(outcome core.Outcome, mode core.WriteMode, written int64) core.RunResult {
	start := time.Unix(1700000000, 0)
	end := start.Add(2 * time.Second)
	return core.RunResult{
		ID:            "run",
		StartedAt:     start,
		FinishedAt:    &end,
		CandidateRows: 10,
		PersistedRows: 8,
		Stale:         1,
		Mode:          mode,
		WrittenRows:   written,
		Outcome:       outcome,
	}
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector()))
}

func TestCollector_ObserveRun(t *testing.T) {
	c := NewCollector()

	c.ObserveRun(finishedRun(core.OutcomeIngested, core.ModeReplace, 10))
	c.ObserveRun(finishedRun(core.OutcomeNoChanges, core.ModeSkip, 0))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.runs.WithLabelValues("ingested")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runs.WithLabelValues("no_changes")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.rowsWritten.WithLabelValues("replace")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.candidateRows))
	assert.Equal(t, float64(8), testutil.ToFloat64(c.persistedRows))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.staleRows))
	assert.Equal(t, float64(1700000002), testutil.ToFloat64(c.lastSuccess))
}

func TestCollector_FailedRunKeepsGauges(t *testing.T) {
	c := NewCollector()
	c.ObserveRun(finishedRun(core.OutcomeIngested, core.ModeAppend, 2))

	failed := finishedRun(core.OutcomeFailed, "", 0)
	failed.CandidateRows = 0
	end := failed.FinishedAt.Add(time.Hour)
	failed.FinishedAt = &end
	c.ObserveRun(failed)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.runs.WithLabelValues("failed")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.candidateRows), "failed run must not reset gauges")
	assert.Equal(t, float64(1700000002), testutil.ToFloat64(c.lastSuccess))
}

func TestCollector_MismatchIsNotSuccess(t *testing.T) {
	c := NewCollector()
	c.ObserveRun(finishedRun(core.OutcomeRowCountMismatch, core.ModeAppend, 3))

	assert.Zero(t, testutil.ToFloat64(c.lastSuccess))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.rowsWritten.WithLabelValues("append")))
}

func TestCollector_Exposition(t *testing.T) {
	c := NewCollector()
	c.ObserveRun(finishedRun(core.OutcomeDryRun, core.ModeAppend, 0))

	expected := `
# HELP osversion_ingest_runs_total The number of ingest runs by outcome.
# TYPE osversion_ingest_runs_total counter
osversion_ingest_runs_total{outcome="dry_run"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "osversion_ingest_runs_total"))
}
