// Package metrics exposes ingest run metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

const metricsNamespace = "osversion_ingest"

// Collector is a prometheus.Collector fed by finished ingest runs.
// It satisfies core.RunObserver.
type Collector struct {
	runs          *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
	runDuration   prometheus.Histogram
	candidateRows prometheus.Gauge
	persistedRows prometheus.Gauge
	staleRows     prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "The number of ingest runs by outcome.",
			}, []string{"outcome"},
		),
		rowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_written_total",
				Help:      "The number of rows the destination reported as written, by write mode.",
			}, []string{"mode"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "The time taken by an ingest run.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
			},
		),
		candidateRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "candidate_rows",
				Help:      "The number of catalog records collected by the last run.",
			},
		),
		persistedRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "persisted_rows",
				Help:      "The number of table rows read by the last run.",
			},
		),
		staleRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "stale_rows",
				Help:      "The number of table rows absent from the catalog in the last run.",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that left the table in sync.",
			},
		),
	}
}

// ObserveRun is part of the core.RunObserver interface.
func (c *Collector) ObserveRun(run core.RunResult) {
	c.runs.WithLabelValues(string(run.Outcome)).Inc()
	c.runDuration.Observe(run.Duration().Seconds())

	if run.Outcome == core.OutcomeFailed {
		return
	}
	c.candidateRows.Set(float64(run.CandidateRows))
	c.persistedRows.Set(float64(run.PersistedRows))
	c.staleRows.Set(float64(run.Stale))

	if run.WrittenRows > 0 && run.Mode != "" {
		c.rowsWritten.WithLabelValues(string(run.Mode)).Add(float64(run.WrittenRows))
	}
	if (run.Outcome == core.OutcomeIngested || run.Outcome == core.OutcomeNoChanges) && run.FinishedAt != nil {
		c.lastSuccess.Set(float64(run.FinishedAt.Unix()))
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.rowsWritten.Describe(ch)
	c.runDuration.Describe(ch)
	c.candidateRows.Describe(ch)
	c.persistedRows.Describe(ch)
	c.staleRows.Describe(ch)
	c.lastSuccess.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.rowsWritten.Collect(ch)
	c.runDuration.Collect(ch)
	c.candidateRows.Collect(ch)
	c.persistedRows.Collect(ch)
	c.staleRows.Collect(ch)
	c.lastSuccess.Collect(ch)
}
