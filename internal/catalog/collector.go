package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
	"github.com/JonMunkholm/osversion-ingest/internal/logging"
)

// EnvPlaceholder is replaced by the environment name in URL templates.
const EnvPlaceholder = "{env}"

// Source is the catalog location of one environment.
type Source struct {
	Environment string `yaml:"environment" validate:"required"`
	URL         string `yaml:"url" validate:"required,http_url"`
}

// SourcesFromTemplate builds one source per environment by substituting
// EnvPlaceholder in template.
func SourcesFromTemplate(template string, environments []string) []Source {
	sources := make([]Source, len(environments))
	for i, env := range environments {
		sources[i] = Source{
			Environment: env,
			URL:         strings.ReplaceAll(template, EnvPlaceholder, env),
		}
	}
	return sources
}

// Collector gathers candidate records from every configured environment.
// It satisfies core.CandidateSource.
type Collector struct {
	fetcher Fetcher
	sources []Source
}

// NewCollector creates a collector over sources, fetched in order.
func NewCollector(fetcher Fetcher, sources []Source) *Collector {
	return &Collector{fetcher: fetcher, sources: sources}
}

// Sources returns the configured sources.
func (c *Collector) Sources() []Source {
	return c.sources
}

// Collect fetches each environment's catalog, extracts its records tagged
// with the environment, and concatenates them in source order. The first
// failing environment fails the whole collection.
func (c *Collector) Collect(ctx context.Context) ([]core.Record, error) {
	var records []core.Record
	for _, src := range c.sources {
		start := time.Now()
		logger := logging.WithFields(ctx, "environment", src.Environment)
		logger.Debug("fetching catalog", "url", src.URL)

		doc, err := c.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", src.Environment, err)
		}

		envRecords, err := ExtractRecords(doc, src.Environment)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", src.Environment, err)
		}

		logger.Info("catalog collected",
			"records", len(envRecords),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		records = append(records, envRecords...)
	}

	return records, nil
}
