// Package application wires configuration into a ready ingest service.
// Both the long-running server and the one-shot CLI build through it.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/osversion-ingest/internal/catalog"
	"github.com/JonMunkholm/osversion-ingest/internal/config"
	"github.com/JonMunkholm/osversion-ingest/internal/core"
	"github.com/JonMunkholm/osversion-ingest/internal/kusto"
	"github.com/JonMunkholm/osversion-ingest/internal/metrics"
	"github.com/JonMunkholm/osversion-ingest/internal/postgres"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Service   *core.Service
	Collector *catalog.Collector
	Registry  *prometheus.Registry

	closers []func()
}

// Build creates every component described by cfg. Options override the
// ingest toggles (the CLI uses this for --force and plan).
func Build(ctx context.Context, cfg *config.Config, overrides ...func(*core.IngestOptions)) (*App, error) {
	sources, err := cfg.Catalog.Sources()
	if err != nil {
		return nil, err
	}

	collector := catalog.NewCollector(NewFetcher(cfg), sources)

	app := &App{
		Config:    cfg,
		Collector: collector,
		Registry:  prometheus.NewRegistry(),
	}

	store, err := app.buildStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	opts := core.IngestOptions{
		Table:             cfg.Destination.Table,
		Ingest:            cfg.Ingest.Enabled,
		Force:             cfg.Ingest.Force,
		AllowEmptyReplace: cfg.Ingest.AllowEmptyReplace,
	}
	for _, o := range overrides {
		o(&opts)
	}

	runMetrics := metrics.NewCollector()
	app.Registry.MustRegister(
		runMetrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.Service, err = core.NewService(collector, store, opts,
		core.WithHistory(core.NewHistory(cfg.Schedule.HistorySize)),
		core.WithObserver(runMetrics),
	)
	if err != nil {
		app.Close()
		return nil, err
	}

	slog.Info("ingest service ready",
		"backend", cfg.Destination.Backend,
		"table", opts.Table,
		"environments", len(sources),
		"ingest", opts.Ingest,
		"force", opts.Force,
	)
	return app, nil
}

// NewFetcher builds the catalog fetcher with the configured timeout and
// retry policy.
func NewFetcher(cfg *config.Config) *catalog.HTTPFetcher {
	return catalog.NewHTTPFetcher(
		&http.Client{Timeout: cfg.Catalog.Timeout},
		catalog.RetryConfig{
			Attempts: cfg.Catalog.RetryAttempts,
			Delay:    cfg.Catalog.RetryDelay,
			MaxDelay: cfg.Catalog.RetryMaxDelay,
		},
		clock.WallClock,
	)
}

func (a *App) buildStore(ctx context.Context) (core.TableStore, error) {
	cfg := a.Config

	switch cfg.Destination.Backend {
	case config.BackendPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}

		store := postgres.NewStore(pool, cfg.Destination.Table)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		cred, err := kusto.NewCredential(cfg.Kusto.Auth, cfg.Kusto.ClientID)
		if err != nil {
			return nil, fmt.Errorf("kusto credential: %w", err)
		}
		opts := &kusto.ClientOptions{MaxRetries: cfg.Kusto.MaxRetries}
		opts.Transport = &http.Client{Timeout: cfg.Kusto.Timeout}

		client, err := kusto.NewClient(cfg.Kusto.Cluster, cred, opts)
		if err != nil {
			return nil, err
		}
		return kusto.NewStore(client, cfg.Kusto.Database, cfg.Destination.Table), nil
	}
}

// Close releases connections held by the app.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
