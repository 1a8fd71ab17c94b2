package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/osversion-ingest/internal/application"
	"github.com/JonMunkholm/osversion-ingest/internal/config"
	"github.com/JonMunkholm/osversion-ingest/internal/core"
	"github.com/JonMunkholm/osversion-ingest/internal/logging"
	"github.com/JonMunkholm/osversion-ingest/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"backend", cfg.Destination.Backend,
		"table", cfg.Destination.Table,
		"mode", cfg.IngestMode(),
		"interval", cfg.Schedule.Interval,
		"server_enabled", cfg.Server.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build ingest service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		app.Service.StartScheduler(ctx, core.ScheduleConfig{
			Interval:   cfg.Schedule.Interval,
			RunOnStart: cfg.Schedule.RunOnStart,
			RunTimeout: cfg.Schedule.RunTimeout,
		})
	}()

	if !cfg.Server.Enabled {
		<-schedulerDone
		slog.Info("shut down")
		return
	}

	server := web.NewServer(app.Service, cfg, app.Registry)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("ops server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("ops server failed", "error", err)
		stop()
	}

	<-schedulerDone
	slog.Info("shut down")
}
