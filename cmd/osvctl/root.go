package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/osversion-ingest/internal/application"
	"github.com/JonMunkholm/osversion-ingest/internal/config"
	"github.com/JonMunkholm/osversion-ingest/internal/core"
	"github.com/JonMunkholm/osversion-ingest/internal/logging"
)

type rootFlags struct {
	envFile string
	force   bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "osvctl",
		Short:         "Reconcile the OS version image catalog with the destination table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file first")
	cmd.PersistentFlags().BoolVar(&flags.force, "force", false, "Replace the whole table regardless of the diff")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newPlanCmd(flags))
	cmd.AddCommand(newCatalogCmd(flags))

	return cmd
}

// loadConfig reads the env file (if any) and the configuration, and sets up
// logging.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Overload(flags.envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if flags.verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Format)
	return cfg, nil
}

// buildApp loads configuration and wires the service, applying the CLI
// overrides on top of the configured toggles.
func buildApp(ctx context.Context, flags *rootFlags, overrides ...func(*core.IngestOptions)) (*application.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	if flags.force {
		overrides = append(overrides, func(o *core.IngestOptions) { o.Force = true })
	}
	return application.Build(ctx, cfg, overrides...)
}
