package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation cycle",
		Long: "Run one reconciliation cycle and print the run result as JSON.\n" +
			"Exits non-zero when the catalog or the table could not be read.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd.OutOrStdout(), flags)
		},
	}
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Compute the write command without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return planCycle(cmd.OutOrStdout(), flags)
		},
	}
}

func runCycle(out io.Writer, flags *rootFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, flags)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, app.Config.Schedule.RunTimeout)
	defer cancel()

	run, runErr := app.Service.Run(ctx, core.TriggerCLI)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return err
	}
	return runErr
}

func planCycle(out io.Writer, flags *rootFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, flags, func(o *core.IngestOptions) { o.Ingest = false })
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, app.Config.Schedule.RunTimeout)
	defer cancel()

	run, err := app.Service.Run(ctx, core.TriggerCLI)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "# mode=%s rows=%d added=%d stale=%d outcome=%s\n",
		run.Mode, run.ExpectedRows, run.Added, run.Stale, run.Outcome)
	if run.Error != "" {
		fmt.Fprintf(out, "# %s: %s\n", run.ErrorCode, run.Error)
	}
	if run.Command != "" {
		fmt.Fprintln(out, run.Command)
	}
	return nil
}
