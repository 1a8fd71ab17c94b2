package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/osversion-ingest/internal/application"
	"github.com/JonMunkholm/osversion-ingest/internal/catalog"
	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

func newCatalogCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Fetch the catalogs and print the candidate records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCatalog(cmd.OutOrStdout(), flags)
		},
	}
}

func printCatalog(out io.Writer, flags *rootFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	sources, err := cfg.Catalog.Sources()
	if err != nil {
		return err
	}

	collector := catalog.NewCollector(application.NewFetcher(cfg), sources)
	records, err := collector.Collect(ctx)
	if err != nil {
		return err
	}

	return writeRecords(out, core.Dedupe(records))
}

func writeRecords(out io.Writer, records []core.Record) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tOS VERSION\tCOMPONENT ID\tIMAGE ID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Environment, r.OsVersion, r.ComponentID, r.ImageID)
	}
	return tw.Flush()
}
