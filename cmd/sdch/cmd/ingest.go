package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartctx/sdch/internal/config"
	"github.com/smartctx/sdch/internal/logging"
	"github.com/smartctx/sdch/internal/tier"
)

func newIngestCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents from the command line",
		Long: `Ingest one or more files into the document store without going
through the HTTP API. Each file is extracted, token-counted, and
classified into its context tier; retrieval-tier documents are
chunked for later ranking.

Uses the same DATABASE_URL and UPLOAD_DIR as the server, so documents
ingested here are immediately queryable once the server is running.`,
		Example: `  # Ingest a single file
  sdch ingest report.pdf

  # Ingest a batch
  sdch ingest docs/*.md

  # Machine-readable output
  sdch ingest --json report.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output document metadata as JSON")

	return cmd
}

func runIngest(cmd *cobra.Command, paths []string, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   logging.Format(cfg.Logging.Format),
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	var failed int
	for _, path := range paths {
		doc, err := app.ingest.IngestFile(ctx, path)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(doc); err != nil {
				return err
			}
			continue
		}
		t := tier.Tier(doc.Tier)
		cmd.Printf("%s  %s  %d tokens  tier %d (%s)\n",
			doc.ID, doc.Filename, doc.TokenCount, doc.Tier, t.Label())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}
