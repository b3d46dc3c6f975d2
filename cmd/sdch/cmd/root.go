// Package cmd provides the CLI commands for sdch.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartctx/sdch/pkg/version"
)

// NewRootCmd creates the root command for the sdch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sdch",
		Short: "Smart document context handler",
		Long: `sdch ingests documents (txt, md, pdf, docx, csv, tsv, xlsx), counts
their tokens, and classifies each one into a context tier. At query
time it assembles the most relevant content that fits the model's
token budget: small documents are injected verbatim, mid-sized ones
are trimmed, and large ones are served through BM25 or embedding
retrieval over chunks.

Run 'sdch serve' to start the HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("sdch version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
