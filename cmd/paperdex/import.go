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

	"github.com/kailas-cloud/paperdex/internal/domain"
	"github.com/kailas-cloud/paperdex/internal/usecase/ingest"
)

var (
	importInput  string
	importSource string
)

func init() {
	importCmd.Flags().StringVar(&importInput, "input", "", "JSONL file to import, - for stdin")
	importCmd.Flags().StringVar(&importSource, "source", "", "Source for lines without a source field (openalex, semantic)")
	_ = importCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load normalized documents from JSON Lines",
	Long: `Load normalized documents into the document store, one JSON object per line:

  {"id": "W2741809807", "source": "openalex", "title": "...", "abstract": "..."}
  {"paperId": "649def34", "source": "semantic", "title": "...", "authors": "..."}

Existing documents with the same source and id are overwritten.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, _ []string) error {
	var fallback domain.Source
	if importSource != "" {
		src, err := domain.ParseSource(importSource)
		if err != nil {
			return fmt.Errorf("--source: %w", err)
		}
		fallback = src
	}

	var in io.Reader = cmd.InOrStdin()
	if importInput != "-" {
		f, err := os.Open(importInput)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	a, err := newApp("import")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	report, err := ingest.New(be.docs, a.logger).Import(ctx, in, fallback)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return fmt.Errorf("write report: %w", encErr)
	}
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}
