package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/domain"
	"github.com/kailas-cloud/paperdex/internal/usecase/pipeline"
)

var embedSources []string

func init() {
	embedCmd.Flags().StringSliceVar(&embedSources, "sources", nil,
		"Sources to embed (default: pipeline.sources from config)")
	rootCmd.AddCommand(embedCmd)
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed documents that lack an up-to-date embedding",
	Long: `Scan the document store for documents without an embedding for the configured
model version, encode them in batches and store the vectors.

Runs are idempotent: documents that fail are picked up by the next run.`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

// embedResult is printed to stdout when the run finishes.
type embedResult struct {
	Model    string                           `json:"model"`
	Duration string                           `json:"duration"`
	Sources  map[string]pipeline.SourceReport `json:"sources"`
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	a, err := newApp("embed")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()
	cfg := a.cfg

	sources := cfg.Sources()
	if len(embedSources) > 0 {
		sources = sources[:0]
		for _, raw := range embedSources {
			src, err := domain.ParseSource(raw)
			if err != nil {
				return fmt.Errorf("--sources: %w", err)
			}
			sources = append(sources, src)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	// Document embeddings are never cached: each text is encoded once per model version.
	encoder, _ := a.buildEncoder(nil, cfg.Embedding.DocumentInstruction)

	svc := pipeline.New(be.docs, be.docs, encoder, pipeline.Config{
		BatchSize:         cfg.Pipeline.BatchSize,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
		MaxRetries:        cfg.Pipeline.MaxRetries,
		Backoff:           time.Duration(cfg.Pipeline.BackoffMs) * time.Millisecond,
		MaxBackoff:        time.Duration(cfg.Pipeline.MaxBackoffMs) * time.Millisecond,
	}, a.logger)

	a.logger.Info("Starting embedding pipeline",
		zap.String("model_version", encoder.ModelVersion()),
		zap.Any("sources", sources),
		zap.Int("batch_size", cfg.Pipeline.BatchSize),
	)

	start := time.Now()
	report, runErr := svc.Run(ctx, sources)

	out := embedResult{
		Model:    encoder.ModelVersion(),
		Duration: time.Since(start).Round(time.Millisecond).String(),
		Sources:  make(map[string]pipeline.SourceReport, len(report)),
	}
	for src, sr := range report {
		out.Sources[string(src)] = sr
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("embedding pipeline: %w", runErr)
	}
	return nil
}
