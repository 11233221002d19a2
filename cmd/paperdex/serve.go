package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/paperdex/internal/transport/chi"
	healthuc "github.com/kailas-cloud/paperdex/internal/usecase/health"
	"github.com/kailas-cloud/paperdex/internal/usecase/retrieval"
	"github.com/kailas-cloud/paperdex/internal/version"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP query service",
	Long: `Build the similarity index from all stored embeddings and serve POST /query.

The index is rebuilt on SIGHUP and every retrieval.refresh_interval_sec seconds.
A failed rebuild keeps the current index.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := newApp("serve")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()
	cfg := a.cfg

	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.logger.Info("Starting paperdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("model", cfg.Embedding.Model),
		zap.String("model_version", cfg.Embedding.ModelVersion),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	encoder, embedder := a.buildEncoder(be.kv, cfg.Embedding.QueryInstruction)

	retrievalSvc := retrieval.New(encoder, be.docs, be.docs, retrieval.Config{
		DefaultK:          cfg.Retrieval.DefaultK,
		MaxK:              cfg.Retrieval.MaxK,
		ClampK:            cfg.Retrieval.ClampK,
		LookupConcurrency: cfg.Retrieval.LookupConcurrency,
		LookupTimeout:     cfg.LookupTimeout(),
	}, a.logger)

	n, err := retrievalSvc.Rebuild(ctx)
	if err != nil {
		// An empty or inconsistent store cannot serve queries; run "paperdex embed" first.
		return fmt.Errorf("initial index build: %w", err)
	}
	a.logger.Info("Index ready", zap.Int("vectors", n))

	go refreshLoop(ctx, retrievalSvc, cfg.RefreshInterval(), a.logger)

	healthSvc := healthuc.New(be.ping, &embeddingHealthChecker{embedder: embedder}, retrievalSvc)
	server := chiTransport.NewServer(retrievalSvc, healthSvc, a.logger).
		WithRetryAfter(cfg.HTTP.RetryAfterSec)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(cfg.Auth.APIKeys),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}

// rebuilder swaps in a fresh index snapshot.
type rebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// refreshLoop rebuilds the index on SIGHUP and, when interval > 0, periodically.
func refreshLoop(ctx context.Context, svc rebuilder, interval time.Duration, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		var trigger string
		select {
		case <-ctx.Done():
			return
		case <-hup:
			trigger = "sighup"
		case <-tick:
			trigger = "interval"
		}

		n, err := svc.Rebuild(ctx)
		if err != nil {
			logger.Error("Index rebuild failed, keeping current snapshot",
				zap.String("trigger", trigger), zap.Error(err))
			continue
		}
		logger.Info("Index rebuilt", zap.String("trigger", trigger), zap.Int("vectors", n))
	}
}
