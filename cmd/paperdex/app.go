package main

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/config"
	"github.com/kailas-cloud/paperdex/internal/db"
	dbRedis "github.com/kailas-cloud/paperdex/internal/db/redis"
	"github.com/kailas-cloud/paperdex/internal/domain"
	logpkg "github.com/kailas-cloud/paperdex/internal/logger"
	"github.com/kailas-cloud/paperdex/internal/metrics"
	documentrepo "github.com/kailas-cloud/paperdex/internal/repository/document"
	"github.com/kailas-cloud/paperdex/internal/repository/embcache"
	"github.com/kailas-cloud/paperdex/internal/repository/papersql"
	openaiEmb "github.com/kailas-cloud/paperdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/paperdex/internal/usecase/embedding"
)

// documentStore is everything the subcommands need from a backend.
type documentStore interface {
	PutDocuments(ctx context.Context, docs []domain.Document) error
	GetDocument(ctx context.Context, key domain.Key) (domain.Document, error)
	PutEmbedding(ctx context.Context, rec *domain.EmbeddingRecord) error
	PutEmbeddings(ctx context.Context, recs []domain.EmbeddingRecord) error
	MissingEmbeddings(ctx context.Context, source domain.Source, model string) iter.Seq2[domain.Document, error]
	ScanEmbeddings(ctx context.Context) iter.Seq2[domain.EmbeddingRecord, error]
}

// kvStore backs the query embedding cache.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// backend is an opened document store.
type backend struct {
	docs  documentStore
	kv    kvStore
	ping  db.Pinger
	close func()
}

// app holds what every subcommand starts with.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
}

func newApp(command string) (*app, error) {
	env := currentEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, command)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterServiceMetrics()

	return &app{env: env, cfg: cfg, logger: logger}, nil
}

// openBackend connects to the configured driver and waits until it answers.
func (a *app) openBackend(ctx context.Context) (*backend, error) {
	dbCfg := a.cfg.Database
	dim := a.cfg.Embedding.Dimensions
	readiness := time.Duration(dbCfg.ReadinessTimeout) * time.Second

	switch dbCfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:           dbCfg.Addrs,
			Username:        dbCfg.Username,
			Password:        dbCfg.Password,
			DB:              dbCfg.DB,
			ReadConsistency: db.ReadConsistency(dbCfg.ReadConsistency),
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", dbCfg.Driver, err)
		}
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		repo := documentrepo.New(store, dim).
			WithKeyPrefix(dbCfg.KeyPrefix).
			WithScanCount(int64(dbCfg.ScanPageSize)).
			WithLogger(a.logger)
		a.logger.Info("Connected to database",
			zap.String("driver", dbCfg.Driver),
			zap.Strings("addrs", dbCfg.Addrs),
			zap.String("read_consistency", dbCfg.ReadConsistency),
		)
		return &backend{docs: repo, kv: store, ping: store, close: store.Close}, nil

	case config.DriverSQLite:
		store, err := papersql.Open(dbCfg.Path, dim)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		store.WithLogger(a.logger).WithPageSize(dbCfg.ScanPageSize)
		a.logger.Info("Opened database", zap.String("driver", dbCfg.Driver), zap.String("path", dbCfg.Path))
		return &backend{docs: store, kv: store, ping: store, close: store.Close}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", dbCfg.Driver)
	}
}

// buildEncoder assembles the decorator chain:
// OpenAI -> Cached (when kv is set) -> Instrumented -> Instruction -> Encoder.
// The returned embedder is the health-checkable part of the chain.
func (a *app) buildEncoder(kv kvStore, instruction string) (*embeddinguc.Encoder, domain.Embedder) {
	emb := a.cfg.Embedding

	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:         emb.APIKey,
		BaseURL:        emb.BaseURL,
		Model:          emb.Model,
		Dimensions:     emb.Dimensions,
		SendDimensions: emb.SendDimensions,
		Provider:       emb.Provider,
		Logger:         a.logger,
	})

	if kv != nil && !emb.DisableCache {
		embedder = embcache.New(embedder, kv, emb.ModelVersion, metrics.EmbeddingCacheTotal, a.logger).
			WithKeyPrefix(a.cfg.EmbeddingCachePrefix())
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(embedder, emb.Provider, emb.Model, a.logger).
		WithMaxBatchSize(emb.MaxBatchSize)
	embedder = instrumented

	if instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embeddinguc.NewEncoder(embedder, a.cfg.VectorConfig(), a.cfg.EmbeddingTimeout(), a.logger), instrumented
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
