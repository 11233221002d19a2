package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/paperdex/internal/domain"
	"github.com/kailas-cloud/paperdex/internal/metrics"
)

// DefaultBatchSize is the number of documents encoded per provider call.
const DefaultBatchSize = 64

// Config controls batching, rate limiting and write retries.
type Config struct {
	BatchSize         int
	RequestsPerSecond float64 // 0 = unlimited
	MaxRetries        int
	Backoff           time.Duration
	MaxBackoff        time.Duration
}

// SourceReport counts what happened to the documents of one source.
type SourceReport struct {
	Seen          int `json:"seen"`
	Embedded      int `json:"embedded"`
	Failed        int `json:"failed"`
	BatchesFailed int `json:"batches_failed"`
}

// Report is the outcome of one Run, per source.
type Report map[domain.Source]SourceReport

// Service embeds every document that lacks an up-to-date embedding.
type Service struct {
	docs    DocumentScanner
	writer  EmbeddingWriter
	enc     BatchEncoder
	cfg     Config
	limiter *rate.Limiter
	wait    func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

// New creates a pipeline service.
func New(docs DocumentScanner, writer EmbeddingWriter, enc BatchEncoder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = cfg.Backoff
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:    docs,
		writer:  writer,
		enc:     enc,
		cfg:     cfg,
		limiter: limiter,
		wait:    sleepCtx,
		logger:  logger,
	}
}

// Run processes the given sources in order. A failure reading one source is
// reported and the remaining sources still run; cancellation stops everything.
func (s *Service) Run(ctx context.Context, sources []domain.Source) (Report, error) {
	report := make(Report, len(sources))
	model := s.enc.ModelVersion()
	var errs []error

	for _, src := range sources {
		start := time.Now()
		sr, err := s.runSource(ctx, src, model)
		report[src] = sr

		s.logger.Info("Embedding pipeline source finished",
			zap.String("source", string(src)),
			zap.String("model", model),
			zap.Int("seen", sr.Seen),
			zap.Int("embedded", sr.Embedded),
			zap.Int("failed", sr.Failed),
			zap.Int("batches_failed", sr.BatchesFailed),
			zap.Duration("duration", time.Since(start)),
		)

		if err != nil {
			if ctx.Err() != nil {
				return report, fmt.Errorf("pipeline %s: %w", src, err)
			}
			s.logger.Error("Embedding pipeline source aborted", zap.String("source", string(src)), zap.Error(err))
			errs = append(errs, fmt.Errorf("pipeline %s: %w", src, err))
		}
	}
	return report, errors.Join(errs...)
}

func (s *Service) runSource(ctx context.Context, src domain.Source, model string) (SourceReport, error) {
	var sr SourceReport
	batch := make([]domain.Document, 0, s.cfg.BatchSize)

	for doc, err := range s.docs.MissingEmbeddings(ctx, src, model) {
		if err != nil {
			return sr, fmt.Errorf("scan documents: %w", err)
		}
		sr.Seen++
		batch = append(batch, doc)
		if len(batch) < s.cfg.BatchSize {
			continue
		}
		if err := s.processBatch(ctx, src, model, batch, &sr); err != nil {
			return sr, err
		}
		batch = batch[:0]
	}

	if len(batch) > 0 {
		if err := s.processBatch(ctx, src, model, batch, &sr); err != nil {
			return sr, err
		}
	}
	return sr, nil
}

// processBatch encodes and stores one batch. Only cancellation is returned as
// an error; everything else is logged and counted.
func (s *Service) processBatch(
	ctx context.Context, src domain.Source, model string, docs []domain.Document, sr *SourceReport,
) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Text()
	}

	vectors, err := s.enc.EncodeBatch(ctx, texts)
	if err == nil {
		var records []domain.EmbeddingRecord
		records, err = domain.PairEmbeddings(docs, vectors, model)
		if err == nil {
			s.store(ctx, src, records, sr)
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sr.BatchesFailed++
	sr.Failed += len(docs)
	metrics.PipelineBatchFailuresTotal.WithLabelValues(string(src)).Inc()
	metrics.PipelineDocumentsTotal.WithLabelValues(string(src), "failed").Add(float64(len(docs)))
	s.logger.Warn("Embedding batch failed",
		zap.String("source", string(src)),
		zap.Int("batch_size", len(docs)),
		zap.String("first_id", docs[0].ID),
		zap.Error(err),
	)
	return nil
}

// store writes the batch in one call. If that fails, every record is written
// on its own with retries, so one bad row costs only itself.
func (s *Service) store(ctx context.Context, src domain.Source, records []domain.EmbeddingRecord, sr *SourceReport) {
	err := s.writer.PutEmbeddings(ctx, records)
	if err == nil {
		sr.Embedded += len(records)
		metrics.PipelineDocumentsTotal.WithLabelValues(string(src), "embedded").Add(float64(len(records)))
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug("Batch embedding write failed, writing records one by one",
		zap.String("source", string(src)),
		zap.Int("batch_size", len(records)),
		zap.Error(err),
	)

	for i := range records {
		if err := s.putWithRetry(ctx, &records[i]); err != nil {
			if ctx.Err() != nil {
				return
			}
			sr.Failed++
			metrics.PipelineDocumentsTotal.WithLabelValues(string(src), "failed").Inc()
			s.logger.Warn("Embedding write failed",
				zap.String("source", string(src)),
				zap.String("id", records[i].ID),
				zap.Error(err),
			)
			continue
		}
		sr.Embedded++
		metrics.PipelineDocumentsTotal.WithLabelValues(string(src), "embedded").Inc()
	}
}

// putWithRetry retries transient store errors with exponential backoff.
func (s *Service) putWithRetry(ctx context.Context, rec *domain.EmbeddingRecord) error {
	backoff := s.cfg.Backoff
	for attempt := 0; ; attempt++ {
		err := s.writer.PutEmbedding(ctx, rec)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) || attempt >= s.cfg.MaxRetries {
			return err
		}

		metrics.PipelineStoreRetriesTotal.Inc()
		s.logger.Debug("Retrying embedding write",
			zap.String("id", rec.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if werr := s.wait(ctx, backoff); werr != nil {
			return werr
		}
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
