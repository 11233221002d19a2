package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/paperdex/internal/domain"
	"github.com/kailas-cloud/paperdex/internal/index"
	"github.com/kailas-cloud/paperdex/internal/logger"
	"github.com/kailas-cloud/paperdex/internal/metrics"
)

// Defaults for Config fields left at zero.
const (
	DefaultK                 = 5
	DefaultMaxK              = 100
	DefaultClampK            = 10
	DefaultLookupConcurrency = 8
)

// State is a step of the query lifecycle.
type State string

// Query lifecycle states. Rejected and Failed are terminal alongside Responded.
const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StateEmbedded  State = "embedded"
	StateSearched  State = "searched"
	StateResolved  State = "resolved"
	StateResponded State = "responded"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
)

// Config holds the k policy and metadata lookup limits.
type Config struct {
	DefaultK          int
	MaxK              int
	ClampK            int
	LookupConcurrency int
	LookupTimeout     time.Duration // 0 = no per-lookup deadline
}

func (c *Config) applyDefaults() {
	if c.DefaultK <= 0 {
		c.DefaultK = DefaultK
	}
	if c.MaxK <= 0 {
		c.MaxK = DefaultMaxK
	}
	if c.ClampK <= 0 {
		c.ClampK = DefaultClampK
	}
	if c.LookupConcurrency <= 0 {
		c.LookupConcurrency = DefaultLookupConcurrency
	}
}

// Result is one ranked document. Partial is set when metadata could not be
// resolved and only the identity is known.
type Result struct {
	Document domain.Document
	Score    float32
	Partial  bool
}

// Service answers similarity queries against an atomically swapped index snapshot.
type Service struct {
	enc      QueryEncoder
	docs     DocumentReader
	embs     EmbeddingScanner
	cfg      Config
	snapshot atomic.Pointer[index.Index]
	logger   *zap.Logger
}

// New creates a retrieval service. The service has no index until Rebuild succeeds.
func New(enc QueryEncoder, docs DocumentReader, embs EmbeddingScanner, cfg Config, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{enc: enc, docs: docs, embs: embs, cfg: cfg, logger: logger}
}

// Rebuild scans all embeddings and swaps in a new snapshot. On error the
// current snapshot keeps serving.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	start := time.Now()
	idx, err := index.Build(s.embs.ScanEmbeddings(ctx), s.enc.Dimensions(), s.enc.ModelVersion())
	metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("build index: %w", err)
	}

	s.snapshot.Store(idx)
	metrics.IndexBuildsTotal.WithLabelValues("success").Inc()
	metrics.IndexSize.Set(float64(idx.Len()))
	s.logger.Info("Index snapshot swapped",
		zap.Int("vectors", idx.Len()),
		zap.String("model", idx.Model()),
		zap.Duration("duration", time.Since(start)),
	)
	return idx.Len(), nil
}

// CheckIndex reports whether a snapshot is being served.
func (s *Service) CheckIndex(_ context.Context) error {
	if s.snapshot.Load() == nil {
		return domain.ErrIndexUnavailable
	}
	return nil
}

// Query returns the documents most similar to text. k nil means the default.
func (s *Service) Query(ctx context.Context, text string, k *int) ([]Result, error) {
	q := &query{state: StateReceived, start: time.Now()}
	results, err := s.run(ctx, q, text, k)
	s.finish(ctx, q, len(results), err)
	return results, err
}

type query struct {
	state   State
	start   time.Time
	k       int
	partial int
}

func (s *Service) run(ctx context.Context, q *query, text string, k *int) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	q.k = s.cfg.DefaultK
	if k != nil {
		q.k = *k
	}
	if q.k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", q.k, domain.ErrValidation)
	}
	if q.k > s.cfg.MaxK {
		return nil, fmt.Errorf("k must be at most %d, got %d: %w", s.cfg.MaxK, q.k, domain.ErrValidation)
	}
	q.state = StateValidated

	idx := s.snapshot.Load()
	if idx == nil {
		return nil, domain.ErrIndexUnavailable
	}
	if n := idx.Len(); q.k > n {
		q.k = min(s.cfg.ClampK, n)
	}

	stage := time.Now()
	vec, err := s.enc.Encode(ctx, text)
	observeStage("embed", stage)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	q.state = StateEmbedded

	stage = time.Now()
	hits, err := idx.Search(vec, q.k)
	observeStage("search", stage)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	q.state = StateSearched

	stage = time.Now()
	results, err := s.resolve(ctx, idx, hits)
	observeStage("resolve", stage)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].Partial {
			q.partial++
		}
	}
	q.state = StateResolved
	return results, nil
}

// resolve looks up metadata for every hit concurrently, writing into fixed
// slots so the ranking order is preserved.
func (s *Service) resolve(ctx context.Context, idx *index.Index, hits []index.Hit) ([]Result, error) {
	results := make([]Result, len(hits))
	for i, h := range hits {
		key, err := idx.Key(h.Position)
		if err != nil {
			return nil, fmt.Errorf("resolve position: %w", err)
		}
		results[i] = Result{Document: domain.Document{ID: key.ID, Source: key.Source}, Score: h.Score}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LookupConcurrency)

	for i := range results {
		key := results[i].Document.Key()
		g.Go(func() error {
			lctx, cancel := s.lookupContext(gctx)
			defer cancel()

			doc, err := s.docs.GetDocument(lctx, key)
			switch {
			case err == nil:
				results[i].Document = doc
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return fmt.Errorf("get document %s: %w", key, err)
			case errors.Is(err, domain.ErrDocumentNotFound), errors.Is(err, domain.ErrStore):
				results[i].Partial = true
				metrics.RetrievalPartialResultsTotal.Inc()
				logger.FromContext(ctx).Warn("Document metadata unavailable",
					zap.String("key", key.String()), zap.Error(err))
				return nil
			default:
				return fmt.Errorf("get document %s: %w", key, err)
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.LookupTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.LookupTimeout)
}

// finish moves the query to its terminal state, then logs and counts it.
func (s *Service) finish(ctx context.Context, q *query, n int, err error) {
	last := q.state
	switch {
	case err == nil:
		q.state = StateResponded
	case errors.Is(err, domain.ErrValidation):
		q.state = StateRejected
	default:
		q.state = StateFailed
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(string(q.state)).Inc()

	fields := []zap.Field{
		zap.String("state", string(q.state)),
		zap.Int("k", q.k),
		zap.Int("results", n),
		zap.Int("partial", q.partial),
		zap.Duration("duration", time.Since(q.start)),
	}
	l := logger.FromContext(ctx)
	switch q.state {
	case StateResponded:
		l.Debug("Query answered", fields...)
	case StateRejected:
		l.Info("Query rejected", append(fields, zap.Error(err))...)
	default:
		l.Warn("Query failed", append(fields, zap.String("failed_after", string(last)), zap.Error(err))...)
	}
}

func observeStage(stage string, start time.Time) {
	metrics.RetrievalStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
