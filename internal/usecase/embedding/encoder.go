package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// Encoder turns text into fixed-size vectors for a single configured model.
// It owns the input policy: truncation, empty input and output validation.
type Encoder struct {
	inner   domain.Embedder
	cfg     domain.VectorConfig
	timeout time.Duration
	logger  *zap.Logger
}

// NewEncoder creates an Encoder over the decorated embedder chain.
// A zero timeout disables the per-call deadline.
func NewEncoder(inner domain.Embedder, cfg domain.VectorConfig, timeout time.Duration, logger *zap.Logger) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{inner: inner, cfg: cfg, timeout: timeout, logger: logger}
}

// Dimensions returns the vector size D.
func (e *Encoder) Dimensions() int { return e.cfg.Dimensions }

// ModelVersion returns the tag stored with every embedding this encoder produces.
func (e *Encoder) ModelVersion() string { return e.cfg.ModelVersion }

// Encode returns the vector of one text. Whitespace-only text yields the zero
// vector without a provider call.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	text = e.truncate(text)
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.cfg.Dimensions), nil
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.inner.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("Encode failed", zap.Int("input_chars", len(text)), zap.Error(err))
		return nil, encodingError(err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	if err := domain.CheckVector(res.Embedding, e.cfg.Dimensions); err != nil {
		e.logger.Warn("Encoder returned invalid vector", zap.Int("input_chars", len(text)), zap.Error(err))
		return nil, fmt.Errorf("encode: %w: %w", err, domain.ErrEncoding)
	}
	return res.Embedding, nil
}

// EncodeBatch returns one vector per text, in input order. Empty texts get the
// zero vector and are not sent to the provider.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var sendIdx []int
	var send []string

	for i, t := range texts {
		t = e.truncate(t)
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.cfg.Dimensions)
			continue
		}
		sendIdx = append(sendIdx, i)
		send = append(send, t)
	}
	if len(send) == 0 {
		return out, nil
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var res domain.BatchEmbeddingResult
	var err error
	if be, ok := e.inner.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, send)
	} else {
		res, err = domain.BatchFallback(ctx, e.inner, send)
	}
	if err != nil {
		e.logger.Warn("Batch encode failed", zap.Int("batch_size", len(send)), zap.Error(err))
		return nil, encodingError(err)
	}
	if len(res.Embeddings) != len(send) {
		return nil, fmt.Errorf("encode batch: %d texts but %d vectors: %w",
			len(send), len(res.Embeddings), domain.ErrEncoding)
	}

	for j, i := range sendIdx {
		if err := domain.CheckVector(res.Embeddings[j], e.cfg.Dimensions); err != nil {
			return nil, fmt.Errorf("encode batch [%d]: %w: %w", i, err, domain.ErrEncoding)
		}
		out[i] = res.Embeddings[j]
	}
	return out, nil
}

// truncate cuts text to MaxInputChars runes.
func (e *Encoder) truncate(text string) string {
	limit := e.cfg.MaxInputChars
	if limit <= 0 || len(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

func (e *Encoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// encodingError makes sure every provider failure matches domain.ErrEncoding
// while keeping context errors inspectable.
func encodingError(err error) error {
	if errors.Is(err, domain.ErrEncoding) {
		return fmt.Errorf("encode: %w", err)
	}
	return fmt.Errorf("encode: %w: %w", err, domain.ErrEncoding)
}
