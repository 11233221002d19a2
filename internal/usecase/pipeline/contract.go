package pipeline

import (
	"context"
	"iter"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// DocumentScanner streams documents that still need an embedding for model.
type DocumentScanner interface {
	MissingEmbeddings(ctx context.Context, source domain.Source, model string) iter.Seq2[domain.Document, error]
}

// EmbeddingWriter persists embedding records, a whole batch or one at a time.
type EmbeddingWriter interface {
	PutEmbeddings(ctx context.Context, recs []domain.EmbeddingRecord) error
	PutEmbedding(ctx context.Context, rec *domain.EmbeddingRecord) error
}

// BatchEncoder vectorizes texts in input order.
type BatchEncoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}
