package retrieval

import (
	"context"
	"iter"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// QueryEncoder vectorizes query text with the serving model.
type QueryEncoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelVersion() string
}

// DocumentReader resolves document metadata by identity.
type DocumentReader interface {
	GetDocument(ctx context.Context, key domain.Key) (domain.Document, error)
}

// EmbeddingScanner streams every stored embedding for an index build.
type EmbeddingScanner interface {
	ScanEmbeddings(ctx context.Context) iter.Seq2[domain.EmbeddingRecord, error]
}
