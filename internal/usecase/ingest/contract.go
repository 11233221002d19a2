package ingest

import (
	"context"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// DocumentWriter upserts documents in bulk.
type DocumentWriter interface {
	PutDocuments(ctx context.Context, docs []domain.Document) error
}
