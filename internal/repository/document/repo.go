package document

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/db"
	"github.com/kailas-cloud/paperdex/internal/domain"
)

// DefaultKeyPrefix namespaces every key written by the repository.
const DefaultKeyPrefix = "paperdex:"

const defaultScanCount = 500

// store is the consumer interface for documents and embeddings (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HGetMulti(ctx context.Context, keys []string, field string) ([]*string, error)
	ScanPage(ctx context.Context, cursor uint64, pattern string, count int64) (db.ScanPage, error)
}

// Repo stores documents and embeddings as Redis/Valkey hashes:
//
//	{prefix}doc:{source}:{id} -> id, source, title?, abstract?, authors?
//	{prefix}emb:{source}:{id} -> id, source, model, vector
type Repo struct {
	store     store
	dim       int
	prefix    string
	scanCount int64
	logger    *zap.Logger
}

// New creates a repository decoding vectors with dimensionality dim.
func New(s store, dim int) *Repo {
	return &Repo{
		store:     s,
		dim:       dim,
		prefix:    DefaultKeyPrefix,
		scanCount: defaultScanCount,
		logger:    zap.NewNop(),
	}
}

// WithKeyPrefix overrides the key namespace.
func (r *Repo) WithKeyPrefix(prefix string) *Repo {
	if prefix != "" {
		r.prefix = prefix
	}
	return r
}

// WithScanCount sets the SCAN COUNT hint used by the lazy iterators.
func (r *Repo) WithScanCount(n int64) *Repo {
	if n > 0 {
		r.scanCount = n
	}
	return r
}

// WithLogger sets the logger used for skipped malformed rows.
func (r *Repo) WithLogger(l *zap.Logger) *Repo {
	if l != nil {
		r.logger = l
	}
	return r
}

// GetDocument reads one document row. Returns domain.ErrDocumentNotFound if absent.
func (r *Repo) GetDocument(ctx context.Context, key domain.Key) (domain.Document, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(key))
	if err != nil {
		return domain.Document{}, storeError("get document", err)
	}
	if len(m) == 0 {
		return domain.Document{}, fmt.Errorf("%s: %w", key, domain.ErrDocumentNotFound)
	}
	return parseDocumentFields(m)
}

// PutEmbedding writes (or overwrites) the embedding row of one document.
func (r *Repo) PutEmbedding(ctx context.Context, rec *domain.EmbeddingRecord) error {
	if err := domain.CheckVector(rec.Vector, r.dim); err != nil {
		return fmt.Errorf("embedding %s: %w", rec.Key(), err)
	}
	if err := r.store.HSet(ctx, r.embKey(rec.Key()), buildEmbeddingFields(rec)); err != nil {
		return storeError("put embedding", err)
	}
	return nil
}

// PutEmbeddings writes a batch of embedding rows in one pipelined round-trip.
// Every vector is checked before anything is written.
func (r *Repo) PutEmbeddings(ctx context.Context, recs []domain.EmbeddingRecord) error {
	if len(recs) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(recs))
	for i := range recs {
		if err := domain.CheckVector(recs[i].Vector, r.dim); err != nil {
			return fmt.Errorf("embedding %s: %w", recs[i].Key(), err)
		}
		items[i] = db.HashSetItem{Key: r.embKey(recs[i].Key()), Fields: buildEmbeddingFields(&recs[i])}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return storeError("put embeddings", err)
	}
	return nil
}

// PutDocuments writes a batch of document rows in one pipelined round-trip.
func (r *Repo) PutDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(docs))
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
		items[i] = db.HashSetItem{Key: r.docKey(docs[i].Key()), Fields: buildDocumentFields(&docs[i])}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return storeError("put documents", err)
	}
	return nil
}

// MissingEmbeddings lazily yields documents of source without an embedding
// tagged with model. SCAN may repeat keys, so duplicates are dropped.
func (r *Repo) MissingEmbeddings(
	ctx context.Context, source domain.Source, model string,
) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		pattern := r.prefix + "doc:" + string(source) + ":*"
		seen := make(map[string]struct{})

		for keys, err := range r.scanKeys(ctx, pattern) {
			if err != nil {
				yield(domain.Document{}, err)
				return
			}
			keys = dedupe(keys, seen)
			if len(keys) == 0 {
				continue
			}

			missing, err := r.filterMissing(ctx, keys, model)
			if err != nil {
				yield(domain.Document{}, err)
				return
			}
			if len(missing) == 0 {
				continue
			}

			rows, err := r.store.HGetAllMulti(ctx, missing)
			if err != nil {
				yield(domain.Document{}, storeError("read documents", err))
				return
			}
			for i, m := range rows {
				if len(m) == 0 {
					continue // deleted between SCAN and read
				}
				doc, err := parseDocumentFields(m)
				if err != nil {
					r.logger.Warn("Skipping malformed document row",
						zap.String("key", missing[i]), zap.Error(err))
					continue
				}
				if !yield(doc, nil) {
					return
				}
			}
		}
	}
}

// filterMissing keeps the document keys whose embedding row is absent or
// carries a different model tag.
func (r *Repo) filterMissing(ctx context.Context, docKeys []string, model string) ([]string, error) {
	embKeys := make([]string, len(docKeys))
	for i, k := range docKeys {
		embKeys[i] = r.embKeyFromDocKey(k)
	}
	models, err := r.store.HGetMulti(ctx, embKeys, fieldModel)
	if err != nil {
		return nil, storeError("read embedding tags", err)
	}
	missing := make([]string, 0, len(docKeys))
	for i, m := range models {
		if m == nil || *m != model {
			missing = append(missing, docKeys[i])
		}
	}
	return missing, nil
}

// ScanEmbeddings lazily yields every embedding row. A vector whose size does
// not match the configured dimensionality stops the scan with
// domain.ErrVectorDimMismatch.
func (r *Repo) ScanEmbeddings(ctx context.Context) iter.Seq2[domain.EmbeddingRecord, error] {
	return func(yield func(domain.EmbeddingRecord, error) bool) {
		seen := make(map[string]struct{})

		for keys, err := range r.scanKeys(ctx, r.prefix+"emb:*") {
			if err != nil {
				yield(domain.EmbeddingRecord{}, err)
				return
			}
			keys = dedupe(keys, seen)
			if len(keys) == 0 {
				continue
			}

			rows, err := r.store.HGetAllMulti(ctx, keys)
			if err != nil {
				yield(domain.EmbeddingRecord{}, storeError("read embeddings", err))
				return
			}
			for _, m := range rows {
				if len(m) == 0 {
					continue
				}
				rec, err := parseEmbeddingFields(m, r.dim)
				if err != nil {
					yield(domain.EmbeddingRecord{}, err)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// scanKeys iterates SCAN pages until the cursor wraps to 0.
func (r *Repo) scanKeys(ctx context.Context, pattern string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		var cursor uint64
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := r.store.ScanPage(ctx, cursor, pattern, r.scanCount)
			if err != nil {
				yield(nil, storeError("scan", err))
				return
			}
			if !yield(page.Keys, nil) {
				return
			}
			cursor = page.Cursor
			if cursor == 0 {
				return
			}
		}
	}
}

func dedupe(keys []string, seen map[string]struct{}) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (r *Repo) docKey(k domain.Key) string {
	return r.prefix + "doc:" + string(k.Source) + ":" + k.ID
}

func (r *Repo) embKey(k domain.Key) string {
	return r.prefix + "emb:" + string(k.Source) + ":" + k.ID
}

func (r *Repo) embKeyFromDocKey(docKey string) string {
	return r.prefix + "emb:" + docKey[len(r.prefix)+len("doc:"):]
}

// storeError classifies a driver error for the retry policy of the caller.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewStoreError(op, db.IsTransient(err), err)
}
