package papersql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

const upsertDocumentSQL = `
	INSERT INTO documents (source, id, title, abstract, authors)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (source, id) DO UPDATE SET
		title = excluded.title,
		abstract = excluded.abstract,
		authors = excluded.authors`

const upsertEmbeddingSQL = `
	INSERT INTO document_embeddings (source, id, model, vector)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (source, id) DO UPDATE SET
		model = excluded.model,
		vector = excluded.vector`

// PutDocuments writes a batch of document rows in one transaction.
func (s *Store) PutDocuments(ctx context.Context, docs []domain.Document) error {
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}
	return s.inTx(ctx, "put documents", upsertDocumentSQL, len(docs), func(i int) []any {
		d := &docs[i]
		return []any{string(d.Source), d.ID, nullable(d.Title), nullable(d.Abstract), nullable(d.Authors)}
	})
}

// GetDocument reads one document row. Returns domain.ErrDocumentNotFound if absent.
func (s *Store) GetDocument(ctx context.Context, key domain.Key) (domain.Document, error) {
	var title, abstract, authors sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT title, abstract, authors FROM documents WHERE source = ? AND id = ?`,
		string(key.Source), key.ID,
	).Scan(&title, &abstract, &authors)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("%s: %w", key, domain.ErrDocumentNotFound)
	}
	if err != nil {
		return domain.Document{}, storeError("get document", err)
	}
	return domain.Document{
		ID:       key.ID,
		Source:   key.Source,
		Title:    fromNullable(title),
		Abstract: fromNullable(abstract),
		Authors:  fromNullable(authors),
	}, nil
}

// PutEmbedding writes (or overwrites) the embedding row of one document.
func (s *Store) PutEmbedding(ctx context.Context, rec *domain.EmbeddingRecord) error {
	if err := domain.CheckVector(rec.Vector, s.dim); err != nil {
		return fmt.Errorf("embedding %s: %w", rec.Key(), err)
	}
	_, err := s.db.ExecContext(ctx, upsertEmbeddingSQL,
		string(rec.Source), rec.ID, rec.Model, domain.EncodeVector(rec.Vector))
	if err != nil {
		return storeError("put embedding", err)
	}
	return nil
}

// PutEmbeddings writes a batch of embedding rows in one transaction.
// Every vector is checked before anything is written.
func (s *Store) PutEmbeddings(ctx context.Context, recs []domain.EmbeddingRecord) error {
	for i := range recs {
		if err := domain.CheckVector(recs[i].Vector, s.dim); err != nil {
			return fmt.Errorf("embedding %s: %w", recs[i].Key(), err)
		}
	}
	return s.inTx(ctx, "put embeddings", upsertEmbeddingSQL, len(recs), func(i int) []any {
		r := &recs[i]
		return []any{string(r.Source), r.ID, r.Model, domain.EncodeVector(r.Vector)}
	})
}

func (s *Store) inTx(ctx context.Context, op, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return storeError(op, err)
	}
	defer stmt.Close()

	for i := range n {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return storeError(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError(op, err)
	}
	return nil
}

// MissingEmbeddings lazily yields documents of source without an embedding
// tagged with model. Pages are keyed on id, so rows embedded while the
// iteration is running are not revisited.
func (s *Store) MissingEmbeddings(
	ctx context.Context, source domain.Source, model string,
) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		after := ""
		for {
			page, last, err := s.missingPage(ctx, source, model, after)
			if err != nil {
				yield(domain.Document{}, err)
				return
			}
			for i := range page {
				if !yield(page[i], nil) {
					return
				}
			}
			if last == nil {
				return
			}
			after = *last
		}
	}
}

// missingPage reads one page fully so the single connection is free again
// before the caller writes embeddings. last is the id to continue after, nil
// when the page was short.
func (s *Store) missingPage(
	ctx context.Context, source domain.Source, model, after string,
) (page []domain.Document, last *string, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.abstract, d.authors
		FROM documents d
		LEFT JOIN document_embeddings e ON e.source = d.source AND e.id = d.id
		WHERE d.source = ? AND d.id > ? AND (e.model IS NULL OR e.model <> ?)
		ORDER BY d.id
		LIMIT ?`,
		string(source), after, model, s.pageSize)
	if err != nil {
		return nil, nil, storeError("scan missing embeddings", err)
	}
	defer rows.Close()

	page = make([]domain.Document, 0, s.pageSize)
	var id string
	read := 0
	for rows.Next() {
		var title, abstract, authors sql.NullString
		if err := rows.Scan(&id, &title, &abstract, &authors); err != nil {
			return nil, nil, storeError("scan missing embeddings", err)
		}
		read++
		doc := domain.Document{
			ID:       id,
			Source:   source,
			Title:    fromNullable(title),
			Abstract: fromNullable(abstract),
			Authors:  fromNullable(authors),
		}
		if err := doc.Validate(); err != nil {
			s.logger.Warn("Skipping malformed document row",
				zap.String("source", string(source)), zap.Error(err))
			continue
		}
		page = append(page, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storeError("scan missing embeddings", err)
	}
	if read < s.pageSize {
		return page, nil, nil
	}
	return page, &id, nil
}

// ScanEmbeddings lazily yields every embedding row ordered by (source, id).
// A blob that does not decode to the configured dimensionality stops the scan
// with domain.ErrVectorDimMismatch.
func (s *Store) ScanEmbeddings(ctx context.Context) iter.Seq2[domain.EmbeddingRecord, error] {
	return func(yield func(domain.EmbeddingRecord, error) bool) {
		var afterSource, afterID string
		for {
			page, err := s.embeddingPage(ctx, afterSource, afterID)
			if err != nil {
				yield(domain.EmbeddingRecord{}, err)
				return
			}
			for i := range page {
				if !yield(page[i], nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			last := page[len(page)-1]
			afterSource, afterID = string(last.Source), last.ID
		}
	}
}

func (s *Store) embeddingPage(ctx context.Context, afterSource, afterID string) ([]domain.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, id, model, vector
		FROM document_embeddings
		WHERE (source, id) > (?, ?)
		ORDER BY source, id
		LIMIT ?`,
		afterSource, afterID, s.pageSize)
	if err != nil {
		return nil, storeError("scan embeddings", err)
	}
	defer rows.Close()

	page := make([]domain.EmbeddingRecord, 0, s.pageSize)
	for rows.Next() {
		var rawSource, id, model string
		var blob []byte
		if err := rows.Scan(&rawSource, &id, &model, &blob); err != nil {
			return nil, storeError("scan embeddings", err)
		}
		source, err := domain.ParseSource(rawSource)
		if err != nil {
			return nil, fmt.Errorf("embedding row %s: %w", id, err)
		}
		vec, err := domain.DecodeVector(blob, s.dim)
		if err != nil {
			return nil, fmt.Errorf("embedding %s/%s: %w", source, id, err)
		}
		page = append(page, domain.EmbeddingRecord{ID: id, Source: source, Model: model, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan embeddings", err)
	}
	return page, nil
}
