package document

import (
	"fmt"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// Hash field names. Absent document fields are not written at all.
const (
	fieldID       = "id"
	fieldSource   = "source"
	fieldTitle    = "title"
	fieldAbstract = "abstract"
	fieldAuthors  = "authors"
	fieldModel    = "model"
	fieldVector   = "vector"
)

// buildDocumentFields converts a Document into a flat map for HSET.
func buildDocumentFields(doc *domain.Document) map[string]string {
	m := map[string]string{
		fieldID:     doc.ID,
		fieldSource: string(doc.Source),
	}
	putOptional(m, fieldTitle, doc.Title)
	putOptional(m, fieldAbstract, doc.Abstract)
	putOptional(m, fieldAuthors, doc.Authors)
	return m
}

func putOptional(m map[string]string, k string, v *string) {
	if v != nil {
		m[k] = *v
	}
}

// parseDocumentFields validates a hash row into a typed Document.
func parseDocumentFields(m map[string]string) (domain.Document, error) {
	source, err := domain.ParseSource(m[fieldSource])
	if err != nil {
		return domain.Document{}, fmt.Errorf("document row: %w", err)
	}
	doc := domain.Document{
		ID:       m[fieldID],
		Source:   source,
		Title:    optional(m, fieldTitle),
		Abstract: optional(m, fieldAbstract),
		Authors:  optional(m, fieldAuthors),
	}
	if err := doc.Validate(); err != nil {
		return domain.Document{}, fmt.Errorf("document row: %w", err)
	}
	return doc, nil
}

func optional(m map[string]string, k string) *string {
	v, ok := m[k]
	if !ok {
		return nil
	}
	return &v
}

// buildEmbeddingFields converts an EmbeddingRecord into a flat map for HSET.
// The vector is stored as raw little-endian float32 bytes.
func buildEmbeddingFields(rec *domain.EmbeddingRecord) map[string]string {
	return map[string]string{
		fieldID:     rec.ID,
		fieldSource: string(rec.Source),
		fieldModel:  rec.Model,
		fieldVector: string(domain.EncodeVector(rec.Vector)),
	}
}

// parseEmbeddingFields decodes a hash row, rejecting vectors of the wrong dimensionality.
func parseEmbeddingFields(m map[string]string, dim int) (domain.EmbeddingRecord, error) {
	source, err := domain.ParseSource(m[fieldSource])
	if err != nil {
		return domain.EmbeddingRecord{}, fmt.Errorf("embedding row: %w", err)
	}
	id := m[fieldID]
	if id == "" {
		return domain.EmbeddingRecord{}, fmt.Errorf("embedding row without id: %w", domain.ErrValidation)
	}
	vec, err := domain.DecodeVector([]byte(m[fieldVector]), dim)
	if err != nil {
		return domain.EmbeddingRecord{}, fmt.Errorf("embedding %s/%s: %w", source, id, err)
	}
	return domain.EmbeddingRecord{
		ID:     id,
		Source: source,
		Model:  m[fieldModel],
		Vector: vec,
	}, nil
}
