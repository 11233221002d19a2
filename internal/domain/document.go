package domain

import (
	"fmt"
	"strings"
)

// Source is the catalog a document was ingested from.
type Source string

const (
	// SourceOpenAlex is the OpenAlex works catalog.
	SourceOpenAlex Source = "openalex"
	// SourceSemantic is the Semantic Scholar papers catalog.
	SourceSemantic Source = "semantic"
)

// AllSources lists every known source in a stable order.
func AllSources() []Source {
	return []Source{SourceOpenAlex, SourceSemantic}
}

// ParseSource validates a raw source name (case-insensitive).
func ParseSource(raw string) (Source, error) {
	switch s := Source(strings.ToLower(strings.TrimSpace(raw))); s {
	case SourceOpenAlex, SourceSemantic:
		return s, nil
	default:
		return "", fmt.Errorf("unknown source %q: %w", raw, ErrValidation)
	}
}

// String implements fmt.Stringer.
func (s Source) String() string { return string(s) }

// embedsAuthors reports whether author names are part of the embedded text.
func (s Source) embedsAuthors() bool { return s == SourceSemantic }

// Key identifies a document: ids are only unique within a source.
type Key struct {
	ID     string
	Source Source
}

// String returns "source/id".
func (k Key) String() string { return string(k.Source) + "/" + k.ID }

// Document is a research paper record. Nil fields are absent in the store.
type Document struct {
	ID       string
	Source   Source
	Title    *string
	Abstract *string
	Authors  *string
}

// Key returns the document identity.
func (d *Document) Key() Key { return Key{ID: d.ID, Source: d.Source} }

// Validate checks the identity fields.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("document id is required: %w", ErrValidation)
	}
	if _, err := ParseSource(string(d.Source)); err != nil {
		return err
	}
	return nil
}

// Text builds the embedding input: title, abstract and (for sources that carry
// them) authors, joined by a single space. Missing or empty fields are skipped.
func (d *Document) Text() string {
	parts := make([]string, 0, 3)
	for _, f := range []*string{d.Title, d.Abstract} {
		if f != nil && *f != "" {
			parts = append(parts, *f)
		}
	}
	if d.Source.embedsAuthors() && d.Authors != nil && *d.Authors != "" {
		parts = append(parts, *d.Authors)
	}
	return strings.Join(parts, " ")
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
