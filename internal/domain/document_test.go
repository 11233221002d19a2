package domain

import (
	"errors"
	"testing"
)

func TestDocument_Text(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{"openalex title and abstract", Document{
			Source: SourceOpenAlex, Title: StringPtr("T"), Abstract: StringPtr("A"),
		}, "T A"},
		{"openalex leaves out authors", Document{
			Source: SourceOpenAlex, Title: StringPtr("T"), Abstract: StringPtr("A"), Authors: StringPtr("X Y"),
		}, "T A"},
		{"semantic appends authors last", Document{
			Source: SourceSemantic, Title: StringPtr("T"), Abstract: StringPtr("A"), Authors: StringPtr("X Y"),
		}, "T A X Y"},
		{"missing title", Document{
			Source: SourceSemantic, Abstract: StringPtr("A"), Authors: StringPtr("X"),
		}, "A X"},
		{"empty fields are skipped", Document{
			Source: SourceSemantic, Title: new(string), Abstract: StringPtr("A"), Authors: new(string),
		}, "A"},
		{"nothing to embed", Document{Source: SourceOpenAlex}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.doc.Text(); got != tc.want {
				t.Errorf("Text() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw     string
		want    Source
		wantErr bool
	}{
		{"openalex", SourceOpenAlex, false},
		{" Semantic ", SourceSemantic, false},
		{"OPENALEX", SourceOpenAlex, false},
		{"arxiv", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseSource(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ParseSource(%q) = %q, %v", tc.raw, got, err)
			}
		})
	}
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{"ok", Document{ID: "W1", Source: SourceOpenAlex}, false},
		{"blank id", Document{ID: "  ", Source: SourceOpenAlex}, true},
		{"unknown source", Document{ID: "W1", Source: "arxiv"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.doc.Validate()
			if tc.wantErr != (err != nil) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestKey_String(t *testing.T) {
	d := Document{ID: "649def34", Source: SourceSemantic}
	if got := d.Key().String(); got != "semantic/649def34" {
		t.Errorf("Key().String() = %q", got)
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("empty string must map to nil")
	}
	if p := StringPtr("x"); p == nil || *p != "x" {
		t.Errorf("unexpected pointer %v", p)
	}
}
