// Package ingest loads normalized documents from JSON Lines into the store.
// It stands in for the upstream ingestion job in development and tests.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// MaxLineBytes is the longest accepted JSONL line.
const MaxLineBytes = 1024 * 1024

// DefaultBatchSize is the number of documents written per store call.
const DefaultBatchSize = 500

const maxReportedErrors = 20

// Report summarizes one import.
type Report struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// line is one JSONL record. Semantic Scholar exports use paperId, OpenAlex uses id.
type line struct {
	ID       string `json:"id"`
	PaperID  string `json:"paperId"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Authors  string `json:"authors"`
}

// Service imports documents.
type Service struct {
	writer    DocumentWriter
	batchSize int
	logger    *zap.Logger
}

// New creates an import service.
func New(writer DocumentWriter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{writer: writer, batchSize: DefaultBatchSize, logger: logger}
}

// WithBatchSize overrides the write batch size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Import reads r to the end. Lines without a valid source use fallback when it
// is non-empty. Malformed lines are skipped and reported; store errors abort.
func (s *Service) Import(ctx context.Context, r io.Reader, fallback domain.Source) (Report, error) {
	var rep Report
	batch := make([]domain.Document, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.PutDocuments(ctx, batch); err != nil {
			return fmt.Errorf("write documents: %w", err)
		}
		rep.Imported += len(batch)
		batch = make([]domain.Document, 0, s.batchSize)
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		doc, err := parseLine(raw, fallback)
		if err != nil {
			rep.Skipped++
			if len(rep.Errors) < maxReportedErrors {
				rep.Errors = append(rep.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			}
			s.logger.Debug("Skipping import line", zap.Int("line", lineNum), zap.Error(err))
			continue
		}

		batch = append(batch, doc)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return rep, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return rep, fmt.Errorf("read input at line %d: %w", lineNum+1, err)
	}
	if err := flush(); err != nil {
		return rep, err
	}

	s.logger.Info("Import finished",
		zap.Int("imported", rep.Imported),
		zap.Int("skipped", rep.Skipped),
	)
	return rep, nil
}

func parseLine(raw []byte, fallback domain.Source) (domain.Document, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return domain.Document{}, fmt.Errorf("parse json: %w", err)
	}

	source := fallback
	if l.Source != "" {
		src, err := domain.ParseSource(l.Source)
		if err != nil {
			return domain.Document{}, err
		}
		source = src
	}

	id := l.ID
	if id == "" {
		id = l.PaperID
	}
	doc := domain.Document{
		ID:       strings.TrimSpace(id),
		Source:   source,
		Title:    domain.StringPtr(l.Title),
		Abstract: domain.StringPtr(l.Abstract),
		Authors:  domain.StringPtr(l.Authors),
	}
	if err := doc.Validate(); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}
