// Package papersql is the SQLite backend of the document store. It serves the
// same contracts as the hash-backed repository and is meant for single-node
// deployments and local development.
package papersql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

const defaultPageSize = 500

// Store wraps a SQLite database holding documents, embeddings and a small
// key-value table used by the query-embedding cache.
type Store struct {
	db       *sql.DB
	dim      int
	pageSize int
	logger   *zap.Logger
}

// Open opens or creates a SQLite database at path and ensures the schema.
func Open(path string, dim int) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	sqlDB.SetMaxOpenConns(1)

	if err := createSchema(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: sqlDB, dim: dim, pageSize: defaultPageSize, logger: zap.NewNop()}, nil
}

// WithLogger sets the logger used for skipped malformed rows.
func (s *Store) WithLogger(l *zap.Logger) *Store {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithPageSize sets how many rows each lazy iterator reads per query.
func (s *Store) WithPageSize(n int) *Store {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

func createSchema(sqlDB *sql.DB) error {
	schema := `
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS documents (
			source TEXT NOT NULL,
			id TEXT NOT NULL,
			title TEXT,
			abstract TEXT,
			authors TEXT,
			PRIMARY KEY (source, id)
		);

		CREATE TABLE IF NOT EXISTS document_embeddings (
			source TEXT NOT NULL,
			id TEXT NOT NULL,
			model TEXT NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (source, id)
		);

		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER
		);
	`
	_, err := sqlDB.Exec(schema)
	return err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close sqlite database", zap.Error(err))
	}
}

// WaitForReady is a single ping: a local file is either usable or not.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// storeError classifies a driver error. SQLITE_BUSY and SQLITE_LOCKED are
// retryable, everything else is permanent.
func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewStoreError(op, isTransient(err), err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	default:
		return false
	}
}

// nullable maps an optional document field to a SQL value.
func nullable(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
