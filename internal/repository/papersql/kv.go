package papersql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kailas-cloud/paperdex/internal/db"
)

// Get returns the value stored under key, or db.ErrKeyNotFound when it is
// absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, storeError("kv get", err)
	}
	return value, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.put(ctx, key, value, sql.NullInt64{})
}

// SetWithTTL stores value under key, expiring after ttl.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.put(ctx, key, value, sql.NullInt64{Int64: time.Now().Add(ttl).UnixMilli(), Valid: true})
}

func (s *Store) put(ctx context.Context, key string, value []byte, expiresAt sql.NullInt64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return storeError("kv set", err)
	}
	return nil
}
