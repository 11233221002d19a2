package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// ScanPage is one SCAN round-trip. Cursor 0 means iteration is complete.
type ScanPage struct {
	Keys   []string
	Cursor uint64
}

// HashStore provides hash-based row operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HGetMulti(ctx context.Context, keys []string, field string) ([]*string, error)
	ScanPage(ctx context.Context, cursor uint64, pattern string, count int64) (ScanPage, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ReadConsistency selects where read-only commands are served from.
type ReadConsistency string

const (
	// ReadPrimary sends every command to the primary (read-after-write on a single node).
	ReadPrimary ReadConsistency = "primary"
	// ReadReplica lets read-only commands go to replicas; reads may be stale.
	ReadReplica ReadConsistency = "replica"
)
