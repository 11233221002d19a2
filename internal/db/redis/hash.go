package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/paperdex/internal/db"
)

// HSet sets hash fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return wrap(db.OpHSet, err)
	}
	return nil
}

// HSetMulti stores multiple hashes in a single DoMulti round-trip.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(items))
	for i, item := range items {
		cmd := s.b().Hset().Key(item.Key).FieldValue()
		for k, v := range item.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return wrap(db.OpHSet, fmt.Errorf("key %s: %w", items[i].Key, err))
		}
	}
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, wrap(db.OpHGetAll, err)
	}
	return m, nil
}

// HGetAllMulti fetches all fields for multiple hashes in a single DoMulti round-trip.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Hgetall().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([]map[string]string, len(results))

	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, wrap(db.OpHGetAll, fmt.Errorf("key %s: %w", keys[i], err))
		}
		out[i] = m
	}

	return out, nil
}

// HGetMulti reads one field from many hashes in a single round-trip.
// Missing keys or fields come back as nil entries.
func (s *Store) HGetMulti(ctx context.Context, keys []string, field string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Hget().Key(key).Field(field).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([]*string, len(results))

	for i, res := range results {
		v, err := res.ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, wrap(db.OpHGet, fmt.Errorf("key %s: %w", keys[i], err))
		}
		out[i] = &v
	}

	return out, nil
}

// ScanPage runs one SCAN step. Callers loop until the returned cursor is 0;
// keys may repeat across pages.
func (s *Store) ScanPage(ctx context.Context, cursor uint64, pattern string, count int64) (db.ScanPage, error) {
	cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(count).Build()
	res, err := s.do(ctx, cmd).AsScanEntry()
	if err != nil {
		return db.ScanPage{}, wrap(db.OpScan, err)
	}
	return db.ScanPage{Keys: res.Elements, Cursor: res.Cursor}, nil
}
