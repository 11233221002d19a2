package document

import (
	"context"
	"testing"

	"github.com/kailas-cloud/paperdex/internal/db"
	"github.com/kailas-cloud/paperdex/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hsetMultiFn    func(ctx context.Context, items []db.HashSetItem) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	hgetMultiFn    func(ctx context.Context, keys []string, field string) ([]*string, error)
	scanPageFn     func(ctx context.Context, cursor uint64, pattern string, count int64) (db.ScanPage, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) HGetMulti(ctx context.Context, keys []string, field string) ([]*string, error) {
	if m.hgetMultiFn != nil {
		return m.hgetMultiFn(ctx, keys, field)
	}
	return make([]*string, len(keys)), nil
}

func (m *mockStore) ScanPage(ctx context.Context, cursor uint64, pattern string, count int64) (db.ScanPage, error) {
	if m.scanPageFn != nil {
		return m.scanPageFn(ctx, cursor, pattern, count)
	}
	return db.ScanPage{}, nil
}

const testDim = 4

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, testDim)
	return repo, ms
}

func testDocument(t *testing.T) domain.Document {
	t.Helper()
	return domain.Document{
		ID:       "W123",
		Source:   domain.SourceOpenAlex,
		Title:    domain.StringPtr("Attention Is All You Need"),
		Abstract: domain.StringPtr("We propose the Transformer."),
	}
}

func testVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i+1) * 0.25
	}
	return vec
}

// pagedScan serves the given pages in order; the last page returns cursor 0.
func pagedScan(pages ...[]string) func(context.Context, uint64, string, int64) (db.ScanPage, error) {
	return func(_ context.Context, cursor uint64, _ string, _ int64) (db.ScanPage, error) {
		i := int(cursor)
		if i >= len(pages) {
			return db.ScanPage{}, nil
		}
		next := uint64(i + 1)
		if i == len(pages)-1 {
			next = 0
		}
		return db.ScanPage{Keys: pages[i], Cursor: next}, nil
	}
}

// rowsFrom answers HGETALL pipelines from a key->row table.
func rowsFrom(table map[string]map[string]string) func(context.Context, []string) ([]map[string]string, error) {
	return func(_ context.Context, keys []string) ([]map[string]string, error) {
		out := make([]map[string]string, len(keys))
		for i, k := range keys {
			out[i] = table[k]
		}
		return out, nil
	}
}
