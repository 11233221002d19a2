// Package index is the in-memory exact cosine similarity index over
// normalized document embeddings. An Index is immutable once built and safe
// for concurrent searches.
package index

import (
	"container/heap"
	"fmt"
	"iter"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// Hit is one search result: the snapshot position and its cosine score.
type Hit struct {
	Position int
	Score    float32
}

// Index is a snapshot of N unit vectors stored row-major in one matrix.
type Index struct {
	dim    int
	model  string
	keys   []domain.Key
	matrix []float32
}

// Build normalizes and stores records in the order they are yielded. When
// model is non-empty every record must carry that model tag.
func Build(records iter.Seq2[domain.EmbeddingRecord, error], dim int, model string) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension %d: %w", dim, domain.ErrValidation)
	}

	idx := &Index{dim: dim, model: model}
	for rec, err := range records {
		if err != nil {
			return nil, fmt.Errorf("read embeddings: %w", err)
		}
		if err := domain.CheckVector(rec.Vector, dim); err != nil {
			return nil, fmt.Errorf("embedding %s: %w", rec.Key(), err)
		}
		if model != "" && rec.Model != model {
			return nil, fmt.Errorf("embedding %s has model %q, want %q: %w",
				rec.Key(), rec.Model, model, domain.ErrModelVersionMismatch)
		}
		idx.keys = append(idx.keys, rec.Key())
		idx.matrix = append(idx.matrix, domain.Normalize(rec.Vector)...)
	}

	if len(idx.keys) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	return idx, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int { return len(x.keys) }

// Dimensions returns the vector size.
func (x *Index) Dimensions() int { return x.dim }

// Model returns the model tag the index was built for, possibly empty.
func (x *Index) Model() string { return x.model }

// Key resolves a position returned by Search.
func (x *Index) Key(position int) (domain.Key, error) {
	if position < 0 || position >= len(x.keys) {
		return domain.Key{}, fmt.Errorf("position %d out of range [0, %d): %w",
			position, len(x.keys), domain.ErrValidation)
	}
	return x.keys[position], nil
}

// Search returns the min(k, Len()) positions most similar to query, by
// descending score and ascending position among equal scores.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrValidation)
	}
	if err := domain.CheckVector(query, x.dim); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	q := domain.Normalize(query)
	k = min(k, len(x.keys))

	h := make(hitHeap, 0, k)
	for pos := range x.keys {
		hit := Hit{Position: pos, Score: x.dot(pos, q)}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if ranksAbove(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}

	out := make([]Hit, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out, nil
}

// dot accumulates in float64 and clamps to [-1, 1]; float32 rounding alone
// lets a unit vector score slightly above 1 against itself.
func (x *Index) dot(pos int, q []float32) float32 {
	row := x.matrix[pos*x.dim : (pos+1)*x.dim]
	var s float64
	for i, v := range row {
		s += float64(v) * float64(q[i])
	}
	return float32(max(-1, min(1, s)))
}

// ranksAbove orders hits by score, then by position.
func ranksAbove(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Position < b.Position
}

// hitHeap keeps the current top k with the lowest-ranked hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return ranksAbove(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(v any)        { *h = append(*h, v.(Hit)) }

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
