package rag

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

type IndexEntry struct {
	Chunk  model.Chunk
	Vector []float32
}

// VectorIndex is an immutable set of chunks embedded by a single provider,
// searched exhaustively by cosine similarity.
type VectorIndex struct {
	provider string
	dims     int
	entries  []IndexEntry
	norms    []float64
}

// BuildIndex checks that every vector has the same length and precomputes norms.
func BuildIndex(provider string, entries []IndexEntry) (*VectorIndex, error) {
	ix := &VectorIndex{
		provider: provider,
		entries:  entries,
		norms:    make([]float64, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("%w: empty vector for chunk %s", ErrDimensionMismatch, e.Chunk.ID)
		}
		if i == 0 {
			ix.dims = len(e.Vector)
		} else if len(e.Vector) != ix.dims {
			return nil, fmt.Errorf("%w: chunk %s has %d, index has %d", ErrDimensionMismatch, e.Chunk.ID, len(e.Vector), ix.dims)
		}
		ix.norms[i] = norm(e.Vector)
	}
	return ix, nil
}

func (ix *VectorIndex) Provider() string {
	return ix.provider
}

func (ix *VectorIndex) Dimensions() int {
	return ix.dims
}

func (ix *VectorIndex) Len() int {
	return len(ix.entries)
}

// Query returns up to k chunks by descending similarity. Equal scores keep
// insertion order.
func (ix *VectorIndex) Query(vector []float32, k int) ([]model.ScoredChunk, error) {
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}
	if len(vector) != ix.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), ix.dims)
	}

	qn := norm(vector)
	scored := make([]model.ScoredChunk, len(ix.entries))
	for i, e := range ix.entries {
		scored[i] = model.ScoredChunk{Chunk: e.Chunk, Score: cosine(vector, qn, e.Vector, ix.norms[i])}
	}
	slices.SortStableFunc(scored, func(a, b model.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float32 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (an * bn))
}
