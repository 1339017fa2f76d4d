package ai

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerms(t *testing.T) {
	got := Terms("What was the labor cost for store 357993 on 2024-01-05? It was $150.")
	assert.Equal(t, []string{"labor", "cost", "store", "357993", "2024-01-05", "150"}, got)
	assert.Equal(t, []string{"waste", "percent", "4.2"}, Terms("waste percent is 4.2."))
}

func TestHashingEmbedderDeterministicAndNormalized(t *testing.T) {
	h := NewHashingEmbedder(64)
	a, err := h.Embed(context.Background(), "labor cost for store 357993")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "labor cost for store 357993")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	h := NewHashingEmbedder(8)
	v, err := h.Embed(context.Background(), "the of and")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestHashingEmbedderBatch(t *testing.T) {
	h := NewHashingEmbedder(32)
	vecs, err := h.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])
}
