package rag

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

func randomText(r *rand.Rand, words int) string {
	vocab := []string{"labor", "cost", "store", "357993", "waste", "donut", "café", "sales", "2024-01-05", "$150", "variance"}
	ends := []string{" ", " ", " ", ". ", "! ", "\n", ", "}
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString(vocab[r.IntN(len(vocab))])
		b.WriteString(ends[r.IntN(len(ends))])
	}
	return b.String()
}

func TestSplitRoundTrip(t *testing.T) {
	configs := []SplitterConfig{
		{Size: 50, Overlap: 10, Tolerance: 10},
		{Size: 100, Overlap: 0, Tolerance: 20},
		{Size: 30, Overlap: 29, Tolerance: 5},
		{Size: 10, Overlap: 3, Tolerance: 0},
		DefaultSplitterConfig(),
	}
	r := rand.New(rand.NewPCG(7, 11))

	for _, cfg := range configs {
		s, err := NewSplitter(cfg)
		require.NoError(t, err)

		for i := 0; i < 40; i++ {
			doc := model.Document{ID: "doc", Text: randomText(r, 1+r.IntN(400))}
			chunks := s.Split(doc)
			require.NotEmpty(t, chunks)

			assert.Equal(t, doc.Text, model.JoinChunks(chunks), "cfg %+v", cfg)
			assert.Equal(t, 0, chunks[0].Start)
			assert.Equal(t, utf8.RuneCountInString(doc.Text), chunks[len(chunks)-1].End)
			for j, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), cfg.Size)
				assert.Equal(t, j, c.Index)
				if j > 0 {
					assert.Equal(t, chunks[j-1].End-c.Start, c.Overlap)
					assert.Greater(t, c.Start, chunks[j-1].Start)
				}
			}
		}
	}
}

func TestSplitShortDocumentIsOneChunk(t *testing.T) {
	s, err := NewSplitter(DefaultSplitterConfig())
	require.NoError(t, err)

	doc := model.Document{ID: "d1", Text: "TABLE stores (store): for store 357993.", Metadata: map[string]string{model.MetaTable: "stores"}}
	chunks := s.Split(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc.Text, chunks[0].Text)
	assert.Equal(t, "d1", chunks[0].DocumentID)
	assert.Equal(t, "stores", chunks[0].Metadata[model.MetaTable])
	assert.Equal(t, "0", chunks[0].Metadata[model.MetaChunkIndex])
	assert.Equal(t, "0", chunks[0].Metadata[model.MetaOverlap])

	exact := model.Document{ID: "d2", Text: strings.Repeat("x", 1000)}
	assert.Len(t, s.Split(exact), 1)

	assert.Empty(t, s.Split(model.Document{ID: "empty"}))
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 20, Overlap: 0, Tolerance: 10})
	require.NoError(t, err)

	chunks := s.Split(model.Document{ID: "d", Text: "Sales were up. Labor was flat today."})
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Sales were up. ", chunks[0].Text)
}

func TestSplitChunkIDsAreStable(t *testing.T) {
	s, err := NewSplitter(SplitterConfig{Size: 10, Overlap: 2, Tolerance: 3})
	require.NoError(t, err)

	doc := model.Document{ID: "doc-1", Text: "one two three four five six seven"}
	a, b := s.Split(doc), s.Split(doc)
	require.Equal(t, len(a), len(b))
	seen := map[string]bool{}
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.False(t, seen[a[i].ID])
		seen[a[i].ID] = true
	}
}

func TestSplitterConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  SplitterConfig
		ok   bool
	}{
		{"defaults", DefaultSplitterConfig(), true},
		{"no overlap", SplitterConfig{Size: 10}, true},
		{"zero size", SplitterConfig{Size: 0}, false},
		{"overlap equals size", SplitterConfig{Size: 10, Overlap: 10}, false},
		{"negative overlap", SplitterConfig{Size: 10, Overlap: -1}, false},
		{"negative tolerance", SplitterConfig{Size: 10, Tolerance: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSplitter)
			}
		})
	}
}
