package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

type Retriever struct {
	topK      int
	threshold float32
}

func NewRetriever(topK int, threshold float32) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{topK: topK, threshold: threshold}
}

// Retrieve embeds question with embedder, which must be the provider that
// built index, and returns at most topK chunks scoring at or above the
// threshold. No match is an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, embedder Embedder, index *VectorIndex, question string) ([]model.ScoredChunk, error) {
	if index == nil || index.Len() == 0 {
		return nil, nil
	}
	vec, err := embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question failed: %w", err)
	}
	hits, err := index.Query(vec, r.topK)
	if err != nil {
		return nil, err
	}

	out := hits[:0]
	for _, h := range hits {
		if h.Score >= r.threshold {
			out = append(out, h)
		}
	}
	trace.SpanFromContext(ctx).AddEvent("retrieved", trace.WithAttributes(
		attribute.Int("candidates", len(hits)),
		attribute.Int("kept", len(out)),
	))
	return out, nil
}
