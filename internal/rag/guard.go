package rag

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
)

// guardedEmbedder bounds every call to the wrapped provider with a per-call
// timeout, an optional rate limit and the retry policy.
type guardedEmbedder struct {
	Embedder
	retry   ai.RetryPolicy
	timeout time.Duration
	limiter *rate.Limiter
}

func guard(e Embedder, retry ai.RetryPolicy, timeout time.Duration, limiter *rate.Limiter) *guardedEmbedder {
	return &guardedEmbedder{Embedder: e, retry: retry, timeout: timeout, limiter: limiter}
}

func (g *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *guardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ai.Do(ctx, g.retry, func(ctx context.Context) ([][]float32, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		vecs, err := g.Embedder.EmbedBatch(callCtx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, ai.ClassifyTransport(g.Name(), err)
		}
		if len(vecs) != len(texts) {
			return nil, &ai.ProviderError{
				Provider: g.Name(),
				Kind:     ai.KindServer,
				Message:  fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vecs)),
			}
		}
		return vecs, nil
	})
}
