package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"did": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {},
	"it": {}, "many": {}, "much": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "what": {}, "when": {}, "which": {}, "who": {}, "with": {},
}

// HashingEmbedder maps text into a fixed space by hashing its terms. It needs
// no network or model files and is deterministic, which makes it the fallback
// of last resort.
type HashingEmbedder struct {
	dimensions int
}

func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

func (h *HashingEmbedder) Name() string {
	return "hashing"
}

func (h *HashingEmbedder) ModelName() string {
	return "feature-hashing"
}

func (h *HashingEmbedder) Dimensions() int {
	return h.dimensions
}

func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dimensions)
	for _, term := range Terms(text) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(term))
		vec[hasher.Sum32()%uint32(h.dimensions)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec, nil
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (h *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Terms lowercases text and splits it into terms, keeping dates like
// 2024-01-05 and decimals like 4.2 whole and dropping stopwords.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '.'
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-.")
		if f == "" {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
