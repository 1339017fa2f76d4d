package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	httpClient *http.Client
	cfg        EmbeddingConfig
	dimensions atomic.Int64
}

func NewOpenAIEmbedder(cfg EmbeddingConfig) *OpenAIEmbedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = modelDimensions[cfg.Model]
	}
	e := &OpenAIEmbedder{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
	e.dimensions.Store(int64(dims))
	return e
}

func (e *OpenAIEmbedder) Name() string {
	return "openai"
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.cfg.Model
}

// Dimensions returns the configured size, or 0 when the model is unknown
// until the first response.
func (e *OpenAIEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// Embed returns the embedding vector for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, &ProviderError{Provider: e.Name(), Kind: KindInvalid, Message: fmt.Sprintf("embedding input %d is empty", i)}
		}
	}

	reqBody := map[string]interface{}{
		"model": e.cfg.Model,
		"input": texts,
	}
	if e.cfg.Dimensions > 0 {
		reqBody["dimensions"] = e.cfg.Dimensions
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyTransport(e.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(e.Name(), err)
	}
	if resp.StatusCode >= 300 {
		return nil, ClassifyStatus(e.Name(), resp.StatusCode, raw)
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProviderError{Provider: e.Name(), Kind: KindServer, Message: "parse embedding json failed", Err: err}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: e.Name(),
			Kind:     KindServer,
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)),
		}
	}

	result := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || len(d.Embedding) == 0 {
			return nil, &ProviderError{Provider: e.Name(), Kind: KindServer, Message: fmt.Sprintf("bad embedding at index %d", d.Index)}
		}
		result[d.Index] = d.Embedding
	}
	e.dimensions.CompareAndSwap(0, int64(len(result[0])))
	return result, nil
}
