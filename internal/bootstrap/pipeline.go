package bootstrap

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/samargunners/par-delta-dashboard/internal/ai"
	"github.com/samargunners/par-delta-dashboard/internal/config"
	"github.com/samargunners/par-delta-dashboard/internal/rag"
	"github.com/samargunners/par-delta-dashboard/internal/repository"
)

// NewPipeline validates the RAG settings and assembles the orchestrator
// over db. The session starts on the fallback provider when the primary is
// named but not configured.
func NewPipeline(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*rag.Orchestrator, error) {
	if err := cfg.ValidateRAG(); err != nil {
		return nil, err
	}

	splitter, err := rag.NewSplitter(rag.SplitterConfig{
		Size:      cfg.RAG.ChunkSize,
		Overlap:   cfg.RAG.ChunkOverlap,
		Tolerance: cfg.RAG.BoundaryTolerance,
	})
	if err != nil {
		return nil, err
	}

	providers, state, err := NewProviders(cfg)
	if err != nil {
		return nil, err
	}
	if state.Active() == rag.ProviderFallback {
		log.Warn("starting on fallback embedding provider", "reason", state.Reason())
	}

	fetcher, builder := NewDocumentSource(cfg, db, log)
	llm := ai.NewOpenAICompatibleClient(ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     seconds(cfg.LLM.TimeoutSeconds),
	})

	return rag.NewOrchestrator(PipelineConfig(cfg), fetcher, builder, splitter, providers, state, llm, log)
}

// NewDocumentSource wires the table fetcher and document builder, which
// need neither embeddings nor the language model.
func NewDocumentSource(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*rag.TableFetcher, *rag.DocumentBuilder) {
	specs := TableSpecs(cfg)
	source := repository.NewTableRepository(db, cfg.RAG.RowLimit)
	fetcher := rag.NewTableFetcher(source, specs, seconds(cfg.RAG.CacheTTLSeconds), log)
	builder := rag.NewDocumentBuilder(specs, rag.BuilderOptions{
		StoreColumns:    cfg.RAG.StoreColumns,
		CurrencyColumns: cfg.RAG.CurrencyColumns,
	})
	return fetcher, builder
}

// NewProviders builds the configured embedding providers in order. An
// unusable primary leaves the session on the fallback from the start.
func NewProviders(cfg *config.Config) (rag.Providers, *rag.ProviderState, error) {
	order := cfg.Embedding.ProviderOrder
	if len(order) == 0 {
		return rag.Providers{}, nil, fmt.Errorf("%w: embedding.provider_order", config.ErrConfigurationMissing)
	}

	var providers rag.Providers
	if cfg.EmbeddingProviderUsable(order[0]) {
		e, err := NewEmbedder(cfg, order[0])
		if err != nil {
			return rag.Providers{}, nil, err
		}
		providers.Primary = e
	}
	if len(order) > 1 && cfg.EmbeddingProviderUsable(order[1]) {
		e, err := NewEmbedder(cfg, order[1])
		if err != nil {
			return rag.Providers{}, nil, err
		}
		providers.Fallback = e
	}

	switch {
	case providers.Primary != nil:
		return providers, rag.NewProviderState(rag.ProviderPrimary, ""), nil
	case providers.Fallback != nil:
		reason := fmt.Sprintf("%s embedding provider not configured", order[0])
		return providers, rag.NewProviderState(rag.ProviderFallback, reason), nil
	default:
		return rag.Providers{}, nil, rag.ErrNoProvider
	}
}

func NewEmbedder(cfg *config.Config, name string) (rag.Embedder, error) {
	timeout := seconds(cfg.Embedding.TimeoutSeconds)
	switch name {
	case config.ProviderOpenAI:
		return ai.NewOpenAIEmbedder(ai.EmbeddingConfig{
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
			APIKey:     cfg.Embedding.OpenAI.APIKey,
			Model:      cfg.Embedding.OpenAI.Model,
			Dimensions: cfg.Embedding.OpenAI.Dimensions,
			Timeout:    timeout,
		}), nil
	case config.ProviderOllama:
		return ai.NewOllamaEmbedder(ai.OllamaConfig{
			BaseURL:    cfg.Embedding.Ollama.BaseURL,
			Model:      cfg.Embedding.Ollama.Model,
			Dimensions: cfg.Embedding.Ollama.Dimensions,
			Timeout:    timeout,
		}), nil
	case config.ProviderHashing:
		return ai.NewHashingEmbedder(cfg.Embedding.Hashing.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
}

func TableSpecs(cfg *config.Config) []rag.TableSpec {
	specs := make([]rag.TableSpec, 0, len(cfg.RAG.Tables))
	for _, t := range cfg.RAG.Tables {
		specs = append(specs, rag.TableSpec{
			Name:       t.Name,
			RecordType: t.RecordType,
			Columns:    t.Columns,
			KeyColumn:  t.KeyColumn,
			OrderBy:    t.OrderBy,
			Limit:      cfg.RAG.RowLimit,
		})
	}
	return specs
}

func PipelineConfig(cfg *config.Config) rag.Config {
	pc := rag.DefaultConfig()
	pc.TopK = cfg.RAG.TopK
	pc.Threshold = float32(cfg.RAG.SimilarityThreshold)
	pc.TTL = seconds(cfg.RAG.CacheTTLSeconds)
	pc.BlockOnRebuild = cfg.RAG.BlockOnRebuild
	if cfg.Embedding.BatchSize > 0 {
		pc.BatchSize = cfg.Embedding.BatchSize
	}
	if cfg.Embedding.Concurrency > 0 {
		pc.Concurrency = cfg.Embedding.Concurrency
	}
	pc.RequestsPerSecond = cfg.Embedding.RequestsPerSecond
	if cfg.Embedding.TimeoutSeconds > 0 {
		pc.ProviderTimeout = seconds(cfg.Embedding.TimeoutSeconds)
	}
	if cfg.LLM.TimeoutSeconds > 0 {
		pc.LLMTimeout = seconds(cfg.LLM.TimeoutSeconds)
	}
	if cfg.Embedding.MaxRetries >= 0 {
		pc.Retry.MaxRetries = cfg.Embedding.MaxRetries
	}
	return pc
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
