package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.5, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Equal(t, 3600, cfg.RAG.CacheTTLSeconds)
	assert.Equal(t, 1000, cfg.RAG.RowLimit)
	assert.False(t, cfg.RAG.BlockOnRebuild)
	assert.Len(t, cfg.RAG.Tables, 10)
	assert.Equal(t, 100, cfg.Embedding.BatchSize)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.OpenAI.Model)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[rag]
chunk_size = 500
chunk_overlap = 50
top_k = 3

[[rag.tables]]
name = "usage_overview"
record_type = "usage"
columns = ["date", "waste_percent"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "7")
	t.Setenv("EMBEDDING_PROVIDER_ORDER", "ollama, hashing")
	t.Setenv("RAG_BLOCK_ON_REBUILD", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 7, cfg.RAG.TopK)
	assert.True(t, cfg.RAG.BlockOnRebuild)
	assert.Equal(t, []string{"ollama", "hashing"}, cfg.Embedding.ProviderOrder)
	require.Len(t, cfg.RAG.Tables, 1)
	assert.Equal(t, "usage_overview", cfg.RAG.Tables[0].Name)
}

func TestFilterTables(t *testing.T) {
	tables := defaultTables()

	got := filterTables(tables, []string{"stores", "custom_table"})
	require.Len(t, got, 2)
	assert.Equal(t, "stores", got[0].Name)
	assert.Equal(t, "pc_number", got[0].KeyColumn)
	assert.Equal(t, TableConfig{Name: "custom_table"}, got[1])

	assert.Equal(t, tables, filterTables(tables, nil))
}

func TestValidateRAG(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.LLM.APIKey = "llm-key"
		cfg.Embedding.OpenAI.APIKey = "embed-key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "complete", mutate: func(*Config) {}},
		{
			name:    "missing llm key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			wantErr: "llm.api_key",
		},
		{
			name: "fallback only is usable",
			mutate: func(c *Config) {
				c.Embedding.OpenAI.APIKey = ""
			},
		},
		{
			name: "no usable provider",
			mutate: func(c *Config) {
				c.Embedding.OpenAI.APIKey = ""
				c.Embedding.ProviderOrder = []string{ProviderOpenAI}
			},
			wantErr: "usable embedding provider",
		},
		{
			name:    "overlap not smaller than size",
			mutate:  func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize },
			wantErr: "chunk_overlap",
		},
		{
			name:    "no tables",
			mutate:  func(c *Config) { c.RAG.Tables = nil },
			wantErr: "rag.tables",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateRAG()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrConfigurationMissing)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Password = "secret"
	assert.Equal(t, "host=127.0.0.1 port=5432 user=postgres password=secret dbname=postgres sslmode=require", cfg.DatabaseDSN())

	cfg.Database.Driver = DriverMySQL
	cfg.Database.Port = 3306
	cfg.Database.Params = "parseTime=true"
	assert.Equal(t, "postgres:secret@tcp(127.0.0.1:3306)/postgres?parseTime=true", cfg.DatabaseDSN())
}
