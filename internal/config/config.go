package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrConfigurationMissing = errors.New("rag configuration missing")

const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderHashing = "hashing"

	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	App       AppConfig       `toml:"app"`
	Auth      AuthConfig      `toml:"auth"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	RabbitMQ  RabbitMQConfig  `toml:"rabbitmq"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	RAG       RAGConfig       `toml:"rag"`
}

type AppConfig struct {
	Name     string `toml:"name"`
	Env      string `toml:"env"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	GinMode  string `toml:"gin_mode"`
	LogLevel string `toml:"log_level"`
}

type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	JWTExpireMinute int    `toml:"jwt_expire_minute"`
}

type DatabaseConfig struct {
	Driver   string `toml:"driver"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DB       string `toml:"db"`
	Params   string `toml:"params"`
	SSLMode  string `toml:"sslmode"`
}

type RedisConfig struct {
	Addr             string `toml:"addr"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	AnswerTTLSeconds int    `toml:"answer_ttl_seconds"`
}

type RabbitMQConfig struct {
	URL          string `toml:"url"`
	AskLogQueue  string `toml:"ask_log_queue"`
	RefreshQueue string `toml:"refresh_queue"`
}

type LLMConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

type EmbeddingConfig struct {
	ProviderOrder     []string       `toml:"provider_order"`
	OpenAI            OpenAIEmbedder `toml:"openai"`
	Ollama            OllamaEmbedder `toml:"ollama"`
	Hashing           HashingConfig  `toml:"hashing"`
	BatchSize         int            `toml:"batch_size"`
	Concurrency       int            `toml:"concurrency"`
	RequestsPerSecond float64        `toml:"requests_per_second"`
	TimeoutSeconds    int            `toml:"timeout_seconds"`
	MaxRetries        int            `toml:"max_retries"`
}

type OpenAIEmbedder struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

type OllamaEmbedder struct {
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

type HashingConfig struct {
	Dimensions int `toml:"dimensions"`
}

type RAGConfig struct {
	ChunkSize           int           `toml:"chunk_size"`
	ChunkOverlap        int           `toml:"chunk_overlap"`
	BoundaryTolerance   int           `toml:"boundary_tolerance"`
	TopK                int           `toml:"top_k"`
	SimilarityThreshold float64       `toml:"similarity_threshold"`
	CacheTTLSeconds     int           `toml:"cache_ttl_seconds"`
	BlockOnRebuild      bool          `toml:"block_on_rebuild"`
	RowLimit            int           `toml:"row_limit"`
	StoreColumns        []string      `toml:"store_columns"`
	CurrencyColumns     []string      `toml:"currency_columns"`
	Tables              []TableConfig `toml:"tables"`
}

// TableConfig names one source table. Empty Columns selects every column.
type TableConfig struct {
	Name       string   `toml:"name"`
	RecordType string   `toml:"record_type"`
	Columns    []string `toml:"columns"`
	KeyColumn  string   `toml:"key_column"`
	OrderBy    string   `toml:"order_by"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		// a [[rag.tables]] list replaces the catalogue instead of merging into it
		cfg.RAG.Tables = nil
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
		if len(cfg.RAG.Tables) == 0 {
			cfg.RAG.Tables = defaultTables()
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) DatabaseDSN() string {
	d := c.Database
	if d.Driver == DriverMySQL {
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", d.User, d.Password, d.Host, d.Port, d.DB, d.Params)
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DB, d.SSLMode)
	if d.Params != "" {
		dsn += " " + d.Params
	}
	return dsn
}

// EmbeddingProviderUsable reports whether the named provider has what it needs to run.
func (c *Config) EmbeddingProviderUsable(name string) bool {
	switch name {
	case ProviderOpenAI:
		return strings.TrimSpace(c.Embedding.OpenAI.APIKey) != "" && c.Embedding.OpenAI.Model != ""
	case ProviderOllama:
		return strings.TrimSpace(c.Embedding.Ollama.BaseURL) != "" && c.Embedding.Ollama.Model != ""
	case ProviderHashing:
		return c.Embedding.Hashing.Dimensions > 0
	default:
		return false
	}
}

// ValidateRAG checks the settings the question-answering pipeline cannot run without.
func (c *Config) ValidateRAG() error {
	var missing []string
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		missing = append(missing, "llm.api_key (LLM_API_KEY)")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		missing = append(missing, "llm.model (LLM_MODEL)")
	}

	order := c.Embedding.ProviderOrder
	if len(order) == 0 || len(order) > 2 {
		missing = append(missing, "embedding.provider_order with one or two providers")
	} else {
		usable := false
		for _, name := range order {
			if c.EmbeddingProviderUsable(name) {
				usable = true
			}
		}
		if !usable {
			missing = append(missing, "a usable embedding provider in "+strings.Join(order, ","))
		}
	}
	if len(c.RAG.Tables) == 0 {
		missing = append(missing, "rag.tables")
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		missing = append(missing, "rag.chunk_size > rag.chunk_overlap >= 0")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, "; "))
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "par-delta-dashboard",
			Env:      "dev",
			Host:     "0.0.0.0",
			Port:     8080,
			GinMode:  "debug",
			LogLevel: "info",
		},
		Auth: AuthConfig{
			JWTExpireMinute: 120,
		},
		Database: DatabaseConfig{
			Driver:  DriverPostgres,
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "postgres",
			DB:      "postgres",
			SSLMode: "require",
		},
		Redis: RedisConfig{
			AnswerTTLSeconds: 300,
		},
		RabbitMQ: RabbitMQConfig{
			AskLogQueue:  "rag.ask_log.persist",
			RefreshQueue: "rag.index.refresh",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4",
			Temperature:    0,
			TimeoutSeconds: 90,
		},
		Embedding: EmbeddingConfig{
			ProviderOrder: []string{ProviderOpenAI, ProviderHashing},
			OpenAI: OpenAIEmbedder{
				BaseURL: "https://api.openai.com/v1",
				Model:   "text-embedding-3-small",
			},
			Ollama: OllamaEmbedder{
				BaseURL:    "http://localhost:11434",
				Model:      "nomic-embed-text",
				Dimensions: 768,
			},
			Hashing:        HashingConfig{Dimensions: 384},
			BatchSize:      100,
			Concurrency:    4,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		RAG: RAGConfig{
			ChunkSize:           1000,
			ChunkOverlap:        200,
			BoundaryTolerance:   100,
			TopK:                5,
			SimilarityThreshold: 0.5,
			CacheTTLSeconds:     3600,
			RowLimit:            1000,
			StoreColumns:        []string{"pc_number", "store_id", "store_number", "primary_location"},
			Tables:              defaultTables(),
		},
	}
}

func defaultTables() []TableConfig {
	return []TableConfig{
		{Name: "donut_sales_hourly", RecordType: "donut sales", Columns: []string{"date", "product_name", "quantity"}, OrderBy: "date desc"},
		{Name: "employee_clockin", RecordType: "clock-in", Columns: []string{"employee_name", "employee_id", "time_in", "time_out", "total_time"}, OrderBy: "time_in desc"},
		{Name: "variance_report_summary", RecordType: "inventory variance", Columns: []string{"reporting_period", "product_name", "qty_variance", "variance"}},
		{Name: "actual_table_labor", RecordType: "actual labor", Columns: []string{"pc_number", "date", "hour_range", "actual_hours", "actual_labor"}, OrderBy: "date desc"},
		{Name: "ideal_table_labor", RecordType: "ideal labor", Columns: []string{"pc_number", "date", "hour_range", "ideal_hours"}, OrderBy: "date desc"},
		{Name: "schedule_table_labor", RecordType: "scheduled labor", Columns: []string{"pc_number", "date", "hour_range", "scheduled_hours"}, OrderBy: "date desc"},
		{Name: "employee_profile", RecordType: "employee profile", Columns: []string{"employee_number", "first_name", "last_name", "primary_position", "primary_location", "status"}, KeyColumn: "employee_number"},
		{Name: "employee_schedules", RecordType: "employee schedule", Columns: []string{"employee_id", "date", "start_time", "end_time"}, OrderBy: "date desc"},
		{Name: "usage_overview", RecordType: "usage", Columns: []string{"date", "product_type", "ordered_qty", "wasted_qty", "waste_percent"}, OrderBy: "date desc"},
		{Name: "stores", RecordType: "store", Columns: []string{"pc_number", "store_name", "address"}, KeyColumn: "pc_number"},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DB = getEnv("DB_NAME", cfg.Database.DB)
	cfg.Database.Params = getEnv("DB_PARAMS", cfg.Database.Params)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.AnswerTTLSeconds = getEnvAsInt("REDIS_ANSWER_TTL_SECONDS", cfg.Redis.AnswerTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.AskLogQueue = getEnv("RABBITMQ_ASK_LOG_QUEUE", cfg.RabbitMQ.AskLogQueue)
	cfg.RabbitMQ.RefreshQueue = getEnv("RABBITMQ_REFRESH_QUEUE", cfg.RabbitMQ.RefreshQueue)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", cfg.LLM.APIKey))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Temperature = getEnvAsFloat("LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Embedding.ProviderOrder = getEnvAsList("EMBEDDING_PROVIDER_ORDER", cfg.Embedding.ProviderOrder)
	cfg.Embedding.OpenAI.BaseURL = getEnv("EMBEDDING_OPENAI_BASE_URL", cfg.Embedding.OpenAI.BaseURL)
	cfg.Embedding.OpenAI.APIKey = getEnv("EMBEDDING_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", cfg.Embedding.OpenAI.APIKey))
	cfg.Embedding.OpenAI.Model = getEnv("EMBEDDING_OPENAI_MODEL", cfg.Embedding.OpenAI.Model)
	cfg.Embedding.OpenAI.Dimensions = getEnvAsInt("EMBEDDING_OPENAI_DIMENSIONS", cfg.Embedding.OpenAI.Dimensions)
	cfg.Embedding.Ollama.BaseURL = getEnv("EMBEDDING_OLLAMA_BASE_URL", cfg.Embedding.Ollama.BaseURL)
	cfg.Embedding.Ollama.Model = getEnv("EMBEDDING_OLLAMA_MODEL", cfg.Embedding.Ollama.Model)
	cfg.Embedding.Hashing.Dimensions = getEnvAsInt("EMBEDDING_HASHING_DIMENSIONS", cfg.Embedding.Hashing.Dimensions)
	cfg.Embedding.BatchSize = getEnvAsInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.Concurrency = getEnvAsInt("EMBEDDING_CONCURRENCY", cfg.Embedding.Concurrency)
	cfg.Embedding.RequestsPerSecond = getEnvAsFloat("EMBEDDING_REQUESTS_PER_SECOND", cfg.Embedding.RequestsPerSecond)
	cfg.Embedding.TimeoutSeconds = getEnvAsInt("EMBEDDING_TIMEOUT_SECONDS", cfg.Embedding.TimeoutSeconds)
	cfg.Embedding.MaxRetries = getEnvAsInt("EMBEDDING_MAX_RETRIES", cfg.Embedding.MaxRetries)

	cfg.RAG.ChunkSize = getEnvAsInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.BoundaryTolerance = getEnvAsInt("RAG_BOUNDARY_TOLERANCE", cfg.RAG.BoundaryTolerance)
	cfg.RAG.TopK = getEnvAsInt("RAG_TOP_K", cfg.RAG.TopK)
	cfg.RAG.SimilarityThreshold = getEnvAsFloat("RAG_SIMILARITY_THRESHOLD", cfg.RAG.SimilarityThreshold)
	cfg.RAG.CacheTTLSeconds = getEnvAsInt("RAG_CACHE_TTL_SECONDS", cfg.RAG.CacheTTLSeconds)
	cfg.RAG.BlockOnRebuild = getEnvAsBool("RAG_BLOCK_ON_REBUILD", cfg.RAG.BlockOnRebuild)
	cfg.RAG.RowLimit = getEnvAsInt("RAG_ROW_LIMIT", cfg.RAG.RowLimit)
	cfg.RAG.Tables = filterTables(cfg.RAG.Tables, getEnvAsList("RAG_TABLES", nil))
}

// filterTables keeps the configured tables named in names, in the order given.
// Unknown names are added with every column selected.
func filterTables(tables []TableConfig, names []string) []TableConfig {
	if len(names) == 0 {
		return tables
	}
	byName := make(map[string]TableConfig, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	out := make([]TableConfig, 0, len(names))
	for _, name := range names {
		if t, ok := byName[name]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, TableConfig{Name: name})
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
