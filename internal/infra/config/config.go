package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	LLM  LLMConfig  `yaml:"llm"`
	Auth AuthConfig `yaml:"auth"`
	RAG  RAGConfig  `yaml:"rag"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig contains the default chat-completions provider settings,
// overridden per-provider by RAG.Providers below.
type LLMConfig struct {
	APIKey         string  `yaml:"apiKey"`
	BaseURL        string  `yaml:"baseUrl"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embeddingModel"`
	Temperature    float32 `yaml:"temperature"`
}

// RAGConfig controls the hybrid-retrieval RAG service.
type RAGConfig struct {
	VectorDim       int              `yaml:"vectorDim"`
	MaxFileMB       int              `yaml:"maxFileMb"`
	MaxPreviewChars int              `yaml:"maxPreviewChars"`
	MaxBatchFiles   int              `yaml:"maxBatchFiles"`
	DefaultTopK     int              `yaml:"defaultTopK"`
	Chunking        ChunkingConfig   `yaml:"chunking"`
	Providers       []ProviderConfig `yaml:"providers"`
	Reranker        RerankerConfig   `yaml:"reranker"`
	Storage         RAGStorageConfig `yaml:"storage"`
	Redis           RedisConfig      `yaml:"redis"`
	Postgres        PostgresConfig   `yaml:"postgres"`
	Worker          RAGWorkerConfig  `yaml:"worker"`
}

// ChunkingConfig holds chunk sizing loaded from file and environment. No
// component reads it: the chunkers use the built-in sizes chosen by
// rag.ChunkerForFileType.
type ChunkingConfig struct {
	ChunkSize     int `yaml:"chunkSize"`
	ChunkOverlap  int `yaml:"chunkOverlap"`
	MinChunkChars int `yaml:"minChunkChars"`
}

// ProviderConfig describes one OpenAI-compatible LLM provider entry in the
// router's priority-ordered failover chain (§4.6).
type ProviderConfig struct {
	Label   string        `yaml:"label"`
	APIKey  string        `yaml:"apiKey"`
	BaseURL string        `yaml:"baseUrl"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RerankerConfig controls the cross-encoder rerank stage.
type RerankerConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// RAGStorageConfig configures object storage for document originals and
// chat attachments.
type RAGStorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// RAGWorkerConfig toggles background ingestion processing.
type RAGWorkerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret       string         `yaml:"jwtSecret"`
	AccessTokenTTL  time.Duration  `yaml:"accessTokenTtl"`
	RefreshTokenTTL time.Duration  `yaml:"refreshTokenTtl"`
	Postgres        PostgresConfig `yaml:"postgres"`
}

// RedisConfig contains connection information for cache storage.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_READ_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = parsed
		}
	}
	if v := os.Getenv("HTTP_WRITE_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = parsed
		}
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	if v := os.Getenv("RAG_VECTOR_DIM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.VectorDim = parsed
		}
	}
	if v := os.Getenv("RAG_MAX_FILE_MB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.MaxFileMB = parsed
		}
	}
	if v := os.Getenv("RAG_MAX_PREVIEW_CHARS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.MaxPreviewChars = parsed
		}
	}
	if v := os.Getenv("RAG_MAX_BATCH_FILES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.MaxBatchFiles = parsed
		}
	}
	if v := os.Getenv("RAG_DEFAULT_TOP_K"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.DefaultTopK = parsed
		}
	}
	if v := os.Getenv("RAG_CHUNK_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Chunking.ChunkSize = parsed
		}
	}
	if v := os.Getenv("RAG_CHUNK_OVERLAP"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Chunking.ChunkOverlap = parsed
		}
	}
	if v := os.Getenv("RAG_MIN_CHUNK_CHARS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Chunking.MinChunkChars = parsed
		}
	}
	if v := os.Getenv("RAG_RERANKER_ENABLED"); v != "" {
		cfg.RAG.Reranker.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RAG_RERANKER_BASE_URL"); v != "" {
		cfg.RAG.Reranker.BaseURL = v
	}
	if v := os.Getenv("RAG_RERANKER_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.RAG.Reranker.Timeout = parsed
		}
	}
	if v := os.Getenv("RAG_STORAGE_ENDPOINT"); v != "" {
		cfg.RAG.Storage.Endpoint = v
	}
	if v := os.Getenv("RAG_STORAGE_ACCESS_KEY"); v != "" {
		cfg.RAG.Storage.AccessKey = v
	}
	if v := os.Getenv("RAG_STORAGE_SECRET_KEY"); v != "" {
		cfg.RAG.Storage.SecretKey = v
	}
	if v := os.Getenv("RAG_STORAGE_BUCKET"); v != "" {
		cfg.RAG.Storage.Bucket = v
	}
	if v := os.Getenv("RAG_STORAGE_REGION"); v != "" {
		cfg.RAG.Storage.Region = v
	}
	if v := os.Getenv("RAG_POSTGRES_DSN"); v != "" {
		cfg.RAG.Postgres.DSN = v
	}
	if v := os.Getenv("RAG_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("RAG_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Postgres.MinConns = int32(parsed)
		}
	}
	if v := os.Getenv("RAG_WORKER_ENABLED"); v != "" {
		cfg.RAG.Worker.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RAG_REDIS_ENABLED"); v != "" {
		cfg.RAG.Redis.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.RAG.Redis.Addr = v
	}
	if v := os.Getenv("RAG_PROVIDER_GROQ_API_KEY"); v != "" {
		setProviderField(cfg, "groq", func(p *ProviderConfig) { p.APIKey = v })
	}
	if v := os.Getenv("RAG_PROVIDER_CEREBRAS_API_KEY"); v != "" {
		setProviderField(cfg, "cerebras", func(p *ProviderConfig) { p.APIKey = v })
	}
	if v := os.Getenv("RAG_PROVIDER_OPENROUTER_API_KEY"); v != "" {
		setProviderField(cfg, "openrouter", func(p *ProviderConfig) { p.APIKey = v })
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AUTH_ACCESS_TOKEN_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Auth.AccessTokenTTL = parsed
		}
	}
	if v := os.Getenv("AUTH_REFRESH_TOKEN_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Auth.RefreshTokenTTL = parsed
		}
	}
	if v := os.Getenv("AUTH_POSTGRES_DSN"); v != "" {
		cfg.Auth.Postgres.DSN = v
	}
	if v := os.Getenv("AUTH_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Auth.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("AUTH_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Auth.Postgres.MinConns = int32(parsed)
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_ENABLED"); v != "" {
		cfg.HTTP.Retry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RETRY_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Retry.MaxAttempts = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_BASE_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.Retry.BaseBackoff = parsed
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address: ":8080",
			AllowedOrigins: []string{
				"*",
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/v1/auth/verify",
					"/api/v1/documents/upload",
					"/api/v1/documents/upload-batch",
				},
			},
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.2,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			Postgres: PostgresConfig{
				DSN:      "",
				MaxConns: 5,
				MinConns: 1,
			},
		},
		RAG: RAGConfig{
			VectorDim:       1536,
			MaxFileMB:       20,
			MaxPreviewChars: 240,
			MaxBatchFiles:   10,
			DefaultTopK:     8,
			Chunking: ChunkingConfig{
				ChunkSize:     800,
				ChunkOverlap:  120,
				MinChunkChars: 40,
			},
			Providers: []ProviderConfig{
				{Label: "groq", BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile", Timeout: 60 * time.Second},
				{Label: "cerebras", BaseURL: "https://api.cerebras.ai/v1", Model: "llama3.3-70b", Timeout: 20 * time.Second},
				{Label: "openrouter", BaseURL: "https://openrouter.ai/api/v1", Model: "meta-llama/llama-3.3-70b-instruct", Timeout: 20 * time.Second},
			},
			Reranker: RerankerConfig{
				Enabled: false,
				Timeout: 10 * time.Second,
			},
			Storage: RAGStorageConfig{},
			Redis: RedisConfig{
				Enabled: false,
				Addr:    "",
			},
			Postgres: PostgresConfig{
				DSN:      "",
				MaxConns: 10,
				MinConns: 2,
			},
			Worker: RAGWorkerConfig{
				Enabled: true,
			},
		},
	}
}

// setProviderField mutates the named provider's config in place, if present.
func setProviderField(cfg *Config, label string, mutate func(p *ProviderConfig)) {
	for i := range cfg.RAG.Providers {
		if cfg.RAG.Providers[i].Label == label {
			mutate(&cfg.RAG.Providers[i])
			return
		}
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if strings.TrimSpace(c.LLM.EmbeddingModel) == "" {
		return errors.New("llm.embeddingModel cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret cannot be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return errors.New("auth.accessTokenTtl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("auth.refreshTokenTtl must be positive")
	}
	if c.RAG.VectorDim <= 0 {
		return errors.New("rag.vectorDim must be positive")
	}
	if c.RAG.MaxFileMB <= 0 {
		return errors.New("rag.maxFileMb must be positive")
	}
	if c.RAG.MaxPreviewChars < 0 {
		return errors.New("rag.maxPreviewChars cannot be negative")
	}
	if c.RAG.MaxBatchFiles <= 0 {
		return errors.New("rag.maxBatchFiles must be positive")
	}
	if c.RAG.DefaultTopK <= 0 {
		return errors.New("rag.defaultTopK must be positive")
	}
	if c.RAG.Chunking.ChunkSize <= 0 {
		return errors.New("rag.chunking.chunkSize must be positive")
	}
	if c.RAG.Chunking.ChunkOverlap < 0 || c.RAG.Chunking.ChunkOverlap >= c.RAG.Chunking.ChunkSize {
		return errors.New("rag.chunking.chunkOverlap must be non-negative and smaller than chunkSize")
	}
	if c.RAG.Chunking.MinChunkChars < 0 {
		return errors.New("rag.chunking.minChunkChars cannot be negative")
	}
	if len(c.RAG.Providers) == 0 {
		return errors.New("rag.providers must list at least one LLM provider")
	}
	for _, p := range c.RAG.Providers {
		if strings.TrimSpace(p.Label) == "" {
			return errors.New("rag.providers entries must have a label")
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			return fmt.Errorf("rag.providers[%s].baseUrl cannot be empty", p.Label)
		}
	}
	if c.RAG.Reranker.Enabled && strings.TrimSpace(c.RAG.Reranker.BaseURL) == "" {
		return errors.New("rag.reranker.baseUrl cannot be empty when reranker is enabled")
	}
	if c.RAG.Redis.Enabled && strings.TrimSpace(c.RAG.Redis.Addr) == "" {
		return errors.New("rag.redis.addr cannot be empty when rag.redis is enabled")
	}
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var result []string
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
