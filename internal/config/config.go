// Package config loads service configuration from the environment.
//
// A .env file in the working directory is honored when present, real
// environment variables win. Every knob has a default that produces a
// working local instance.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Tiers     TierConfig
	Chunking  ChunkingConfig
	Budget    BudgetConfig
	Retrieval RetrievalConfig
	Embedding EmbeddingConfig
	Logging   LoggingConfig
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// StorageConfig configures persistence: metadata store, artifact cache,
// and the on-disk upload spool.
type StorageConfig struct {
	DatabaseURL   string
	RedisURL      string
	UploadDir     string
	InboxDir      string
	MaxFileSizeMB int64
	CacheTTL      time.Duration
}

// TierConfig holds the tier classification thresholds in tokens.
type TierConfig struct {
	Tier1Max int
	Tier2Max int
	Tier3Max int
}

// ChunkingConfig holds the chunker token geometry.
type ChunkingConfig struct {
	TargetTokens  int
	OverlapTokens int
	MaxTokens     int
}

// BudgetConfig holds the context window partition in tokens.
type BudgetConfig struct {
	TotalWindow      int
	ReservedSystem   int
	ReservedHistory  int
	ReservedResponse int
}

// RetrievalConfig configures query-time behavior.
type RetrievalConfig struct {
	TopK             int
	AssembleTimeout  time.Duration
	TrimPatternsFile string
}

// EmbeddingConfig configures the embedding gateway.
type EmbeddingConfig struct {
	OpenAIKey string
	Model     string
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string
	Format   string
	FilePath string
}

// Load reads configuration from the environment, applying defaults.
// The returned config is validated.
func Load() (*Config, error) {
	// Best effort, a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:        getEnv("HTTP_ADDR", ":8000"),
			CORSOrigins: getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		},
		Storage: StorageConfig{
			DatabaseURL:   getEnv("DATABASE_URL", "sqlite://./data/sdch.db"),
			RedisURL:      getEnv("REDIS_URL", ""),
			UploadDir:     getEnv("UPLOAD_DIR", "./data/uploads"),
			InboxDir:      getEnv("INBOX_DIR", ""),
			MaxFileSizeMB: int64(getEnvAsInt("MAX_FILE_SIZE_MB", 50)),
			CacheTTL:      time.Duration(getEnvAsInt("REDIS_CACHE_TTL", 0)) * time.Second,
		},
		Tiers: TierConfig{
			Tier1Max: getEnvAsInt("TIER1_MAX_TOKENS", 12000),
			Tier2Max: getEnvAsInt("TIER2_MAX_TOKENS", 25000),
			Tier3Max: getEnvAsInt("TIER3_MAX_TOKENS", 50000),
		},
		Chunking: ChunkingConfig{
			TargetTokens:  getEnvAsInt("CHUNK_TARGET_TOKENS", 512),
			OverlapTokens: getEnvAsInt("CHUNK_OVERLAP_TOKENS", 64),
			MaxTokens:     getEnvAsInt("CHUNK_MAX_TOKENS", 768),
		},
		Budget: BudgetConfig{
			TotalWindow:      getEnvAsInt("TOTAL_CONTEXT_WINDOW", 200000),
			ReservedSystem:   getEnvAsInt("RESERVED_SYSTEM_TOKENS", 2000),
			ReservedHistory:  getEnvAsInt("RESERVED_HISTORY_TOKENS", 10000),
			ReservedResponse: getEnvAsInt("RESERVED_RESPONSE_TOKENS", 4000),
		},
		Retrieval: RetrievalConfig{
			TopK:             getEnvAsInt("RAG_TOP_K", 10),
			AssembleTimeout:  time.Duration(getEnvAsInt("ASSEMBLE_TIMEOUT_SECONDS", 120)) * time.Second,
			TrimPatternsFile: getEnv("TRIM_PATTERNS_FILE", ""),
		},
		Embedding: EmbeddingConfig{
			OpenAIKey: getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", "auto"),
			FilePath: getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MaxFileSizeBytes returns the upload ceiling in bytes.
func (s StorageConfig) MaxFileSizeBytes() int64 {
	return s.MaxFileSizeMB * 1024 * 1024
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Tiers.Tier1Max <= 0 {
		return fmt.Errorf("TIER1_MAX_TOKENS must be positive, got %d", c.Tiers.Tier1Max)
	}
	if c.Tiers.Tier2Max <= c.Tiers.Tier1Max {
		return fmt.Errorf("TIER2_MAX_TOKENS (%d) must exceed TIER1_MAX_TOKENS (%d)",
			c.Tiers.Tier2Max, c.Tiers.Tier1Max)
	}
	if c.Tiers.Tier3Max <= c.Tiers.Tier2Max {
		return fmt.Errorf("TIER3_MAX_TOKENS (%d) must exceed TIER2_MAX_TOKENS (%d)",
			c.Tiers.Tier3Max, c.Tiers.Tier2Max)
	}
	if c.Chunking.TargetTokens <= 0 {
		return fmt.Errorf("CHUNK_TARGET_TOKENS must be positive, got %d", c.Chunking.TargetTokens)
	}
	if c.Chunking.MaxTokens < c.Chunking.TargetTokens {
		return fmt.Errorf("CHUNK_MAX_TOKENS (%d) must be at least CHUNK_TARGET_TOKENS (%d)",
			c.Chunking.MaxTokens, c.Chunking.TargetTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS (%d) must be in [0, CHUNK_TARGET_TOKENS)",
			c.Chunking.OverlapTokens)
	}
	reserved := c.Budget.ReservedSystem + c.Budget.ReservedHistory + c.Budget.ReservedResponse
	if reserved >= c.Budget.TotalWindow {
		return fmt.Errorf("reserved tokens (%d) exhaust the context window (%d)",
			reserved, c.Budget.TotalWindow)
	}
	if c.Storage.MaxFileSizeMB <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", c.Storage.MaxFileSizeMB)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Storage.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	return nil
}

// getEnv reads a string variable with a fallback default.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an integer variable with a fallback default.
// Unparseable values fall back to the default.
func getEnvAsInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads a comma-separated variable with a fallback default.
func getEnvAsSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
