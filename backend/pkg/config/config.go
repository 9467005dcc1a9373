package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "animebot/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Env      string
	LogLevel string

	// Neo4j
	Neo4jURI         string
	Neo4jUser        string
	Neo4jPassword    string
	Neo4jDatabase    string
	Neo4jMaxPoolSize int

	// Embedding service (OpenAI-compatible)
	EmbeddingURL        string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingDimensions int // 0 accepts whatever the model returns
	EmbeddingMaxRetries int
	EmbeddingBackoff    time.Duration
	EmbeddingTimeout    time.Duration // per attempt

	// Ingestion
	SourcePath       string
	CheckpointPath   string
	Workers          int
	BatchSize        int
	GenreDelimiter   string
	MaxMalformedRows int // 0 never aborts on malformed rows
	StoreMaxRetries  int
	StoreBackoff     time.Duration
	ProgressInterval int

	// Embedding cache
	RedisURL      string
	EmbedCacheTTL time.Duration

	// Status server, disabled when empty
	StatusAddr string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", ""),
		Neo4jURI:            getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:           getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:       getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:       getEnv("NEO4J_DATABASE", ""),
		Neo4jMaxPoolSize:    getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		EmbeddingURL:        getEnv("EMBEDDING_URL", "http://localhost:11434"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		EmbeddingMaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", 3),
		EmbeddingBackoff:    getEnvMillis("EMBEDDING_BACKOFF_MS", 500),
		EmbeddingTimeout:    getEnvMillis("EMBEDDING_TIMEOUT_MS", 30000),
		SourcePath:          getEnv("INGEST_SOURCE", "data/anime-dataset-cleaned.csv"),
		CheckpointPath:      getEnv("INGEST_CHECKPOINT", "data/ingest.checkpoint"),
		Workers:             getEnvInt("INGEST_WORKERS", 4),
		BatchSize:           getEnvInt("INGEST_BATCH_SIZE", 100),
		GenreDelimiter:      getEnv("INGEST_GENRE_DELIMITER", ","),
		MaxMalformedRows:    getEnvInt("INGEST_MAX_MALFORMED", 0),
		StoreMaxRetries:     getEnvInt("STORE_MAX_RETRIES", 3),
		StoreBackoff:        getEnvMillis("STORE_BACKOFF_MS", 1000),
		ProgressInterval:    getEnvInt("INGEST_PROGRESS_INTERVAL", 500),
		RedisURL:            getEnv("REDIS_URL", ""),
		EmbedCacheTTL:       time.Duration(getEnvInt("EMBED_CACHE_TTL_HOURS", 24*7)) * time.Hour,
		StatusAddr:          getEnv("STATUS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.EmbeddingURL == "" {
		return apperrors.NewConfigMissingRequired("EMBEDDING_URL")
	}
	if c.EmbeddingModel == "" {
		return apperrors.NewConfigMissingRequired("EMBEDDING_MODEL")
	}
	if c.SourcePath == "" {
		return apperrors.NewConfigMissingRequired("INGEST_SOURCE")
	}
	if c.CheckpointPath == "" {
		return apperrors.NewConfigMissingRequired("INGEST_CHECKPOINT")
	}
	if c.Workers < 1 {
		return apperrors.NewConfigValidationFailed("INGEST_WORKERS", "must be at least 1")
	}
	if c.BatchSize < 1 {
		return apperrors.NewConfigValidationFailed("INGEST_BATCH_SIZE", "must be at least 1")
	}
	if c.EmbeddingMaxRetries < 1 {
		return apperrors.NewConfigValidationFailed("EMBEDDING_MAX_RETRIES", "must be at least 1")
	}
	if c.EmbeddingTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("EMBEDDING_TIMEOUT_MS", "must be positive")
	}
	if c.StoreMaxRetries < 1 {
		return apperrors.NewConfigValidationFailed("STORE_MAX_RETRIES", "must be at least 1")
	}
	if c.GenreDelimiter == "" {
		return apperrors.NewConfigValidationFailed("INGEST_GENRE_DELIMITER", "must not be empty")
	}
	if c.MaxMalformedRows < 0 {
		return apperrors.NewConfigValidationFailed("INGEST_MAX_MALFORMED", "must not be negative")
	}
	// Neo4j password and embedding API key are optional for local development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
