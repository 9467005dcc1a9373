package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "animebot/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ENV", "INGEST_WORKERS", "INGEST_BATCH_SIZE", "EMBEDDING_MAX_RETRIES",
		"EMBEDDING_BACKOFF_MS", "EMBEDDING_TIMEOUT_MS", "EMBEDDING_MODEL", "INGEST_GENRE_DELIMITER"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.EmbeddingMaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.EmbeddingBackoff)
	assert.Equal(t, 30*time.Second, cfg.EmbeddingTimeout)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, ",", cfg.GenreDelimiter)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("INGEST_WORKERS", "8")
	t.Setenv("INGEST_BATCH_SIZE", "250")
	t.Setenv("EMBEDDING_BACKOFF_MS", "20")
	t.Setenv("EMBEDDING_TIMEOUT_MS", "1500")
	t.Setenv("EMBED_CACHE_TTL_HOURS", "2")
	t.Setenv("INGEST_GENRE_DELIMITER", "|")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 20*time.Millisecond, cfg.EmbeddingBackoff)
	assert.Equal(t, 1500*time.Millisecond, cfg.EmbeddingTimeout)
	assert.Equal(t, 2*time.Hour, cfg.EmbedCacheTTL)
	assert.Equal(t, "|", cfg.GenreDelimiter)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Neo4jURI:            "bolt://localhost:7687",
			Neo4jUser:           "neo4j",
			EmbeddingURL:        "http://localhost:11434",
			EmbeddingModel:      "nomic-embed-text",
			SourcePath:          "anime.csv",
			CheckpointPath:      "anime.checkpoint",
			Workers:             4,
			BatchSize:           100,
			EmbeddingMaxRetries: 3,
			EmbeddingTimeout:    30 * time.Second,
			StoreMaxRetries:     3,
			GenreDelimiter:      ",",
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Neo4jURI = ""
	var missing *apperrors.ErrConfigMissingRequired
	require.ErrorAs(t, cfg.Validate(), &missing)
	assert.Equal(t, "NEO4J_URI", missing.Field)

	cfg = valid()
	cfg.BatchSize = 0
	var invalid *apperrors.ErrConfigValidationFailed
	require.ErrorAs(t, cfg.Validate(), &invalid)
	assert.Equal(t, "INGEST_BATCH_SIZE", invalid.Field)

	cfg = valid()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.EmbeddingTimeout = 0
	require.ErrorAs(t, cfg.Validate(), &invalid)
	assert.Equal(t, "EMBEDDING_TIMEOUT_MS", invalid.Field)
}
