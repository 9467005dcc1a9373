package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVector_RoundTrip(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3.4028235e38}

	got, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestEncodeVector_LittleEndian(t *testing.T) {
	// 1.0 is 0x3f800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, EncodeVector([]float32{1}))
}

func TestDecodeVector_BadLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "embed:nomic-embed-text:abc", Key("nomic-embed-text", "abc"))
}

func TestRedisCache_GetSet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	c, err := NewRedisCache(ctx, url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	key := Key("test-model", "redis-cache-test")
	require.NoError(t, c.Set(ctx, key, []float32{1, 2, 3}))

	vec, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)

	_, ok, err = c.Get(ctx, Key("test-model", "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}
