package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "animebot/backend/pkg/errors"
)

const sampleCatalog = `anime_id,Name,Synopsis,Type,Episodes,Aired,Status,Duration,Rating,Score,Image URL,Genres,Source
1,Cowboy Bebop,Bounty hunters.,TV,26.0,1998,Finished Airing,24 min,R - 17+,8.75,https://img/1.jpg,"Action, Sci-Fi",Original
5,Tengoku no Tobira,Movie.,Movie,1,2001,Finished Airing,115 min,R - 17+,8.38,https://img/5.jpg,"Action, Sci-Fi",Original
6,Trigun,Vash.,TV,26,1998,Finished Airing,24 min,PG-13,8.22,https://img/6.jpg,"Action, Adventure",Manga
`

// embeddingServer serves an OpenAI-compatible /v1/embeddings endpoint.
func embeddingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "nomic-embed-text",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.25, 0.5, 0.75}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "anime.csv")
	require.NoError(t, os.WriteFile(source, []byte(sampleCatalog), 0o644))

	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("INGEST_SOURCE", source)
	t.Setenv("INGEST_CHECKPOINT", filepath.Join(dir, "ingest.checkpoint"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("STATUS_ADDR", "")
	return dir
}

func TestRunCommand_DryRun(t *testing.T) {
	dir := setupEnv(t)
	srv, calls := embeddingServer(t)
	t.Setenv("EMBEDDING_URL", srv.URL)

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out

	err := app.Run([]string{"ingest", "run", "--dry-run", "--workers", "2"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, out.String(), "committed=3 skipped=0 failed=0")
	assert.Contains(t, out.String(), "Anime    3")
	assert.Contains(t, out.String(), "Genre    3")
	assert.Contains(t, out.String(), "IN_GENRE      6")

	_, err = os.Stat(filepath.Join(dir, "ingest.checkpoint"))
	assert.True(t, os.IsNotExist(err), "dry run must not write the checkpoint")
}

func TestRunCommand_DryRunResumesFromCheckpoint(t *testing.T) {
	dir := setupEnv(t)
	srv, calls := embeddingServer(t)
	t.Setenv("EMBEDDING_URL", srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ingest.checkpoint"), []byte("2\n"), 0o644))

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out

	require.NoError(t, app.Run([]string{"ingest", "run", "--dry-run"}))
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, out.String(), "committed=1")
}

func TestRunCommand_InvalidFlags(t *testing.T) {
	setupEnv(t)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"ingest", "run", "--dry-run", "--workers", "0"})

	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestRunCommand_MissingSourceIsFatal(t *testing.T) {
	dir := setupEnv(t)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"ingest", "run", "--dry-run", "--source", filepath.Join(dir, "missing.csv")})

	var srcErr *apperrors.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.True(t, srcErr.Fatal)
}

func TestResetCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "ingest.checkpoint")

	t.Run("declined prompt keeps checkpoint", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("7\n"), 0o644))
		app := newApp()
		app.Writer = &bytes.Buffer{}
		app.Reader = strings.NewReader("no\n")

		require.NoError(t, app.Run([]string{"ingest", "reset"}))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("confirmed prompt removes checkpoint", func(t *testing.T) {
		app := newApp()
		app.Writer = &bytes.Buffer{}
		app.Reader = strings.NewReader("yes\n")

		require.NoError(t, app.Run([]string{"ingest", "reset"}))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("yes flag skips prompt", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("7\n"), 0o644))
		app := newApp()
		app.Writer = &bytes.Buffer{}

		require.NoError(t, app.Run([]string{"ingest", "reset", "-y"}))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestNotifyOnce_CancelsOnFirstSignal(t *testing.T) {
	ctx, stop := notifyOnce(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}
