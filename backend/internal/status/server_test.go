package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animebot/backend/internal/ingest"
)

type fixedProgress ingest.Stats

func (f fixedProgress) Snapshot() ingest.Stats { return ingest.Stats(f) }

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(fixedProgress{}, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestProgressEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(fixedProgress{
		RunID:      "run-1",
		Running:    true,
		Committed:  8,
		Skipped:    1,
		Failed:     1,
		Checkpoint: 10,
		Elapsed:    2 * time.Second,
	}, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/progress", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Stats      ingest.Stats `json:"stats"`
		Finalized  int64        `json:"finalized"`
		Elapsed    string       `json:"elapsed"`
		RowsPerSec float64      `json:"rows_per_sec"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "run-1", response.Stats.RunID)
	assert.Equal(t, int64(10), response.Stats.Checkpoint)
	assert.Equal(t, int64(10), response.Finalized)
	assert.Equal(t, "2s", response.Elapsed)
	assert.InDelta(t, 5.0, response.RowsPerSec, 1e-9)
}

func TestUnknownRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(fixedProgress{}, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/progress", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
