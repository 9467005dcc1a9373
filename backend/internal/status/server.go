// Package status exposes the progress of a running ingestion over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"animebot/backend/internal/ingest"
	"animebot/backend/pkg/logger"
)

// ProgressSource yields live run statistics.
type ProgressSource interface {
	Snapshot() ingest.Stats
}

// Server serves /health and /progress.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewRouter builds the status routes.
func NewRouter(progress ProgressSource, production bool) *gin.Engine {
	log := logger.Named("status")

	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/progress", func(c *gin.Context) {
		stats := progress.Snapshot()

		rate := 0.0
		if secs := stats.Elapsed.Seconds(); secs > 0 {
			rate = float64(stats.Finalized()) / secs
		}

		c.JSON(http.StatusOK, gin.H{
			"stats":        stats,
			"finalized":    stats.Finalized(),
			"elapsed":      stats.Elapsed.Round(time.Millisecond).String(),
			"rows_per_sec": rate,
		})
	})

	return router
}

// New creates a server on addr. It does not listen until Start.
func New(addr string, progress ProgressSource, production bool) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(progress, production),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("status"),
	}
}

// Start serves in the background. Listen failures are logged; the status
// server never stops an ingestion.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", zap.Error(err))
		}
	}()
	s.logger.Info("Status server started", zap.String("addr", s.srv.Addr))
}

// Shutdown stops the server, waiting for open requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
