package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"animebot/backend/internal/catalog"
	apperrors "animebot/backend/pkg/errors"
	"animebot/backend/pkg/logger"
	"animebot/backend/pkg/retry"
)

// EmbeddingService is the subset of *openai.Client used for embeddings.
type EmbeddingService interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Cache stores vectors by key. Implementations may be remote; the adapter
// treats every cache error as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// EmbeddingOptions tunes retries and validation.
type EmbeddingOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Timeout bounds each attempt. Zero means defaultAttemptTimeout.
	Timeout time.Duration
	// Dimensions, when > 0, is the expected vector length.
	Dimensions int
	Cache      Cache
	// CacheKey maps model and text hash to a cache key.
	CacheKey func(model, textKey string) string
}

// EmbeddingAdapter turns text into vectors through an OpenAI-compatible
// embeddings endpoint (Ollama, LiteLLM, OpenAI).
type EmbeddingAdapter struct {
	client     EmbeddingService
	model      string
	dimensions int
	cache      Cache
	cacheKey   func(model, textKey string) string
	timeout    time.Duration
	policy     retry.Policy
	logger     *zap.Logger
}

const defaultAttemptTimeout = 30 * time.Second

var (
	// errTerminal marks failures that retrying cannot fix.
	errTerminal = errors.New("terminal embedding failure")
	// errAttemptTimeout marks an attempt cut off by its own deadline.
	errAttemptTimeout = errors.New("embedding attempt timed out")
)

// NewEmbeddingAdapter creates an adapter for the server at baseURL.
func NewEmbeddingAdapter(baseURL, apiKey, model string, opts EmbeddingOptions) *EmbeddingAdapter {
	// Local servers ignore the key but the client requires one
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return NewEmbeddingAdapterWithService(openai.NewClientWithConfig(config), model, opts)
}

// NewEmbeddingAdapterWithService creates an adapter over any EmbeddingService.
func NewEmbeddingAdapterWithService(svc EmbeddingService, model string, opts EmbeddingOptions) *EmbeddingAdapter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAttemptTimeout
	}
	if opts.CacheKey == nil {
		opts.CacheKey = func(model, textKey string) string { return "embed:" + model + ":" + textKey }
	}

	a := &EmbeddingAdapter{
		client:     svc,
		model:      model,
		dimensions: opts.Dimensions,
		cache:      opts.Cache,
		cacheKey:   opts.CacheKey,
		timeout:    opts.Timeout,
		logger:     logger.Named("embedding"),
	}
	a.policy = retry.Policy{
		MaxAttempts: opts.MaxRetries,
		BaseDelay:   opts.BaseDelay,
		Retryable:   isRetryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			a.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
		},
	}
	return a
}

// Model returns the embedding model name.
func (a *EmbeddingAdapter) Model() string {
	return a.model
}

// Embed returns the vector for text. Once all attempts fail, or a terminal
// error occurs, it returns *errors.EmbeddingError.
func (a *EmbeddingAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	key := a.cacheKey(a.model, catalog.TextKey(text))
	if vec, ok := a.lookup(ctx, key); ok {
		return vec, nil
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(a.model),
	}

	var vec []float32
	attempts, err := retry.Do(ctx, a.policy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		resp, err := a.client.CreateEmbeddings(attemptCtx, req)
		if err != nil {
			// The caller's context is still live, so only this attempt expired
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s: %v", errAttemptTimeout, a.timeout, err)
			}
			return err
		}
		vec, err = a.extract(resp)
		return err
	})
	if err != nil {
		retryable := isRetryable(err)
		a.logger.Error("Embedding request failed",
			zap.String("model", a.model),
			zap.Int("attempts", attempts),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		return nil, apperrors.NewEmbeddingError(a.model, attempts, retryable, err)
	}

	a.store(ctx, key, vec)
	return vec, nil
}

func (a *EmbeddingAdapter) extract(resp openai.EmbeddingResponse) ([]float32, error) {
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", errTerminal)
	}
	vec := resp.Data[0].Embedding
	if a.dimensions > 0 && len(vec) != a.dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", errTerminal, len(vec), a.dimensions)
	}
	return vec, nil
}

func (a *EmbeddingAdapter) lookup(ctx context.Context, key string) ([]float32, bool) {
	if a.cache == nil {
		return nil, false
	}
	vec, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if ok && a.dimensions > 0 && len(vec) != a.dimensions {
		return nil, false
	}
	return vec, ok
}

func (a *EmbeddingAdapter) store(ctx context.Context, key string, vec []float32) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, key, vec); err != nil {
		a.logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}

// isRetryable reports whether another attempt could succeed. Client errors
// other than timeouts and rate limits are terminal.
func isRetryable(err error) bool {
	if errors.Is(err, errTerminal) {
		return false
	}
	if errors.Is(err, errAttemptTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status >= 400 && status < 500 {
		return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return true
}
