package graph

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperrors "animebot/backend/pkg/errors"
	"animebot/backend/pkg/logger"
	"animebot/backend/pkg/retry"
)

// Writer commits batches of operations atomically, retrying failed
// transactions a bounded number of times.
type Writer struct {
	store  Store
	policy retry.Policy
	logger *zap.Logger
}

// NewWriter creates a writer. maxAttempts counts the first try.
func NewWriter(store Store, maxAttempts int, baseDelay time.Duration) *Writer {
	w := &Writer{
		store:  store,
		logger: logger.Named("writer"),
	}
	w.policy = retry.Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			w.logger.Warn("Retrying batch commit",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
		},
	}
	return w
}

// Commit applies ops as one transaction. It returns *errors.StoreWriteError
// once every attempt has failed; nothing from the batch is then applied.
func (w *Writer) Commit(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}

	start := time.Now()
	attempts, err := retry.Do(ctx, w.policy, func(ctx context.Context) error {
		return w.store.RunTransaction(ctx, ops)
	})
	if err != nil {
		w.logger.Error("Batch commit failed",
			zap.Int("batch_ops", len(ops)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return apperrors.NewStoreWriteError(len(ops), attempts, err)
	}

	w.logger.Debug("Batch committed",
		zap.Int("batch_ops", len(ops)),
		zap.Int("attempts", attempts),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}
