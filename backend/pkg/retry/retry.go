// Package retry runs operations with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable decides whether a failed attempt may be retried.
	// A nil Retryable retries every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping after failed attempt n (0-based).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Delay returns the wait after failed attempt n (0-based): base * 2^n.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// Do calls op until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. It returns the number of attempts made and
// the last error. Waits select on ctx so they never block other goroutines.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	if p.MaxAttempts <= 0 {
		return 0, ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt, errors.Join(lastErr, err)
			}
			return attempt, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt + 1, nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return attempt + 1, lastErr
		}

		// Don't sleep after the last attempt
		if attempt == p.MaxAttempts-1 {
			return attempt + 1, lastErr
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	return p.MaxAttempts, lastErr
}
