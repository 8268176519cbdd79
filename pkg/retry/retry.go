package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do runs op with exponential backoff until it succeeds, the context
// ends, maxAttempts is exhausted, or shouldRetry reports the error is
// permanent. A nil shouldRetry retries every error.
func Do(ctx context.Context, maxAttempts int, initial time.Duration, op func() error, shouldRetry func(error) bool) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.RandomizationFactor = 0.2
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// Delay computes the redelivery delay before attempt n (1-based):
// base doubled per prior attempt, capped at max. Queue workers use it
// to space retries of transient failures.
func Delay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
