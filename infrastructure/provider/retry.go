package provider

import (
	"context"
	"fmt"
	"time"
)

// retrier executes a function with capped exponential backoff on retryable
// failures.
type retrier struct {
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	maxDelay      time.Duration
}

func defaultRetrier() retrier {
	return retrier{
		maxRetries:    5,
		initialDelay:  2 * time.Second,
		backoffFactor: 2.0,
		maxDelay:      time.Minute,
	}
}

func (r retrier) do(ctx context.Context, fn func() error) error {
	delay := r.initialDelay
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < r.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * r.backoffFactor)
				if delay > r.maxDelay {
					delay = r.maxDelay
				}
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
