// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxRetries      int                          // Maximum number of retry attempts
	InitialInterval time.Duration                // Initial retry interval
	MaxInterval     time.Duration                // Maximum retry interval
	Multiplier      float64                      // Exponential backoff multiplier (e.g. 2.0 doubles each attempt)
	Jitter          bool                         // Add up to 25% random jitter to spread retries
	OnRetry         func(attempt int, err error) // Optional callback invoked before each retry
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// RemoteRetryConfig returns retry configuration for a remote detector endpoint.
func RemoteRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// maxRetryAfter bounds server-suggested waits.
const maxRetryAfter = time.Minute

// RetryableOperation represents an operation that can be retried.
type RetryableOperation func(ctx context.Context) error

// backoff returns the delay before attempt n (n >= 1):
// InitialInterval * Multiplier^(n-1), capped at MaxInterval.
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(c.InitialInterval)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
	}
	if c.Jitter {
		delay += delay * 0.25 * rand.Float64()
	}
	if c.MaxInterval > 0 {
		return min(time.Duration(delay), c.MaxInterval)
	}
	return time.Duration(delay)
}

// RetryWithBackoff executes an operation with exponential backoff. Only
// retryable errors are retried; a server-suggested RetryAfter replaces the
// computed delay when it is longer.
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation RetryableOperation) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := config.backoff(attempt)
			if c := ClassifyError(lastErr); c != nil && c.RetryAfter > delay {
				delay = min(c.RetryAfter, maxRetryAfter)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			if config.OnRetry != nil {
				config.OnRetry(attempt, lastErr)
			}
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if !ClassifyError(err).IsRetryable() {
			return err
		}
	}

	return lastErr
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker protection.
// An open breaker fails the call without further attempts.
func RetryWithCircuitBreaker(ctx context.Context, retryConfig RetryConfig, cb *CircuitBreaker, operation RetryableOperation) error {
	return RetryWithBackoff(ctx, retryConfig, func(ctx context.Context) error {
		return cb.Execute(ctx, operation)
	})
}

// RetryableFunc is a convenience type for retryable functions that return a value.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithResult executes a function that returns a result and error with retry logic.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, cb *CircuitBreaker, fn RetryableFunc[T]) (T, error) {
	var result T
	op := func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	}
	var err error
	if cb != nil {
		err = RetryWithCircuitBreaker(ctx, config, cb, op)
	} else {
		err = RetryWithBackoff(ctx, config, op)
	}
	return result, err
}

// IsRetryable reports whether an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).IsRetryable()
}
