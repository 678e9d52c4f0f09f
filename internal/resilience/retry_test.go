// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), RetryConfig{MaxRetries: 3}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_RetriesOnTransientError(t *testing.T) {
	calls := 0
	transient := NewTransientError("temporary failure", nil)

	err := RetryWithBackoff(context.Background(), RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := NewPermanentError("permanent failure", nil)

	err := RetryWithBackoff(context.Background(), RetryConfig{
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
		Multiplier:      2.0,
	}, func(ctx context.Context) error {
		calls++
		return permanent
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retries on permanent error), got %d", calls)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	transient := NewTransientError("always fails", nil)

	err := RetryWithBackoff(context.Background(), RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
	}, func(ctx context.Context) error {
		calls++
		return transient
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 { // initial + 3 retries
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	// Cancel immediately before the first retry delay
	err := RetryWithBackoff(ctx, RetryConfig{
		MaxRetries:      10,
		InitialInterval: 100 * time.Millisecond,
		Multiplier:      1.0,
		OnRetry: func(attempt int, err error) {
			// Cancel during the first retry callback (before the delay wait)
			cancel()
		},
	}, func(ctx context.Context) error {
		calls++
		return NewTransientError("fail", nil)
	})

	if err == nil {
		t.Fatal("expected an error")
	}
	// Should have stopped due to context cancellation
	if calls > 3 {
		t.Errorf("expected few calls before cancellation, got %d", calls)
	}
}

func TestRetryWithBackoff_OnRetryCallback(t *testing.T) {
	retryCalls := 0
	transient := NewTransientError("fail", nil)

	RetryWithBackoff(context.Background(), RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		Multiplier:      2.0,
		OnRetry: func(attempt int, err error) {
			retryCalls++
		},
	}, func(ctx context.Context) error {
		return transient
	})

	if retryCalls != 2 {
		t.Errorf("expected OnRetry called 2 times, got %d", retryCalls)
	}
}

func TestRetryWithBackoff_ExponentialDelayGrowth(t *testing.T) {
	// Verify that delays grow exponentially by measuring timing
	delays := []time.Duration{}
	transient := NewTransientError("fail", nil)
	lastTime := time.Now()

	RetryWithBackoff(context.Background(), RetryConfig{
		MaxRetries:      3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		Multiplier:      2.0,
		Jitter:          false, // disable jitter for deterministic test
		OnRetry: func(attempt int, err error) {
			now := time.Now()
			delays = append(delays, now.Sub(lastTime))
			lastTime = now
		},
	}, func(ctx context.Context) error {
		return transient
	})

	if len(delays) != 3 {
		t.Fatalf("expected 3 delays, got %d", delays)
	}
	// Each delay should be roughly double the previous (with some tolerance)
	if delays[1] < delays[0] {
		t.Errorf("delay[1] (%v) should be >= delay[0] (%v)", delays[1], delays[0])
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		t.Error("MaxRetries should be positive")
	}
	if cfg.Multiplier <= 1.0 {
		t.Error("Multiplier should be > 1.0 for exponential backoff")
	}
	if cfg.InitialInterval <= 0 {
		t.Error("InitialInterval should be positive")
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		t.Error("MaxInterval should be >= InitialInterval")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if !IsRetryable(NewTransientError("temp", nil)) {
		t.Error("transient error should be retryable")
	}
	if IsRetryable(NewPermanentError("perm", nil)) {
		t.Error("permanent error should not be retryable")
	}
}

func TestClassifyStatusError(t *testing.T) {
	cases := []struct {
		code      int
		want      ErrorType
		retryable bool
	}{
		{429, ErrorTypeRateLimit, true},
		{503, ErrorTypeServiceUnavailable, true},
		{504, ErrorTypeTimeout, true},
		{401, ErrorTypePermanent, false},
		{404, ErrorTypeResourceNotFound, false},
		{400, ErrorTypeInvalidInput, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			err := fmt.Errorf("chat completion: %w", &StatusError{StatusCode: tc.code})
			got := ClassifyError(err)
			if got.Type != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got.Type)
			}
			if got.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v", tc.retryable)
			}
		})
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := ClassifyError(context.DeadlineExceeded); got.Type != ErrorTypeTimeout || !got.Retryable {
		t.Errorf("deadline should be a retryable timeout, got %s", got.Type)
	}
	if got := ClassifyError(fmt.Errorf("send: %w", context.Canceled)); got.Type != ErrorTypeCanceled || got.Retryable {
		t.Errorf("cancellation should not be retried, got %s", got.Type)
	}
}

func TestRetryWithBackoff_HonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := RetryWithBackoff(context.Background(), RetryConfig{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      2.0,
	}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &StatusError{StatusCode: 429, RetryAfter: 30 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected to wait for Retry-After, waited %v", elapsed)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
	if got := ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"); got != 0 {
		t.Errorf("expected 0 for http date, got %v", got)
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var transitions []string
	cfg := DefaultCircuitBreakerConfig("llm")
	cfg.FailureThreshold = 2
	cfg.SuccessThreshold = 1
	cfg.Timeout = time.Minute
	cfg.OnStateChange = func(_ string, from, to CircuitBreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	cb := NewCircuitBreaker(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	fail := func(ctx context.Context) error { return NewTransientError("down", nil) }
	ok := func(ctx context.Context) error { return nil }

	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.GetState())
	}

	err := cb.Execute(context.Background(), ok)
	if !IsCircuitBreakerError(err) {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("open breaker must not be retried")
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(context.Background(), ok); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.GetState())
	}
	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, transitions)
	}
}

func TestCircuitBreaker_IgnoresPermanentErrors(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("llm")
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg)

	cb.Execute(context.Background(), func(ctx context.Context) error {
		return &StatusError{StatusCode: 400}
	})
	if cb.GetState() != StateClosed {
		t.Errorf("bad requests should not open the breaker, got %s", cb.GetState())
	}
}

func TestRetryWithResult(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("llm"))
	calls := 0
	got, err := RetryWithResult(context.Background(), RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, Multiplier: 1}, cb,
		func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("connection timeout")
			}
			return "ok", nil
		})
	if err != nil || got != "ok" {
		t.Fatalf("expected ok, got %q, %v", got, err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
