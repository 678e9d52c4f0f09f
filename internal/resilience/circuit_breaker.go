// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is matched by every *CircuitBreakerError
var ErrCircuitOpen = errors.New("circuit open")

// CircuitBreakerState is the breaker position guarding a remote endpoint
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // calls pass
	StateOpen                                // calls fail fast until the cooldown ends
	StateHalfOpen                            // a limited number of probes pass
)

var stateNames = [...]string{StateClosed: "CLOSED", StateOpen: "OPEN", StateHalfOpen: "HALF_OPEN"}

func (s CircuitBreakerState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a breaker
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the breaker
	SuccessThreshold int           // probe successes that close it again
	Timeout          time.Duration // cooldown before probing
	MaxRequests      int           // concurrent probes while half-open
	IsFailure        func(error) bool
	OnStateChange    func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig opens after five consecutive endpoint
// failures and probes again after thirty seconds. Only retryable errors
// count against the endpoint.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
		IsFailure:        IsRetryable,
	}
}

// CircuitBreaker fails calls fast while an endpoint keeps failing
type CircuitBreaker struct {
	config CircuitBreakerConfig
	now    func() time.Time

	mu             sync.Mutex
	state          CircuitBreakerState
	consecutive    int
	openedAt       time.Time
	probes         int
	probeSuccesses int
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.IsFailure == nil {
		config.IsFailure = IsRetryable
	}
	if config.MaxRequests < 1 {
		config.MaxRequests = 1
	}
	return &CircuitBreaker{config: config, now: time.Now}
}

// Execute runs fn unless the breaker rejects the call
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// transition is reported after the lock is released
type transition struct{ from, to CircuitBreakerState }

func (cb *CircuitBreaker) notify(changes []transition) {
	if cb.config.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		cb.config.OnStateChange(cb.config.Name, c.from, c.to)
	}
}

// moveTo must be called with mu held
func (cb *CircuitBreaker) moveTo(to CircuitBreakerState, changes []transition) []transition {
	if cb.state == to {
		return changes
	}
	changes = append(changes, transition{cb.state, to})
	cb.state = to
	cb.probes, cb.probeSuccesses = 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if to == StateClosed {
		cb.consecutive = 0
	}
	return changes
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var changes []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changes)
	}()

	if cb.state == StateOpen {
		wait := cb.config.Timeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return cb.rejection(fmt.Sprintf("%d consecutive failures, retry in %v", cb.consecutive, wait.Round(time.Second)), wait)
		}
		changes = cb.moveTo(StateHalfOpen, changes)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.config.MaxRequests {
			return cb.rejection(fmt.Sprintf("%d probe(s) already in flight", cb.probes), 0)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) rejection(detail string, wait time.Duration) *CircuitBreakerError {
	return &CircuitBreakerError{
		Name:    cb.config.Name,
		State:   cb.state,
		RetryIn: wait,
		Message: fmt.Sprintf("circuit breaker '%s' is %s: %s", cb.config.Name, cb.state, detail),
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	var changes []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changes)
	}()

	failed := cb.config.IsFailure(err)
	switch cb.state {
	case StateHalfOpen:
		cb.probes--
		if failed {
			changes = cb.moveTo(StateOpen, changes)
			return
		}
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.config.SuccessThreshold {
			changes = cb.moveTo(StateClosed, changes)
		}
	case StateClosed:
		if !failed {
			cb.consecutive = 0
			return
		}
		cb.consecutive++
		if cb.consecutive >= cb.config.FailureThreshold {
			changes = cb.moveTo(StateOpen, changes)
		}
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changes := cb.moveTo(StateClosed, nil)
	cb.openedAt = time.Time{}
	cb.mu.Unlock()
	cb.notify(changes)
}

// CircuitBreakerError is returned for calls the breaker rejected
type CircuitBreakerError struct {
	Name    string
	State   CircuitBreakerState
	RetryIn time.Duration
	Message string
}

func (e *CircuitBreakerError) Error() string {
	return e.Message
}

func (e *CircuitBreakerError) Unwrap() error {
	return ErrCircuitOpen
}

// IsCircuitBreakerError reports whether err is a breaker rejection
func IsCircuitBreakerError(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
