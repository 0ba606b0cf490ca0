/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ai

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // healthy, calls pass through
	CircuitOpen                         // tripped, calls rejected immediately
	CircuitHalfOpen                     // probing, one call allowed
)

// String returns the string representation of a CircuitState.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing model provider. After threshold
// consecutive failures it opens; after resetTimeout one trial call is let
// through, and its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         CircuitState
	failures      int
	threshold     int
	resetTimeout  time.Duration
	openedAt      time.Time
	nowFunc       func() time.Time
	onStateChange func(from, to CircuitState)
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithNowFunc injects a clock function for testing.
func WithNowFunc(f func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.nowFunc = f
	}
}

// WithOnStateChange sets a callback for state transitions. It runs outside
// the breaker lock.
func WithOnStateChange(f func(from, to CircuitState)) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = f
	}
}

// NewCircuitBreaker creates a circuit breaker with the given failure threshold
// and reset timeout.
func NewCircuitBreaker(threshold int, timeout time.Duration, opts ...CircuitBreakerOption) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	cb := &CircuitBreaker{
		state:        CircuitClosed,
		threshold:    threshold,
		resetTimeout: timeout,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow returns true if a call should proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	switch cb.state {
	case CircuitClosed:
		cb.mu.Unlock()
		return true
	case CircuitOpen:
		if cb.nowFunc().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false
		}
		from := cb.transitionLocked(CircuitHalfOpen)
		cb.mu.Unlock()
		cb.notify(from, CircuitHalfOpen)
		return true
	default:
		// Half-open: the trial call is already in flight.
		cb.mu.Unlock()
		return false
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failures = 0
	if cb.state != CircuitHalfOpen {
		cb.mu.Unlock()
		return
	}
	from := cb.transitionLocked(CircuitClosed)
	cb.mu.Unlock()
	cb.notify(from, CircuitClosed)
}

// RecordFailure counts a failure and opens the circuit when the threshold is
// reached or the half-open trial call failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failures++
	if cb.state != CircuitHalfOpen && cb.failures < cb.threshold {
		cb.mu.Unlock()
		return
	}
	cb.openedAt = cb.nowFunc()
	from := cb.transitionLocked(CircuitOpen)
	cb.mu.Unlock()
	cb.notify(from, CircuitOpen)
}

// Release gives back a half-open trial call whose outcome is unknown, such as a
// call cancelled by its caller. The circuit returns to open with its
// original openedAt, so the next Allow admits another one.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	if cb.state != CircuitHalfOpen {
		cb.mu.Unlock()
		return
	}
	from := cb.transitionLocked(CircuitOpen)
	cb.mu.Unlock()
	cb.notify(from, CircuitOpen)
}

// State returns the current circuit state (thread-safe).
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transitionLocked sets the new state and returns the previous one.
// Caller MUST hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) CircuitState {
	from := cb.state
	cb.state = to
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.onStateChange != nil && from != to {
		cb.onStateChange(from, to)
	}
}
