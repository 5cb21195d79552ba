package errors

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast after consecutive collaborator failures. Once
// the cool-down has passed a single probe call is let through; its outcome
// closes or re-opens the circuit. Cancellation by the caller is not counted
// as a failure.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	onChange  func(name string, from, to State)
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures open the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.threshold = n
		}
	}
}

// WithResetTimeout sets the cool-down before a probe is allowed.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.cooldown = d
	}
}

// WithStateChange registers fn to run on every transition. It is called
// with the breaker's lock released.
func WithStateChange(fn func(name string, from, to State)) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// NewCircuitBreaker returns a closed breaker that opens after 5 failures
// and probes again after 30s.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: 5,
		cooldown:  30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// State reports the current state. An open circuit whose cool-down has
// elapsed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state, cb.failures, cb.probing = StateClosed, 0, false
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := Execute(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Execute runs fn through cb and returns its result. It returns
// ErrCircuitOpen without calling fn while the circuit rejects calls. A nil
// cb calls fn directly.
func Execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	if cb == nil {
		return fn()
	}
	probe, err := cb.admit()
	if err != nil {
		var zero T
		return zero, err
	}
	result, err := fn()
	cb.record(probe, err)
	return result, err
}

// cooledDown must be called with mu held.
func (cb *CircuitBreaker) cooledDown() bool {
	return cb.now().Sub(cb.openedAt) > cb.cooldown
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	if cb.state == StateClosed {
		cb.mu.Unlock()
		return false, nil
	}
	if cb.probing || (cb.state == StateOpen && !cb.cooledDown()) {
		cb.mu.Unlock()
		return false, ErrCircuitOpen
	}
	from := cb.state
	cb.state, cb.probing = StateHalfOpen, true
	cb.mu.Unlock()
	cb.notify(from, StateHalfOpen)
	return true, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	if probe {
		cb.probing = false
	}
	from := cb.state
	switch {
	case err == nil:
		cb.state, cb.failures = StateClosed, 0
	case errors.Is(err, context.Canceled):
		if probe {
			// Nothing learned; let the next call probe.
			cb.state = StateOpen
		}
	default:
		cb.failures++
		if probe || cb.failures >= cb.threshold {
			cb.state, cb.openedAt = StateOpen, cb.now()
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onChange != nil && from != to {
		cb.onChange(cb.name, from, to)
	}
}
