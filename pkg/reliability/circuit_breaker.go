package reliability

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is cooling down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the current circuit breaker state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

// CircuitBreaker stops an account from hammering a broken server: after
// maxFailures consecutive failures it opens for the cooldown period, then
// lets a single probe attempt through (half-open).
type CircuitBreaker struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	state       BreakerState
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 2 * time.Minute
	}
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current state, transitioning open→half-open when the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	if cb.state == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// refresh must be called with cb.mu held.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.cooldown {
		cb.state = StateHalfOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}
