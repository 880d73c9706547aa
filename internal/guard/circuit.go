// Package guard protects the service and its upstreams: a sliding-window limiter
// for callers and a circuit breaker for outbound lookups.
package guard

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while an upstream is being shed.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker sheds calls to an upstream after consecutive failures, then lets
// one trial call through once resetTimeout has passed.
type CircuitBreaker struct {
	mu            sync.Mutex
	upstreams     map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	trialing    bool
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &CircuitBreaker{
		upstreams:     make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

// Do runs fn unless the upstream's circuit is open. Only errors for which
// countable returns true trip the breaker; a nil countable counts every error.
// An uncounted error says nothing about the upstream and leaves its state as is.
func (cb *CircuitBreaker) Do(upstream string, fn func() error, countable func(error) bool) error {
	if err := cb.acquire(upstream); err != nil {
		return err
	}
	err := fn()
	switch {
	case err == nil:
		cb.recordSuccess(upstream)
	case countable == nil || countable(err):
		cb.recordFailure(upstream)
	default:
		cb.release(upstream)
	}
	return err
}

// State reports the current state for upstream.
func (cb *CircuitBreaker) State(upstream string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.upstreams[upstream]; ok {
		return c.state
	}
	return CircuitClosed
}

func (cb *CircuitBreaker) acquire(upstream string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.upstreams[upstream]
	if !ok {
		cb.upstreams[upstream] = &circuit{state: CircuitClosed}
		return nil
	}

	switch c.state {
	case CircuitOpen:
		wait := cb.resetTimeout - cb.now().Sub(c.lastFailure)
		if wait > 0 {
			return fmt.Errorf("%w for %s, retry in %s", ErrCircuitOpen, upstream, wait.Round(time.Second))
		}
		c.state = CircuitHalfOpen
		c.trialing = true
		return nil
	case CircuitHalfOpen:
		if c.trialing {
			return fmt.Errorf("%w for %s, trial call in flight", ErrCircuitOpen, upstream)
		}
		c.trialing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordSuccess(upstream string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.upstreams[upstream]
	c.state = CircuitClosed
	c.failures = 0
	c.trialing = false
}

func (cb *CircuitBreaker) release(upstream string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.upstreams[upstream].trialing = false
}

func (cb *CircuitBreaker) recordFailure(upstream string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.upstreams[upstream]
	c.failures++
	c.lastFailure = cb.now()
	c.trialing = false
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
	}
}
