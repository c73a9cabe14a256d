package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gamemart/ledger/internal/domain"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker implements a per-upstream circuit breaker. Keys are
// upstream operations such as "gateway.initialize".
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	halfOpenMax   int
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	probes      int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		halfOpenMax:   1,
		now:           time.Now,
	}
}

// Check returns whether the circuit for the given key allows a request.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		cb.circuits[key] = &circuit{state: CircuitClosed}
		return domain.GuardResult{Allowed: true}
	}

	switch c.state {
	case CircuitOpen:
		elapsed := cb.now().Sub(c.lastFailure)
		if elapsed > cb.resetTimeout {
			c.state = CircuitHalfOpen
			c.probes = 1
			return domain.GuardResult{Allowed: true}
		}
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("circuit open for %s, resets in %s", key, (cb.resetTimeout - elapsed).Round(time.Second)),
			Guard:   "circuit_breaker",
		}
	case CircuitHalfOpen:
		if c.probes >= cb.halfOpenMax {
			return domain.GuardResult{
				Allowed: false,
				Reason:  "circuit half-open, probe in flight",
				Guard:   "circuit_breaker",
			}
		}
		c.probes++
		return domain.GuardResult{Allowed: true}
	default:
		return domain.GuardResult{Allowed: true}
	}
}

// State returns the current state for key. Unknown keys are closed.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}

// RecordSuccess closes a half-open circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		return
	}
	c.state = CircuitClosed
	c.failures = 0
	c.probes = 0
}

// RecordFailure counts a failure for key. A failed half-open probe reopens
// the circuit immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[key] = c
	}

	c.failures++
	c.lastFailure = cb.now()

	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
		c.probes = 0
	}
}

// Do runs fn behind the circuit for key. An open circuit short-circuits to
// ExternalServiceFailure without calling fn.
func (cb *CircuitBreaker) Do(ctx context.Context, key string, fn func() error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return domain.ErrExternalService(res.Reason, nil)
	}
	if err := fn(); err != nil {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return nil
}
