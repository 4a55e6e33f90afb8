// Package resilience implements the Resilience Layer: per-agent circuit
// breakers, retry-then-alternate task dispatch, the LLM reprompt/repair
// loop, and partial-result composition for plans where some tasks fail.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/agentmeshio/meshcore/internal/observability"
)

// BreakerState is a circuit breaker's current state.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// circuitBreaker is the per-agent state machine. Transitions: CLOSED->OPEN
// at failureCount>=threshold; OPEN->HALF_OPEN after cooldown elapses;
// HALF_OPEN->CLOSED on one success; HALF_OPEN->OPEN on one failure.
type circuitBreaker struct {
	mu            sync.Mutex
	failureCount  int
	state         BreakerState
	openedAt      time.Time
	probeInFlight bool
}

// Breakers is the table of per-agent circuit breakers (one CircuitBreaker
// entry per spec's "CircuitBreakerState: per-agent"). Entries are stored in
// a sync.Map since each agent's breaker is an independent record.
type Breakers struct {
	table sync.Map // agentID -> *circuitBreaker

	failureThreshold int
	cooldown         time.Duration

	metrics *observability.MetricsManager
}

// NewBreakers constructs a Breakers table. failureThreshold and cooldown
// default to 5 and 30s when zero/non-positive.
func NewBreakers(failureThreshold int, cooldown time.Duration, metrics *observability.MetricsManager) *Breakers {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breakers{failureThreshold: failureThreshold, cooldown: cooldown, metrics: metrics}
}

func (b *Breakers) get(agentID string) *circuitBreaker {
	v, _ := b.table.LoadOrStore(agentID, &circuitBreaker{state: Closed})
	return v.(*circuitBreaker)
}

// PeekOpen reports whether agentID's breaker is currently OPEN, without
// consuming a half-open probe slot. Suitable as registry.BreakerLookup.
func (b *Breakers) PeekOpen(agentID string) bool {
	cb := b.get(agentID)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == Open
}

// Allow reports whether a dispatch attempt to agentID may proceed right
// now. A CLOSED breaker always allows. An OPEN breaker allows once its
// cooldown has elapsed, at which point it transitions to HALF_OPEN and this
// call claims the single permitted probe. A HALF_OPEN breaker allows only
// if no probe is currently in flight.
func (b *Breakers) Allow(agentID string) bool {
	cb := b.get(agentID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.openedAt) >= b.cooldown {
			cb.state = HalfOpen
			cb.probeInFlight = true
			b.transition(agentID, Open, HalfOpen)
			return true
		}
		return false
	case HalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful task response from agentID.
func (b *Breakers) RecordSuccess(agentID string) {
	cb := b.get(agentID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.state = Closed
		cb.failureCount = 0
		cb.probeInFlight = false
		b.transition(agentID, HalfOpen, Closed)
	case Closed:
		cb.failureCount = 0
	}
}

// RecordFailure reports a failed task response from agentID.
func (b *Breakers) RecordFailure(agentID string) {
	cb := b.get(agentID)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.state = Open
		cb.openedAt = time.Now()
		cb.probeInFlight = false
		b.transition(agentID, HalfOpen, Open)
	case Closed:
		cb.failureCount++
		if cb.failureCount >= b.failureThreshold {
			cb.state = Open
			cb.openedAt = time.Now()
			if b.metrics != nil {
				b.metrics.IncrementBreakerTrips(context.Background(), agentID)
			}
			b.transition(agentID, Closed, Open)
		}
	}
}

// State returns agentID's current breaker state.
func (b *Breakers) State(agentID string) BreakerState {
	cb := b.get(agentID)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (b *Breakers) transition(agentID string, from, to BreakerState) {
	if b.metrics != nil {
		b.metrics.IncrementBreakerStateTransitions(context.Background(), agentID, from.String(), to.String())
	}
}
