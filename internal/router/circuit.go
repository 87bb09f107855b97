package router

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // healthy — requests flow
	StateOpen                         // unhealthy — requests fail fast
	StateHalfOpen                     // probing — limited requests allowed
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Stats is a read-only snapshot of breaker state.
type Stats struct {
	State               CircuitState
	ConsecutiveFailures int
	LastFailureAt       time.Time
	HalfOpenCallsUsed   int
}

// CircuitBreaker is the per-provider failure isolation state machine. One
// instance per provider adapter, in-memory for the process lifetime; under
// horizontal scaling each instance holds its own view, an accepted
// eventual-consistency trade-off.
type CircuitBreaker struct {
	name string

	mu sync.Mutex

	state         CircuitState
	failures      int
	halfOpenCalls int
	lastFailure   time.Time

	failureThreshold int
	timeout          time.Duration
	halfOpenMaxCalls int

	onTransition func(provider, to string)
}

// NewCircuitBreaker creates a closed breaker for the named provider.
// onTransition may be nil; when set it fires once per state change.
func NewCircuitBreaker(name string, failureThreshold int, timeout time.Duration, halfOpenMaxCalls int, onTransition func(provider, to string)) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: failureThreshold,
		timeout:          timeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		onTransition:     onTransition,
	}
}

// Allow reports whether a request may go through, consuming a probe slot when
// half-open. A half-open breaker whose probe budget is exhausted without
// resolution is forced back to open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeEnterHalfOpen()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			cb.transition(StateOpen)
			cb.lastFailure = time.Now()
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful request. A single half-open success
// closes the breaker; a success while closed clears the consecutive failure
// count so unrelated past failures never accumulate.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateClosed)
		cb.failures = 0
		cb.halfOpenCalls = 0
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// Probe failed — reopen and restart the failure timer
		cb.transition(StateOpen)
		cb.halfOpenCalls = 0
	}
}

// State returns the effective state without mutating the breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.effectiveState()
}

// GetStats returns a snapshot without mutating the breaker.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:               cb.effectiveState(),
		ConsecutiveFailures: cb.failures,
		LastFailureAt:       cb.lastFailure,
		HalfOpenCallsUsed:   cb.halfOpenCalls,
	}
}

// Reset returns the breaker to closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	cb.halfOpenCalls = 0
}

// effectiveState computes open→half_open expiry without committing it.
// Must be called with mu held.
func (cb *CircuitBreaker) effectiveState() CircuitState {
	if cb.state == StateOpen && cb.timeoutElapsed() {
		return StateHalfOpen
	}
	return cb.state
}

// maybeEnterHalfOpen commits the open→half_open transition once the timeout
// since the last recorded failure has elapsed. Must be called with mu held.
func (cb *CircuitBreaker) maybeEnterHalfOpen() {
	if cb.state == StateOpen && cb.timeoutElapsed() {
		cb.transition(StateHalfOpen)
		cb.halfOpenCalls = 0
	}
}

func (cb *CircuitBreaker) timeoutElapsed() bool {
	return !cb.lastFailure.IsZero() && time.Since(cb.lastFailure) >= cb.timeout
}

// transition moves to a new state and emits the structured event.
// Must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	slog.Info("circuit breaker transition",
		"provider", cb.name,
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", cb.failures,
		"half_open_calls", cb.halfOpenCalls,
	)
	if cb.onTransition != nil {
		cb.onTransition(cb.name, to.String())
	}
}
