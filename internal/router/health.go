package router

import (
	"sync"
	"time"
)

// HealthTracker owns the circuit breakers for all providers.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold int
	timeout          time.Duration
	halfOpenMaxCalls int
	onTransition     func(provider, to string)
}

// NewHealthTracker creates a health tracker with the given circuit breaker config.
func NewHealthTracker(failureThreshold int, timeout time.Duration, halfOpenMaxCalls int, onTransition func(provider, to string)) *HealthTracker {
	return &HealthTracker{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		timeout:          timeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		onTransition:     onTransition,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a provider.
func (ht *HealthTracker) GetBreaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	// Double-check after acquiring write lock
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(provider, ht.failureThreshold, ht.timeout, ht.halfOpenMaxCalls, ht.onTransition)
	ht.breakers[provider] = cb
	return cb
}

// IsAvailable reports whether the provider's breaker currently admits
// requests, without consuming a half-open probe slot.
func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.GetBreaker(provider).State() != StateOpen
}

// Snapshot returns breaker stats for every tracked provider.
func (ht *HealthTracker) Snapshot() map[string]Stats {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]Stats, len(ht.breakers))
	for name, cb := range ht.breakers {
		out[name] = cb.GetStats()
	}
	return out
}
