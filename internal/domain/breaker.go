package domain

import (
	"sync"
	"time"
)

// CircuitBreaker tracks consecutive execution failures and enforces a
// cooldown before the controller talks to the exchange again. Es seguro
// para uso concurrente: los envíos de un mismo tick pueden registrar
// resultados desde varias goroutines.
type CircuitBreaker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	maxFailures         int
	cooldownUntil       time.Time
	cooldownDuration    time.Duration
	trippedReason       string

	now func() time.Time // test hook
}

// NewCircuitBreaker creates a breaker that trips after maxFailures
// consecutive failures and stays open for cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		cooldownDuration: cooldown,
		now:              time.Now,
	}
}

// Allow returns true if submissions may proceed (circuit closed).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return !cb.now().Before(cb.cooldownUntil)
}

// RecordFailure counts a failed submission and may trip the breaker.
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.maxFailures {
		cb.cooldownUntil = cb.now().Add(cb.cooldownDuration)
		cb.consecutiveFailures = 0
		cb.trippedReason = reason
	}
}

// RecordSuccess resets the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.trippedReason = ""
}

// CooldownUntil devuelve hasta cuándo está abierto el circuito.
func (cb *CircuitBreaker) CooldownUntil() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.cooldownUntil
}

// TrippedReason devuelve el motivo del último disparo, o "" si está cerrado.
func (cb *CircuitBreaker) TrippedReason() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trippedReason
}

// SetClock overrides the breaker's clock. Tests only.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}
