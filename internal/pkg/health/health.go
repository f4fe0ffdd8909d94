// Package health maintains a rolling [0,1] health score per
// (service_type, provider), decayed on failure and recovered on success,
// and overridden by circuit breaker state (C3).
package health

import (
	"sync"

	"github.com/airenas/voxsum/internal/pkg/provider"
)

const (
	// decayFactor is the multiplicative penalty applied on each
	// consecutive failure.
	decayFactor = 0.5
	// recoveryStep is the additive credit applied on each success.
	recoveryStep = 0.2
	// halfOpenCap bounds the score while a breaker probes recovery.
	halfOpenCap = 0.5
)

type key struct {
	serviceType provider.ServiceType
	provider    string
}

// Monitor tracks per-provider health scores, read-dominant with writes
// serialized per key via a single map mutex (the cardinality here —
// providers, not tasks — makes one lock sufficient).
type Monitor struct {
	mu     sync.RWMutex
	scores map[key]float64
	forced map[key]float64 // breaker-imposed ceiling/floor, if any
}

// New builds a monitor; every provider implicitly starts at 1.0 the
// first time it is observed.
func New() *Monitor {
	return &Monitor{scores: map[key]float64{}, forced: map[key]float64{}}
}

// RecordSuccess applies the additive recovery step, capped at 1.0.
func (m *Monitor) RecordSuccess(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{st, name}
	s := m.scoreLocked(k) + recoveryStep
	if s > 1 {
		s = 1
	}
	m.scores[k] = s
}

// RecordFailure applies the multiplicative decay.
func (m *Monitor) RecordFailure(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{st, name}
	m.scores[k] = m.scoreLocked(k) * decayFactor
}

// SetBreakerOpen forces the score to 0 while the circuit is open.
func (m *Monitor) SetBreakerOpen(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced[key{st, name}] = 0
}

// SetBreakerHalfOpen caps the score at halfOpenCap while probing.
func (m *Monitor) SetBreakerHalfOpen(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced[key{st, name}] = halfOpenCap
}

// ClearBreakerOverride removes any forced ceiling, restoring the raw
// rolling score once the breaker closes.
func (m *Monitor) ClearBreakerOverride(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forced, key{st, name})
}

// Get returns the current score for (service_type, provider).
func (m *Monitor) Get(st provider.ServiceType, name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := key{st, name}
	raw := m.scoreLocked(k)
	if cap, ok := m.forced[k]; ok {
		if cap < raw {
			return cap
		}
		if cap == 0 {
			return 0
		}
	}
	return raw
}

func (m *Monitor) scoreLocked(k key) float64 {
	s, ok := m.scores[k]
	if !ok {
		return 1.0
	}
	return s
}
