// Package breaker implements the per-(service_type, provider) circuit
// breaker state machine and the exponential-backoff-with-jitter retry
// policy that wraps every vendor call (C6).
package breaker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/airenas/voxsum/internal/pkg/provider"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

const (
	failureThreshold = 5
	baseCooldown     = 60 * time.Second
	maxCooldown      = 30 * time.Minute
)

type key struct {
	serviceType provider.ServiceType
	provider    string
}

type circuit struct {
	state           State
	consecutiveFail int
	cooldown        time.Duration
	openedAt        time.Time
	nextProbeAt     time.Time
	halfOpenBusy    bool
}

// HealthSink receives breaker transitions so the Health Monitor can
// reflect them in its score without breaker importing health (avoids an
// import cycle; health.Monitor satisfies this interface).
type HealthSink interface {
	SetBreakerOpen(st provider.ServiceType, name string)
	SetBreakerHalfOpen(st provider.ServiceType, name string)
	ClearBreakerOverride(st provider.ServiceType, name string)
}

// Manager tracks one circuit per (service_type, provider).
type Manager struct {
	mu       sync.Mutex
	circuits map[key]*circuit
	health   HealthSink
}

// NewManager builds a breaker manager; health may be nil if no
// health-score feedback is wired.
func NewManager(health HealthSink) *Manager {
	return &Manager{circuits: map[key]*circuit{}, health: health}
}

func (m *Manager) get(k key) *circuit {
	c, ok := m.circuits[k]
	if !ok {
		c = &circuit{state: Closed, cooldown: baseCooldown}
		m.circuits[k] = c
	}
	return c
}

// Allow reports whether a call to (serviceType, name) may proceed right
// now, transitioning Open -> HalfOpen when the cooldown has elapsed. A
// HalfOpen circuit allows exactly one concurrent probe call.
func (m *Manager) Allow(st provider.ServiceType, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{st, name}
	c := m.get(k)
	switch c.state {
	case Closed:
		return true
	case Open:
		if time.Now().Before(c.nextProbeAt) {
			return false
		}
		c.state = HalfOpen
		c.halfOpenBusy = false
		if m.health != nil {
			m.health.SetBreakerHalfOpen(st, name)
		}
		fallthrough
	case HalfOpen:
		if c.halfOpenBusy {
			return false
		}
		c.halfOpenBusy = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit (from HalfOpen) or resets the
// consecutive failure counter (from Closed).
func (m *Manager) RecordSuccess(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{st, name}
	c := m.get(k)
	switch c.state {
	case HalfOpen:
		c.state = Closed
		c.consecutiveFail = 0
		c.cooldown = baseCooldown
		c.halfOpenBusy = false
		if m.health != nil {
			m.health.ClearBreakerOverride(st, name)
		}
	case Closed:
		c.consecutiveFail = 0
	}
}

// RecordFailure increments the failure count, opening the circuit once
// the threshold is crossed (or immediately, from HalfOpen); the cooldown
// doubles on each reopen, capped at maxCooldown.
func (m *Manager) RecordFailure(st provider.ServiceType, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{st, name}
	c := m.get(k)
	now := time.Now()
	switch c.state {
	case HalfOpen:
		c.consecutiveFail++
		m.open(st, name, c, now)
	case Closed:
		c.consecutiveFail++
		if c.consecutiveFail >= failureThreshold {
			m.open(st, name, c, now)
		}
	}
}

func (m *Manager) open(st provider.ServiceType, name string, c *circuit, now time.Time) {
	wasOpenAlready := c.state == Open
	c.state = Open
	c.halfOpenBusy = false
	c.openedAt = now
	if wasOpenAlready || c.cooldown == 0 {
		c.cooldown = baseCooldown
	} else if c.consecutiveFail > failureThreshold {
		c.cooldown *= 2
		if c.cooldown > maxCooldown {
			c.cooldown = maxCooldown
		}
	}
	c.nextProbeAt = now.Add(c.cooldown)
	if m.health != nil {
		m.health.SetBreakerOpen(st, name)
	}
}

// State returns the current breaker state for diagnostics.
func (m *Manager) State(st provider.ServiceType, name string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key{st, name}).state
}

// RetryPolicy implements base-delay/exponential/jitter retry for
// transient errors: 500ms base, factor 2, up to 3 attempts, jitter in
// [0, 0.3*delay).
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxAttempts int
	JitterFrac  float64
}

// DefaultRetryPolicy matches the spec's stated defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 500 * time.Millisecond, Factor: 2, MaxAttempts: 3, JitterFrac: 0.3}
}

// Delay returns the backoff duration before attempt (1-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	jitter := d * p.JitterFrac * rand.Float64()
	return time.Duration(d + jitter)
}

// Do runs fn up to MaxAttempts times, retrying only when fn's error is a
// *provider.Error classified Retriable. It returns the last error on
// exhaustion. Every attempt should be preceded by a fresh selector call
// by the caller — Do only governs the wait between the caller's own
// retries, it does not re-select a provider itself.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		var perr *provider.Error
		if pe, ok := lastErr.(*provider.Error); ok {
			perr = pe
		}
		if perr == nil || !perr.Retriable() || attempt == p.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
