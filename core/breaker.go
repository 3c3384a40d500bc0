package core

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a delivery channel breaker
type BreakerState string

const (
	// BreakerClosed lets deliveries through
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects deliveries until the cooldown elapses
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen lets a single trial delivery through
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned by Allow while the breaker rejects deliveries
var ErrBreakerOpen = errors.New("delivery channel breaker is open")

// BreakerConfig holds the thresholds of a Breaker
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int
	// Cooldown is how long the breaker stays open before a trial delivery
	Cooldown time.Duration
}

// DefaultBreakerConfig suits operator notification channels
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 3,
		Cooldown:    time.Minute,
	}
}

// Breaker stops hammering a failing delivery channel.
type Breaker struct {
	cfg      BreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
	now      func() time.Time
	mu       sync.Mutex
}

// NewBreaker creates a closed Breaker. Non-positive thresholds fall back to
// DefaultBreakerConfig values.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, state: BreakerClosed, now: time.Now}
}

// Allow returns nil when a delivery may be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return nil
	case BreakerHalfOpen:
		if b.trial {
			return ErrBreakerOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

// Success records a delivered message and closes the breaker
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.trial = false
}

// Failure records a failed delivery and returns the resulting state
func (b *Breaker) Failure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trial = false
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.MaxFailures {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
	return b.state
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
