package resilience

import (
	"sync/atomic"
	"time"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  5 * time.Minute,
	}
}

// BreakerState is a point-in-time view of the breaker.
type BreakerState struct {
	Open            bool       `json:"open"`
	FailureCount    int        `json:"failure_count"`
	Threshold       int        `json:"threshold"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	RetryAt         *time.Time `json:"retry_at,omitempty"`
}

// Breaker counts consecutive transport failures and rejects calls once the
// threshold is reached inside the cool-down window. Counters are atomics;
// concurrent callers may race between load and store, which only shifts the
// trip point by a few calls.
type Breaker struct {
	config      BreakerConfig
	now         func() time.Time
	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanos, 0 when none
}

// NewBreaker creates a breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultBreakerConfig().Threshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{config: config, now: time.Now}
}

// Allow returns a *CircuitOpenError while the breaker is open.
func (b *Breaker) Allow() error {
	now := b.now()
	count := b.failures.Load()
	if count < int64(b.config.Threshold) {
		return nil
	}

	last := time.Unix(0, b.lastFailure.Load())
	retryAt := last.Add(b.config.Cooldown)
	if !now.Before(retryAt) {
		b.reset()
		return nil
	}

	return &CircuitOpenError{Failures: int(count), RetryAt: retryAt}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (b *Breaker) RecordSuccess() {
	b.reset()
}

// RecordFailure extends the failure streak. A failure arriving after the
// cool-down since the previous one starts a new streak.
func (b *Breaker) RecordFailure() {
	now := b.now()
	prev := b.lastFailure.Swap(now.UnixNano())
	if prev != 0 && now.Sub(time.Unix(0, prev)) >= b.config.Cooldown {
		b.failures.Store(1)
		return
	}
	if b.failures.Add(1) == int64(b.config.Threshold) {
		recordBreakerTrip()
	}
}

// Snapshot reports the current state.
func (b *Breaker) Snapshot() BreakerState {
	count := int(b.failures.Load())
	state := BreakerState{
		FailureCount: count,
		Threshold:    b.config.Threshold,
	}

	if nanos := b.lastFailure.Load(); nanos != 0 {
		last := time.Unix(0, nanos)
		state.LastFailureTime = &last
		retryAt := last.Add(b.config.Cooldown)
		if count >= b.config.Threshold && b.now().Before(retryAt) {
			state.Open = true
			state.RetryAt = &retryAt
		}
	}

	return state
}

func (b *Breaker) reset() {
	b.failures.Store(0)
	b.lastFailure.Store(0)
}
