package resilience

import "time"

// MaxRetryDelay caps every computed retry delay.
const MaxRetryDelay = 24 * time.Hour

// DefaultBaseDelay is the first-attempt backoff.
const DefaultBaseDelay = time.Minute

// Backoff computes exponential retry delays.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// NewBackoff returns a backoff with the given base, capped at MaxRetryDelay.
func NewBackoff(base time.Duration) Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return Backoff{Base: base, Max: MaxRetryDelay}
}

// RetryDelay returns min(base * 2^attempt, max). Negative attempts count as zero.
func (b Backoff) RetryDelay(attempt int) time.Duration {
	limit := b.Max
	if limit <= 0 {
		limit = MaxRetryDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// NextRetryAt returns when a record that failed with f after retryCount
// previous attempts becomes due again. Non-retriable failures return nil.
func (b Backoff) NextRetryAt(now time.Time, f Failure, retryCount int) *time.Time {
	if !f.Retriable {
		return nil
	}
	delay := b.RetryDelay(retryCount)
	if f.RetryAfter > delay {
		delay = f.RetryAfter
	}
	if delay > b.Max && b.Max > 0 {
		delay = b.Max
	}
	at := now.Add(delay)
	return &at
}
