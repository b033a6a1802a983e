package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_RetryDelay(t *testing.T) {
	b := NewBackoff(time.Minute)

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"negative attempt", -1, time.Minute},
		{"first attempt", 0, time.Minute},
		{"second attempt", 1, 2 * time.Minute},
		{"third attempt", 2, 4 * time.Minute},
		{"tenth attempt", 10, 1024 * time.Minute},
		{"capped", 11, 24 * time.Hour},
		{"far beyond cap", 1000, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, b.RetryDelay(tt.attempt))
		})
	}
}

func TestBackoff_RetryDelay_Monotonic(t *testing.T) {
	for _, base := range []time.Duration{time.Second, time.Minute, 7 * time.Minute, 5 * time.Hour} {
		b := NewBackoff(base)
		prev := b.RetryDelay(0)
		for n := 1; n < 200; n++ {
			cur := b.RetryDelay(n)
			require.GreaterOrEqual(t, cur, prev, "base %v attempt %d", base, n)
			require.LessOrEqual(t, cur, MaxRetryDelay)
			prev = cur
		}
	}
}

func TestNewBackoff_DefaultBase(t *testing.T) {
	b := NewBackoff(0)
	assert.Equal(t, DefaultBaseDelay, b.Base)
	assert.Equal(t, MaxRetryDelay, b.Max)
}

func TestBackoff_NextRetryAt(t *testing.T) {
	b := NewBackoff(time.Minute)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("non-retriable has no retry time", func(t *testing.T) {
		assert.Nil(t, b.NextRetryAt(now, FailureOf(KindInvalidRecipient), 0))
	})

	t.Run("kind delay dominates early attempts", func(t *testing.T) {
		at := b.NextRetryAt(now, FailureOf(KindRateLimit), 0)
		require.NotNil(t, at)
		assert.Equal(t, now.Add(15*time.Minute), *at)
	})

	t.Run("exponential delay dominates later attempts", func(t *testing.T) {
		at := b.NextRetryAt(now, FailureOf(KindNetwork), 5)
		require.NotNil(t, at)
		assert.Equal(t, now.Add(32*time.Minute), *at)
	})

	t.Run("quota waits a day", func(t *testing.T) {
		at := b.NextRetryAt(now, FailureOf(KindQuotaExceeded), 0)
		require.NotNil(t, at)
		assert.Equal(t, now.Add(24*time.Hour), *at)
	})
}
