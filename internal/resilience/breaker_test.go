package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreakers(3, time.Minute, nil)
	require.Equal(t, Closed, b.State("a1"))

	b.RecordFailure("a1")
	b.RecordFailure("a1")
	require.Equal(t, Closed, b.State("a1"), "one below threshold must stay closed")

	b.RecordFailure("a1")
	require.Equal(t, Open, b.State("a1"), "at threshold must trip open")
}

func TestBreakerHalfOpenAfterCooldownThenClosesOnSuccess(t *testing.T) {
	b := NewBreakers(1, 20*time.Millisecond, nil)
	b.RecordFailure("a1")
	require.Equal(t, Open, b.State("a1"))
	require.False(t, b.Allow("a1"))

	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow("a1"), "cooldown elapsed must allow exactly one probe")
	require.Equal(t, HalfOpen, b.State("a1"))
	require.False(t, b.Allow("a1"), "a second concurrent probe must not be allowed")

	b.RecordSuccess("a1")
	require.Equal(t, Closed, b.State("a1"))
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	b := NewBreakers(1, 10*time.Millisecond, nil)
	b.RecordFailure("a1")
	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow("a1"))

	b.RecordFailure("a1")
	require.Equal(t, Open, b.State("a1"))
}

func TestPeekOpenDoesNotConsumeProbe(t *testing.T) {
	b := NewBreakers(1, 10*time.Millisecond, nil)
	b.RecordFailure("a1")
	time.Sleep(20 * time.Millisecond)

	require.True(t, b.PeekOpen("a1"), "peek must report OPEN until Allow actually transitions to half-open")
	require.True(t, b.Allow("a1"))
	require.False(t, b.PeekOpen("a1"), "after the probe claim the breaker is HALF_OPEN, not OPEN")
}
