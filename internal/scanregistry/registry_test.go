package scanregistry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizedSubject_HexPrefixedTruncatedToTwelve(t *testing.T) {
	require.Equal(t, "0xabcdef1234", normalizedSubject("0xABCDEF1234"))
}

func TestNormalizedSubject_NonHexLowercased(t *testing.T) {
	require.Equal(t, "weth", normalizedSubject("WETH"))
}

// Regression: a duplicate scan of the same key is suppressed while in flight
// and again within the TTL after release.
func TestAcquire_InFlightThenRecentlyCompleted(t *testing.T) {
	r := New(Config{AvgBlockTime: 2 * time.Second})
	key := NewKey(TriggerPrice, "WETH", 10, "")

	require.True(t, r.Acquire(key))
	require.False(t, r.Acquire(key), "immediate second acquire must be suppressed in_flight")

	r.Release(key)
	require.False(t, r.Acquire(key), "acquire within TTL after release must be suppressed recently_completed")
}

func TestAcquire_SucceedsAfterTTLExpires(t *testing.T) {
	r := New(Config{AvgBlockTime: 1 * time.Millisecond}) // ttl floors to 10s in New, but we shrink below
	r.defaultTTL = 20 * time.Millisecond
	key := NewKey(TriggerPrice, "WETH", 10, "")

	require.True(t, r.Acquire(key))
	r.Release(key)

	time.Sleep(30 * time.Millisecond)
	require.True(t, r.Acquire(key))
}

func TestAcquire_DistinctKeysDoNotCollide(t *testing.T) {
	r := New(Config{AvgBlockTime: 2 * time.Second})
	a := NewKey(TriggerEvent, "0xUser1", 10, "hf")
	b := NewKey(TriggerEvent, "0xUser2", 10, "hf")

	require.True(t, r.Acquire(a))
	require.True(t, r.Acquire(b))
}

type countingCounters struct {
	suppressed map[SuppressReason]int
	acquired   int
	released   int
}

func newCountingCounters() *countingCounters {
	return &countingCounters{suppressed: make(map[SuppressReason]int)}
}
func (c *countingCounters) IncSuppressed(_ TriggerType, reason SuppressReason) {
	c.suppressed[reason]++
}
func (c *countingCounters) IncAcquired() { c.acquired++ }
func (c *countingCounters) IncReleased() { c.released++ }

func TestRegistry_ReportsCounters(t *testing.T) {
	counters := newCountingCounters()
	r := New(Config{AvgBlockTime: 2 * time.Second, Counters: counters})
	key := NewKey(TriggerSweep, "0xUser1", 1, "")

	require.True(t, r.Acquire(key))
	require.False(t, r.Acquire(key))
	r.Release(key)

	require.Equal(t, 1, counters.acquired)
	require.Equal(t, 1, counters.released)
	require.Equal(t, 1, counters.suppressed[ReasonInFlight])
}
