package rpcbudget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucket_TryAcquire_RespectsCapacity(t *testing.T) {
	b := New(Config{Capacity: 2, RefillRate: 1})
	require.True(t, b.TryAcquire(1))
	require.True(t, b.TryAcquire(1))
	require.False(t, b.TryAcquire(1))
}

func TestTokenBucket_TryAcquire_RespectsMinSpacing(t *testing.T) {
	b := New(Config{Capacity: 10, RefillRate: 100, MinSpacing: 50 * time.Millisecond})
	require.True(t, b.TryAcquire(1))
	require.False(t, b.TryAcquire(1))
	time.Sleep(60 * time.Millisecond)
	require.True(t, b.TryAcquire(1))
}

func TestTokenBucket_Acquire_BlocksThenSucceeds(t *testing.T) {
	b := New(Config{Capacity: 1, RefillRate: 20})
	require.True(t, b.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	err := b.Acquire(ctx, 1)
	require.NoError(t, err)
	require.Greater(t, time.Since(start), time.Duration(0))
}

func TestTokenBucket_Acquire_CancelledContext(t *testing.T) {
	b := New(Config{Capacity: 1, RefillRate: 1})
	require.True(t, b.TryAcquire(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Acquire(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassify_RateLimited(t *testing.T) {
	require.Equal(t, ErrRateLimit429, Classify(errors.New("429 Too Many Requests")))
}

func TestClassify_Timeout(t *testing.T) {
	require.Equal(t, ErrTimeout, Classify(context.DeadlineExceeded))
}

func TestClassify_Network(t *testing.T) {
	require.Equal(t, ErrNetwork, Classify(errors.New("dial tcp: connection refused")))
}

func TestClassify_CallException(t *testing.T) {
	require.Equal(t, ErrCallException, Classify(errors.New("execution reverted: insufficient balance")))
}

func TestErrorKind_IsTransient(t *testing.T) {
	require.True(t, ErrRateLimit429.IsTransient())
	require.True(t, ErrCallException.IsTransient())
	require.False(t, ErrProviderDestroyed.IsTransient())
}

func TestPool_NextSkipsCoolingDownProviders(t *testing.T) {
	p := NewPool([]string{"https://a.example/key1234567890123456789", "https://b.example"}, time.Minute)
	p.Cooldown("https://a.example/key1234567890123456789", 0)

	prov, ok := p.Next()
	require.True(t, ok)
	require.Equal(t, "https://b.example", prov.URL)
}

func TestPool_AllCoolingDownReturnsFalse(t *testing.T) {
	p := NewPool([]string{"https://a.example"}, time.Minute)
	p.Cooldown("https://a.example", 0)

	_, ok := p.Next()
	require.False(t, ok)
}

func TestMask_RedactsLongAlphanumericRuns(t *testing.T) {
	masked := Mask("https://rpc.example/v2/abcdef0123456789ABCDEF0123")
	require.NotContains(t, masked, "abcdef0123456789ABCDEF0123")
	require.Contains(t, masked, "***")
}
