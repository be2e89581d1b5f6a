package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := New(DefaultConfig())
	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Second})
	testErr := errors.New("provider error")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return testErr })
	}

	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Hour})
	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })

	err := cb.Execute(context.Background(), func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})
	_ = cb.Execute(context.Background(), func() error { return errors.New("fail") })

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func() error { return nil })
		require.NoError(t, err)
	}

	require.Equal(t, StateClosed, cb.State())
}

func TestRetry_EventualSuccess(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	attempts := 0

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}
	testErr := errors.New("always fails")

	err := Retry(context.Background(), cfg, func() error { return testErr })
	require.ErrorIs(t, err, testErr)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}
	err := Retry(ctx, cfg, func() error { return errors.New("fail") })
	require.Error(t, err)
}

func TestProviderCBConfig_AppliesDefaults(t *testing.T) {
	cfg := ProviderCBConfig(ProviderCircuitBreakerConfig{})
	require.Equal(t, 5, cfg.MaxFailures)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, 3, cfg.HalfOpenMax)
}
