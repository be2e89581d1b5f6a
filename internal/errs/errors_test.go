package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoreError_Error(t *testing.T) {
	withoutCause := New(KindConfigInvalid, "missing field")
	require.Equal(t, "[config_invalid] missing field", withoutCause.Error())

	withCause := Wrap(KindNetwork, "dial failed", errors.New("connection refused"))
	require.Equal(t, "[network] dial failed: connection refused", withCause.Error())
}

func TestCoreError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindTimeout, "stalled", cause)
	require.ErrorIs(t, err, cause)
}

func TestCoreError_WithDetail(t *testing.T) {
	err := New(KindBudgetExhausted, "blown").WithDetail("budget", "candidatesPerBlock").WithDetail("limit", 50)
	require.Len(t, err.Details, 2)
	require.Equal(t, "candidatesPerBlock", err.Details["budget"])
	require.Equal(t, 50, err.Details["limit"])
}

func TestKindOf(t *testing.T) {
	err := fmtWrap(InflightExecution("0xabc"))
	require.Equal(t, KindInflightExecution, KindOf(err))
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	require.True(t, KindRateLimited.IsTransient())
	require.True(t, KindTimeout.IsTransient())
	require.True(t, KindNetwork.IsTransient())
	require.True(t, KindCallException.IsTransient())
	require.False(t, KindProviderUnavail.IsTransient())
	require.False(t, KindConfigInvalid.IsTransient())
}

// fmtWrap simulates an error climbing back up a call stack unmodified.
func fmtWrap(err error) error { return err }
