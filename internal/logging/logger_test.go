package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithContext_PropagatesTraceID(t *testing.T) {
	l := New("test", "debug", "json")
	ctx := WithTraceID(context.Background(), "trace-123")
	entry := l.WithContext(ctx)
	require.Equal(t, "trace-123", entry.Data["trace_id"])
	require.Equal(t, "test", entry.Data["component"])
}

func TestGetTraceID_EmptyWhenAbsent(t *testing.T) {
	require.Equal(t, "", GetTraceID(context.Background()))
}

func TestNewTraceID_Unique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	require.NotEqual(t, a, b)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "1.50ms", FormatDuration(1500*time.Microsecond))
}

func TestDefault_FallsBackWhenUninitialized(t *testing.T) {
	defaultLogger = nil
	l := Default()
	require.NotNil(t, l)
}
