package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("liquidator-test", reg)
	require.NotNil(t, m)

	m.EventsIngestedTotal.WithLabelValues("liquidation_call", "ws").Inc()
	m.HedgeFiredTotal.Inc()
	m.ScansSuppressedTotal.WithLabelValues("event", "in_flight").Inc()
	m.ExecutionOutcomeTotal.WithLabelValues("landed").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestEnabled_DefaultsByEnvironment(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("BOT_ENV", "production")
	require.False(t, Enabled())

	t.Setenv("BOT_ENV", "development")
	require.True(t, Enabled())
}

func TestEnabled_ExplicitOverride(t *testing.T) {
	t.Setenv("BOT_ENV", "production")
	t.Setenv("METRICS_ENABLED", "true")
	require.True(t, Enabled())

	t.Setenv("METRICS_ENABLED", "false")
	require.False(t, Enabled())
}
