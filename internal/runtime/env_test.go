package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	env, ok := ParseEnvironment("Production")
	require.True(t, ok)
	require.Equal(t, Production, env)

	_, ok = ParseEnvironment("bogus")
	require.False(t, ok)
}

func TestEnv_DefaultsToDevelopment(t *testing.T) {
	t.Setenv("BOT_ENV", "")
	require.Equal(t, Development, Env())
	require.True(t, IsDevelopment())
}

func TestEnv_RespectsOverride(t *testing.T) {
	t.Setenv("BOT_ENV", "testing")
	require.True(t, IsTesting())
}
