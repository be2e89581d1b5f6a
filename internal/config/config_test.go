package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
)

func TestNew_DefaultsValidate(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownSignalMode(t *testing.T) {
	cfg := New()
	cfg.Predictive.PredictiveSignalMode = "bogus"
	err := cfg.Validate()
	require.Error(t, err)

	ce, ok := errs.As(err)
	require.True(t, ok)
	require.Equal(t, errs.KindConfigInvalid, ce.Kind)
}

func TestValidate_RejectsUnknownSubmitMode(t *testing.T) {
	cfg := New()
	cfg.Execution.TxSubmitMode = "magic"
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadHeadPageBounds(t *testing.T) {
	cfg := New()
	cfg.Resolver.HeadPageMin = 100
	cfg.Resolver.HeadPageMax = 10
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveRPCBudget(t *testing.T) {
	cfg := New()
	cfg.RPC.RPCBudgetBurst = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsCloseFactorOutOfRange(t *testing.T) {
	cfg := New()
	cfg.Profit.LiquidationCloseFactor = 20000
	require.Error(t, cfg.Validate())
}

func TestLoadFromFile_MissingFileIsNotAnError(t *testing.T) {
	cfg := New()
	require.NoError(t, loadFromFile("does/not/exist.yaml", cfg))
}
