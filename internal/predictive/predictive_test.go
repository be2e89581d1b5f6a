package predictive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestEvaluate_NearBandAcceptsPythTwapOrChainlinkMode(t *testing.T) {
	now := time.Now()
	signal := AssetSignal{
		Asset:          "WETH",
		PythDeltaPct:   0.6,
		PythObservedAt: now.Add(-time.Second),
		TwapDeltaPct:   0.015,
		TwapObservedAt: now.Add(-time.Second),
	}
	user := UserContext{HFCurrent: 1.001, DebtUsd: 150}
	cfg := Config{
		MinDebtUsd:   100,
		NearBandBps:  100,
		SignalMode:   ModePythTwapOrChainlink,
		PythDeltaPct: 0.5,
		TwapDeltaPct: 0.01,
	}

	decision := Evaluate("WETH", signal, user, cfg, now)
	require.True(t, decision.Accept)
	require.Equal(t, SourcePythTwap, decision.Source)
}

func TestEvaluate_RejectsWhenHFOutsideNearBandAndNoProjection(t *testing.T) {
	now := time.Now()
	signal := AssetSignal{Asset: "WETH"}
	user := UserContext{HFCurrent: 1.05, DebtUsd: 150}
	cfg := Config{MinDebtUsd: 100, NearBandBps: 100, SignalMode: ModePythTwapOrChainlink}

	decision := Evaluate("WETH", signal, user, cfg, now)
	require.False(t, decision.Accept)
	require.Equal(t, RejectNotNearBand, decision.Reason)
}

func TestEvaluate_ProjectedHFWithinEtaCapIsNearBand(t *testing.T) {
	now := time.Now()
	signal := AssetSignal{
		Asset:          "WETH",
		ChainlinkFresh: true,
		ChainlinkObservedAt: now.Add(-time.Second),
	}
	user := UserContext{
		HFCurrent:   1.2,
		HFProjected: floatPtr(1.005),
		EtaSec:      floatPtr(30),
		DebtUsd:     150,
	}
	cfg := Config{MinDebtUsd: 100, NearBandBps: 100, EtaCapSec: 60, SignalMode: ModeChainlink}

	decision := Evaluate("WETH", signal, user, cfg, now)
	require.True(t, decision.Accept)
	require.Equal(t, SourceChainlink, decision.Source)
}

func TestEvaluate_RejectsBelowMinDebt(t *testing.T) {
	now := time.Now()
	user := UserContext{HFCurrent: 1.0, DebtUsd: 10}
	cfg := Config{MinDebtUsd: 100, NearBandBps: 100, SignalMode: ModePythTwapOrChainlink}

	decision := Evaluate("WETH", AssetSignal{}, user, cfg, now)
	require.False(t, decision.Accept)
	require.Equal(t, RejectDebtTooLow, decision.Reason)
}

func TestEvaluate_RejectsAssetNotWhitelisted(t *testing.T) {
	now := time.Now()
	user := UserContext{HFCurrent: 1.0, DebtUsd: 150}
	cfg := Config{
		MinDebtUsd:     100,
		NearBandBps:    100,
		SignalMode:     ModePythTwapOrChainlink,
		AssetWhitelist: map[string]bool{"USDC": true},
	}

	decision := Evaluate("WETH", AssetSignal{}, user, cfg, now)
	require.False(t, decision.Accept)
	require.Equal(t, RejectAssetNotWhitelisted, decision.Reason)
}

func TestEvaluate_RejectsStaleSignal(t *testing.T) {
	now := time.Now()
	signal := AssetSignal{
		PythDeltaPct:   0.6,
		PythObservedAt: now.Add(-2 * time.Minute),
		TwapDeltaPct:   0.015,
		TwapObservedAt: now.Add(-2 * time.Minute),
	}
	user := UserContext{HFCurrent: 1.0, DebtUsd: 150}
	cfg := Config{MinDebtUsd: 100, NearBandBps: 100, SignalMode: ModePythTwap, PythDeltaPct: 0.5, TwapDeltaPct: 0.01}

	decision := Evaluate("WETH", signal, user, cfg, now)
	require.False(t, decision.Accept)
	require.Equal(t, RejectSignalNotValid, decision.Reason)
}

func TestEvaluate_BothModeRequiresBothSignalsValid(t *testing.T) {
	now := time.Now()
	signal := AssetSignal{
		PythDeltaPct:   0.6,
		PythObservedAt: now.Add(-time.Second),
		TwapDeltaPct:   0.015,
		TwapObservedAt: now.Add(-time.Second),
		ChainlinkFresh: false,
	}
	user := UserContext{HFCurrent: 1.0, DebtUsd: 150}
	cfg := Config{MinDebtUsd: 100, NearBandBps: 100, SignalMode: ModeBoth, PythDeltaPct: 0.5, TwapDeltaPct: 0.01}

	decision := Evaluate("WETH", signal, user, cfg, now)
	require.False(t, decision.Accept)
	require.Equal(t, RejectSignalNotValid, decision.Reason)
}

func TestQueueManager_DedupSameBlockRejects(t *testing.T) {
	q := NewQueueManager(QueueConfig{SafetyMax: 100, CandidatesPerBlock: 50, CallsPerBlock: 500, BlockDebounce: 3}, nil)

	d := q.ShouldEvaluate("0xabc", "liquidation", 100)
	require.True(t, d.Accept)
	q.MarkEvaluated("0xabc", "liquidation", 100)

	d2 := q.ShouldEvaluate("0xABC", "liquidation", 100)
	require.False(t, d2.Accept)
	require.Equal(t, QueueRejectDedupSameBlock, d2.Reason)
}

func TestQueueManager_BlockDebounceRejectsWithinWindow(t *testing.T) {
	q := NewQueueManager(QueueConfig{SafetyMax: 100, CandidatesPerBlock: 50, CallsPerBlock: 500, BlockDebounce: 3}, nil)

	q.ShouldEvaluate("0xabc", "liquidation", 100)
	q.MarkEvaluated("0xabc", "liquidation", 100)

	d := q.ShouldEvaluate("0xabc", "liquidation", 101)
	require.False(t, d.Accept)
	require.Equal(t, QueueRejectBlockDebounce, d.Reason)

	d2 := q.ShouldEvaluate("0xabc", "liquidation", 103)
	require.True(t, d2.Accept)
}

func TestQueueManager_CandidateBudgetExceeded(t *testing.T) {
	q := NewQueueManager(QueueConfig{SafetyMax: 1000, CandidatesPerBlock: 2, CallsPerBlock: 1000, BlockDebounce: 3}, nil)

	d1 := q.ShouldEvaluate("0x1", "liquidation", 100)
	require.True(t, d1.Accept)
	q.MarkEvaluated("0x1", "liquidation", 100)

	d2 := q.ShouldEvaluate("0x2", "liquidation", 100)
	require.True(t, d2.Accept)
	q.MarkEvaluated("0x2", "liquidation", 100)

	d3 := q.ShouldEvaluate("0x3", "liquidation", 100)
	require.False(t, d3.Accept)
	require.Equal(t, QueueRejectCandidateBudget, d3.Reason)
	require.True(t, q.BudgetExceededThisBlock())

	d4 := q.ShouldEvaluate("0x3", "liquidation", 101)
	require.True(t, d4.Accept)
	require.False(t, q.BudgetExceededThisBlock())
}

func TestQueueManager_CallBudgetExceeded(t *testing.T) {
	q := NewQueueManager(QueueConfig{SafetyMax: 1000, CandidatesPerBlock: 1000, CallsPerBlock: 5, BlockDebounce: 3}, nil)

	q.ShouldEvaluate("0x1", "liquidation", 100)
	q.IncrementCalls(5)

	d := q.ShouldEvaluate("0x2", "liquidation", 100)
	require.False(t, d.Accept)
	require.Equal(t, QueueRejectCallBudget, d.Reason)
}

func TestQueueManager_SafetyMaxExceeded(t *testing.T) {
	q := NewQueueManager(QueueConfig{SafetyMax: 1, CandidatesPerBlock: 1000, CallsPerBlock: 1000, BlockDebounce: 3}, nil)

	q.ShouldEvaluate("0x1", "liquidation", 100)
	q.MarkEvaluated("0x1", "liquidation", 100)

	d := q.ShouldEvaluate("0x2", "liquidation", 100)
	require.False(t, d.Accept)
	require.Equal(t, QueueRejectSafetyMax, d.Reason)
}

func TestQueueManager_CooldownRejectsThenAcceptsAfterElapsed(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	q := NewQueueManager(QueueConfig{SafetyMax: 100, CandidatesPerBlock: 100, CallsPerBlock: 100, BlockDebounce: 3, CooldownSec: 30}, clock)

	q.ShouldEvaluate("0x1", "liquidation", 100)
	q.MarkEvaluated("0x1", "liquidation", 100)

	d := q.ShouldEvaluate("0x1", "liquidation", 103)
	require.False(t, d.Accept)
	require.Equal(t, QueueRejectCooldown, d.Reason)

	current = current.Add(31 * time.Second)
	d2 := q.ShouldEvaluate("0x1", "liquidation", 103)
	require.True(t, d2.Accept)
}

func TestQueueManager_PruneStaleRemovesOldEntries(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	q := NewQueueManager(QueueConfig{SafetyMax: 100, CandidatesPerBlock: 100, CallsPerBlock: 100}, clock)

	q.ShouldEvaluate("0x1", "liquidation", 100)
	q.MarkEvaluated("0x1", "liquidation", 100)
	require.Equal(t, 1, q.QueueSize())

	current = current.Add(6 * time.Minute)
	q.PruneStale(5 * 60 * 1000)
	require.Equal(t, 0, q.QueueSize())
}
