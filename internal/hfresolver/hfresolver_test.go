package hfresolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

func testUser() chaintypes.Address {
	return chaintypes.NormalizeAddress("0x1111111111111111111111111111111111111111")
}

func TestResolve_NoDebtIsHealthy(t *testing.T) {
	snap := Resolve(testUser(), 100, []UserReserve{{
		Decimals:                6,
		LiquidationThresholdBps: 8500,
		ATokenBalanceRaw:        uint256.NewInt(1_000_000),
		PriceBase:               uint256.NewInt(100_000_000),
	}})
	require.Equal(t, ClassificationHealthy, snap.Classification)
	require.False(t, snap.IsLiquidatable())
}

func TestResolve_UnderwaterUserIsCritical(t *testing.T) {
	// Collateral: 100 USDC (6d) at $1 with 85% threshold -> weighted = 85 USD.
	// Debt: 100 USDC (6d) at $1 -> 100 USD. HF = 85/100 = 0.85 < 1.0.
	reserves := []UserReserve{
		{
			Decimals:                6,
			LiquidationThresholdBps: 8500,
			ATokenBalanceRaw:        uint256.NewInt(100_000_000),
			PriceBase:               uint256.NewInt(100_000_000),
		},
		{
			Decimals:        6,
			VariableDebtRaw: uint256.NewInt(100_000_000),
			PriceBase:       uint256.NewInt(100_000_000),
		},
	}
	snap := Resolve(testUser(), 100, reserves)
	require.True(t, snap.IsLiquidatable())
	require.Equal(t, ClassificationCritical, snap.Classification)
	require.InDelta(t, 0.85, snap.HF, 1e-6)
}

func TestResolve_HealthyUserAboveOne(t *testing.T) {
	reserves := []UserReserve{
		{
			Decimals:                6,
			LiquidationThresholdBps: 9000,
			ATokenBalanceRaw:        uint256.NewInt(200_000_000),
			PriceBase:               uint256.NewInt(100_000_000),
		},
		{
			Decimals:        6,
			VariableDebtRaw: uint256.NewInt(100_000_000),
			PriceBase:       uint256.NewInt(100_000_000),
		},
	}
	snap := Resolve(testUser(), 100, reserves)
	require.False(t, snap.IsLiquidatable())
	require.InDelta(t, 1.8, snap.HF, 1e-6)
}

func TestPageSizer_ShrinksWhenSlowerThanTarget(t *testing.T) {
	p := NewPageSizer(600, 2400, 900)
	require.Equal(t, 2400, p.Current())
	p.Observe(2 * time.Second)
	require.Less(t, p.Current(), 2400)
}

func TestPageSizer_StaysAtMaxWhenFasterThanTarget(t *testing.T) {
	p := NewPageSizer(600, 2400, 900)
	p.Observe(500 * time.Millisecond)
	require.Equal(t, 2400, p.Current(), "already at max, cannot grow further")
}

func TestPageSizer_StaysWithinBounds(t *testing.T) {
	p := NewPageSizer(600, 2400, 900)
	for i := 0; i < 20; i++ {
		p.Observe(2 * time.Second)
	}
	require.GreaterOrEqual(t, p.Current(), 600)
}

type fakeReader struct {
	delay  time.Duration
	result []UserReservesResult
	err    error
}

func (f *fakeReader) ReadUserReserves(ctx context.Context, users []chaintypes.Address, blockTag uint64) ([]UserReservesResult, error) {
	select {
	case <-time.After(f.delay):
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPage_PrimaryWinsWithoutHedge(t *testing.T) {
	primary := &fakeReader{delay: 5 * time.Millisecond, result: []UserReservesResult{{User: testUser()}}}
	secondary := &fakeReader{delay: time.Second}

	res, err := Page(context.Background(), primary, secondary, []chaintypes.Address{testUser()}, 100, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestPage_HedgeFiresAndSecondaryWins(t *testing.T) {
	primary := &fakeReader{delay: 500 * time.Millisecond}
	secondary := &fakeReader{delay: 5 * time.Millisecond, result: []UserReservesResult{{User: testUser()}}}

	res, err := Page(context.Background(), primary, secondary, []chaintypes.Address{testUser()}, 100, 20*time.Millisecond, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestDirtyFirstOrder_PutsDirtyUsersFirst(t *testing.T) {
	a := chaintypes.NormalizeAddress("0x1111111111111111111111111111111111111111")
	b := chaintypes.NormalizeAddress("0x2222222222222222222222222222222222222222")
	c := chaintypes.NormalizeAddress("0x3333333333333333333333333333333333333333")

	dirty := map[chaintypes.Address]bool{b: true}
	ordered := DirtyFirstOrder([]chaintypes.Address{a, b, c}, dirty)
	require.Equal(t, b, ordered[0])
}

func TestRunWatchdog_AbortsOnStall(t *testing.T) {
	aborted := false
	w := NewRunWatchdog(10*time.Millisecond, func() { aborted = true })

	err := w.Watch(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	require.True(t, aborted)
}

func TestRunWatchdog_CompletesNormally(t *testing.T) {
	w := NewRunWatchdog(time.Second, nil)
	err := w.Watch(context.Background(), func(ctx context.Context) error {
		return errors.New("done")
	})
	require.Error(t, err)
	require.Equal(t, "done", err.Error())
}
