package prioritysweep

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func addr(hex string) common.Address {
	return common.HexToAddress(hex)
}

func testConfig() Config {
	return Config{
		PageSize:            2,
		TargetSize:          3,
		MinDebtUsd:          100,
		MinCollateralUsd:    100,
		WDebt:               1.0,
		WColl:               0.5,
		WHF:                 2.0,
		HFCeiling:           1.1,
		LowHFBoostThreshold: 0.97,
		LowHFBoost:          5,
	}
}

type fakeIndex struct {
	pages [][]BorrowerPage
	err   error
}

func (f *fakeIndex) Page(ctx context.Context, pageSize int) (PageFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := 0
	return func() ([]BorrowerPage, bool, error) {
		if i >= len(f.pages) {
			return nil, false, nil
		}
		batch := f.pages[i]
		i++
		return batch, i < len(f.pages), nil
	}, nil
}

func TestScore_RewardsHigherDebtAndLowerHF(t *testing.T) {
	cfg := testConfig()
	low := BorrowerPage{DebtUsd: 10_000, CollateralUsd: 12_000, HF: 0.95}
	high := BorrowerPage{DebtUsd: 10_000, CollateralUsd: 12_000, HF: 1.05}

	require.Greater(t, score(low, cfg), score(high, cfg))
}

func TestScore_AppliesLowHFBoostAtThreshold(t *testing.T) {
	cfg := testConfig()
	atThreshold := BorrowerPage{DebtUsd: 1000, CollateralUsd: 1000, HF: cfg.LowHFBoostThreshold}
	justAbove := BorrowerPage{DebtUsd: 1000, CollateralUsd: 1000, HF: cfg.LowHFBoostThreshold + 0.001}

	require.Greater(t, score(atThreshold, cfg), score(justAbove, cfg))
}

func TestSweeper_RunOnce_FiltersScoresAndRanks(t *testing.T) {
	index := &fakeIndex{pages: [][]BorrowerPage{
		{
			{User: addr("0x1"), DebtUsd: 50, CollateralUsd: 50, HF: 0.99},   // below both minimums
			{User: addr("0x2"), DebtUsd: 10_000, CollateralUsd: 12_000, HF: 0.90},
		},
		{
			{User: addr("0x3"), DebtUsd: 5_000, CollateralUsd: 6_000, HF: 1.05},
			{User: addr("0x4"), DebtUsd: 20_000, CollateralUsd: 25_000, HF: 0.80},
		},
	}}
	holder := &LatestHolder{}
	sweeper := NewSweeper(testConfig(), index, holder, nil)

	set, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), set.Version)
	require.Equal(t, 4, set.Stats.Seen)
	require.Equal(t, 3, set.Stats.Filtered)
	require.Equal(t, 3, set.Stats.Selected)
	require.Equal(t, addr("0x4"), set.Users[0].User) // highest debt + lowest HF wins top rank
	require.Equal(t, holder.Latest(), set)
}

func TestSweeper_RunOnce_TruncatesToTargetSize(t *testing.T) {
	cfg := testConfig()
	cfg.TargetSize = 1
	cfg.MinDebtUsd = 0
	cfg.MinCollateralUsd = 0
	index := &fakeIndex{pages: [][]BorrowerPage{
		{
			{User: addr("0x1"), DebtUsd: 1000, CollateralUsd: 1000, HF: 1.0},
			{User: addr("0x2"), DebtUsd: 50_000, CollateralUsd: 60_000, HF: 0.5},
		},
	}}
	sweeper := NewSweeper(cfg, index, &LatestHolder{}, nil)

	set, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Users, 1)
	require.Equal(t, addr("0x2"), set.Users[0].User)
}

func TestSweeper_RunOnce_ReturnsErrorWhenIndexUnavailable(t *testing.T) {
	index := &fakeIndex{err: context.DeadlineExceeded}
	sweeper := NewSweeper(testConfig(), index, &LatestHolder{}, nil)

	_, err := sweeper.RunOnce(context.Background())
	require.Error(t, err)
}

func TestSweeper_RunOnce_AbortsOnCancellation(t *testing.T) {
	index := &fakeIndex{pages: [][]BorrowerPage{
		{{User: addr("0x1"), DebtUsd: 1000, CollateralUsd: 1000, HF: 0.9}},
	}}
	cfg := testConfig()
	cfg.InterRequestMs = 50
	sweeper := NewSweeper(cfg, index, &LatestHolder{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sweeper.RunOnce(ctx)
	require.Error(t, err)
}

func TestLatestHolder_ReturnsNilBeforeFirstPublish(t *testing.T) {
	holder := &LatestHolder{}
	require.Nil(t, holder.Latest())
}

func TestMedian_EvenAndOddCounts(t *testing.T) {
	require.Equal(t, 2.0, median([]float64{1, 2, 3}))
	require.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
	require.Equal(t, 0.0, median(nil))
}

func TestSweeper_VersionIncrementsAcrossRuns(t *testing.T) {
	index := &fakeIndex{pages: [][]BorrowerPage{
		{{User: addr("0x1"), DebtUsd: 1000, CollateralUsd: 1000, HF: 0.9}},
	}}
	sweeper := NewSweeper(testConfig(), index, &LatestHolder{}, nil)

	first, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	second, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, uint64(1), first.Version)
	require.Equal(t, uint64(2), second.Version)
}
