// Package hfresolver implements the real-time health-factor resolution
// pipeline: exact-integer HF computation, adaptive paging, dirty-first
// ordering, and hedged dual-provider reads. Built on a round-robin,
// health/latency-tracked provider pool generalized from consecutive-failure
// health checks to the hedge-by-deadline race a low-latency resolver needs,
// and on uint256 for the weighted collateral/debt math so HF never touches
// float arithmetic on the path to a liquidatable classification.
package hfresolver

import (
	"github.com/holiman/uint256"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// UserReserve is one reserve's contribution to a user's HF, read atomically
// within a single resolver snapshot.
type UserReserve struct {
	Asset                  chaintypes.Address
	Decimals               uint8
	LiquidationThresholdBps uint64

	VariableDebtRaw *uint256.Int
	StableDebtRaw   *uint256.Int
	ATokenBalanceRaw *uint256.Int

	PriceBase *uint256.Int // 1e8-scaled base-currency price
	UpdatedAt int64
}

// hfScale is the fixed-point scale HF is reported at: 1e18, matching the
// Aave-style convention of treating HF as a unitless ratio with full
// 18-decimal precision.
var hfScale = uint256.NewInt(1_000_000_000_000_000_000)

// Classification is the category assigned by comparing HF to 1.0.
type Classification string

const (
	ClassificationHealthy  Classification = "healthy"
	ClassificationCritical Classification = "critical"
)

// Snapshot is the result of resolving a single user at a single block tag.
type Snapshot struct {
	User           chaintypes.Address
	Block          uint64
	HF             float64 // observability only; classification uses raw integer comparison
	HFRaw          *uint256.Int
	DebtUsd        float64
	CollateralUsd  float64
	Classification Classification
}

// Resolve computes a user's HF from a snapshot of reserve balances, prices,
// and liquidation thresholds, entirely in uint256 arithmetic:
//
//	weightedCollateral = Σ (aTokenBalance * price / 10^decimals) * threshold / 10000
//	totalDebt           = Σ (variableDebt + stableDebt) * price / 10^decimals
//	HF = weightedCollateral * 1e18 / totalDebt
//
// A user with zero debt has an undefined/infinite HF; Resolve reports it as
// a very large HFRaw and classifies healthy.
func Resolve(user chaintypes.Address, block uint64, reserves []UserReserve) Snapshot {
	weightedCollateral := new(uint256.Int)
	totalDebt := new(uint256.Int)

	for _, r := range reserves {
		divisor := pow10(r.Decimals)

		if r.ATokenBalanceRaw != nil && !r.ATokenBalanceRaw.IsZero() {
			collateralValue := mulDiv(r.ATokenBalanceRaw, r.PriceBase, divisor)
			weighted := new(uint256.Int).Mul(collateralValue, uint256.NewInt(r.LiquidationThresholdBps))
			weighted = new(uint256.Int).Div(weighted, uint256.NewInt(10000))
			weightedCollateral = new(uint256.Int).Add(weightedCollateral, weighted)
		}

		debt := new(uint256.Int)
		if r.VariableDebtRaw != nil {
			debt = new(uint256.Int).Add(debt, r.VariableDebtRaw)
		}
		if r.StableDebtRaw != nil {
			debt = new(uint256.Int).Add(debt, r.StableDebtRaw)
		}
		if !debt.IsZero() {
			debtValue := mulDiv(debt, r.PriceBase, divisor)
			totalDebt = new(uint256.Int).Add(totalDebt, debtValue)
		}
	}

	snapshot := Snapshot{
		User:          user,
		Block:         block,
		DebtUsd:       toFloatUsd(totalDebt),
		CollateralUsd: toFloatUsd(weightedCollateral),
	}

	if totalDebt.IsZero() {
		snapshot.HFRaw = new(uint256.Int).Mul(uint256.NewInt(1_000_000), hfScale)
		snapshot.HF = 1_000_000
		snapshot.Classification = ClassificationHealthy
		return snapshot
	}

	hfRaw := mulDiv(weightedCollateral, hfScale, totalDebt)
	snapshot.HFRaw = hfRaw
	snapshot.HF = hfToFloat(hfRaw)

	if hfRaw.Cmp(hfScale) < 0 {
		snapshot.Classification = ClassificationCritical
	} else {
		snapshot.Classification = ClassificationHealthy
	}
	return snapshot
}

func mulDiv(a, b, divisor *uint256.Int) *uint256.Int {
	if divisor == nil || divisor.IsZero() {
		return new(uint256.Int)
	}
	num := new(uint256.Int).Mul(a, b)
	return new(uint256.Int).Div(num, divisor)
}

func pow10(n uint8) *uint256.Int {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		result = new(uint256.Int).Mul(result, ten)
	}
	return result
}

func hfToFloat(hfRaw *uint256.Int) float64 {
	f := new(uint256.Int).Set(hfRaw)
	fFloat, _ := f.Float64()
	scaleFloat, _ := hfScale.Float64()
	return fFloat / scaleFloat
}

func toFloatUsd(raw *uint256.Int) float64 {
	// raw is 1e8-scaled base currency.
	v, _ := raw.Float64()
	return v / 1e8
}

// IsLiquidatable reports hf < 1.0 using exact integer comparison, never the
// float HF field.
func (s Snapshot) IsLiquidatable() bool {
	return s.HFRaw != nil && s.HFRaw.Cmp(hfScale) < 0
}
