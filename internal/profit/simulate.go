// Package profit implements the liquidation profitability simulator as a
// pure-function service, built entirely on internal/numeric's
// exact-integer types: no float arithmetic reaches the `net >= threshold`
// decision.
package profit

import (
	"github.com/holiman/uint256"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/numeric"
)

// ReserveSnapshot is one reserve's state for a single user, as read by the
// HF resolver / multicall batch.
type ReserveSnapshot struct {
	Asset                   chaintypes.Address
	Decimals                uint8
	Active                  bool
	Frozen                  bool
	UsageAsCollateralEnabled bool
	LiquidationBonusBps     uint64 // e.g. 500 = 5% bonus

	VariableDebt  numeric.Amount
	StableDebt    numeric.Amount
	ATokenBalance numeric.Amount

	PriceBase *uint256.Int // 1e8-scaled base-currency price
}

// DebtValueBase returns total debt valued in base-currency terms, used to
// pick the debt asset (largest debtValueBase wins).
func (r ReserveSnapshot) DebtValueBase() numeric.USD {
	total := r.VariableDebt.Add(r.StableDebt)
	return total.ToUSD(r.PriceBase)
}

// CollateralValueBase returns the aToken balance valued in base-currency
// terms, used as a collateral-selection tie-breaker.
func (r ReserveSnapshot) CollateralValueBase() numeric.USD {
	return r.ATokenBalance.ToUSD(r.PriceBase)
}

// Config carries the profit-path tunables profit group.
type Config struct {
	MinProfitUsd       numeric.USD
	FeeBps             uint64
	GasCostUsd         numeric.USD
	CloseFactorBps     uint64
	MaxSlippageBps     int64
	MinRepayUsd        numeric.USD
}

// Result is the outcome of a single simulation.
type Result struct {
	DebtAsset       chaintypes.Address
	CollateralAsset chaintypes.Address
	Repay           numeric.Amount
	RepayUsd        numeric.USD
	Seize           numeric.Amount
	SeizeUsd        numeric.USD
	Gross           numeric.USD
	SlippageCost    numeric.USD
	Net             numeric.USD
	Profitable      bool
}

// SelectDebtAsset picks the active, non-frozen reserve with the largest
// debtValueBase.
func SelectDebtAsset(reserves []ReserveSnapshot) (ReserveSnapshot, bool) {
	var best ReserveSnapshot
	found := false
	for _, r := range reserves {
		if !r.Active || r.Frozen {
			continue
		}
		if r.VariableDebt.IsZero() && r.StableDebt.IsZero() {
			continue
		}
		if !found || r.DebtValueBase().Cmp(best.DebtValueBase()) > 0 {
			best = r
			found = true
		}
	}
	return best, found
}

// SelectCollateralAsset picks among reserves with aTokenBalance > 0,
// usageAsCollateralEnabled, active, !frozen: prefer the highest
// liquidationBonus; tie-break by larger collateralValueBase.
func SelectCollateralAsset(reserves []ReserveSnapshot) (ReserveSnapshot, bool) {
	var best ReserveSnapshot
	found := false
	for _, r := range reserves {
		if !r.Active || r.Frozen || !r.UsageAsCollateralEnabled {
			continue
		}
		if r.ATokenBalance.IsZero() {
			continue
		}
		switch {
		case !found:
			best, found = r, true
		case r.LiquidationBonusBps > best.LiquidationBonusBps:
			best = r
		case r.LiquidationBonusBps == best.LiquidationBonusBps &&
			r.CollateralValueBase().Cmp(best.CollateralValueBase()) > 0:
			best = r
		}
	}
	return best, found
}

// Simulate runs the exact-integer liquidation math and returns a
// Result plus an error classified when the liquidation is rejected
// (dust or unprofitable).
func Simulate(debtAsset, collateralAsset ReserveSnapshot, cfg Config) (Result, error) {
	totalDebt := debtAsset.VariableDebt.Add(debtAsset.StableDebt)

	repay := totalDebt.MulDivBps(cfg.CloseFactorBps)
	if repay.Cmp(totalDebt) > 0 {
		repay = totalDebt
	}

	repayUsd := repay.ToUSD(debtAsset.PriceBase)

	if repay.IsZero() || !repayUsd.GTE(cfg.MinRepayUsd) {
		return Result{DebtAsset: debtAsset.Asset, CollateralAsset: collateralAsset.Asset, Repay: repay, RepayUsd: repayUsd},
			errs.Unprofitable("dust")
	}

	seize := computeSeize(repay, debtAsset, collateralAsset)
	seizeUsd := seize.ToUSD(collateralAsset.PriceBase)

	gross := seizeUsd.Sub(repayUsd)
	slippageCost := seizeUsd.MulBps(cfg.MaxSlippageBps)
	net := gross.Sub(slippageCost).Sub(cfg.GasCostUsd)

	result := Result{
		DebtAsset:       debtAsset.Asset,
		CollateralAsset: collateralAsset.Asset,
		Repay:           repay,
		RepayUsd:        repayUsd,
		Seize:           seize,
		SeizeUsd:        seizeUsd,
		Gross:           gross,
		SlippageCost:    slippageCost,
		Net:             net,
		Profitable:      net.GTE(cfg.MinProfitUsd),
	}

	if !result.Profitable {
		return result, errs.Unprofitable("below_min_profit")
	}
	return result, nil
}

// computeSeize computes:
//
//	seize = repay * (10000 + liquidationBonus) * debtPriceBase * 10^collateralDecimals
//	        / (10000 * collateralPriceBase * 10^debtDecimals)
//
// kept entirely in uint256 arithmetic, never float.
func computeSeize(repay numeric.Amount, debtAsset, collateralAsset ReserveSnapshot) numeric.Amount {
	bonusFactor := uint256.NewInt(10000 + collateralAsset.LiquidationBonusBps)

	num := new(uint256.Int).Mul(repay.Raw(), bonusFactor)
	num = new(uint256.Int).Mul(num, debtAsset.PriceBase)
	num = new(uint256.Int).Mul(num, pow10(collateralAsset.Decimals))

	den := new(uint256.Int).Mul(uint256.NewInt(10000), collateralAsset.PriceBase)
	den = new(uint256.Int).Mul(den, pow10(debtAsset.Decimals))

	if den.IsZero() {
		return numeric.NewAmount(new(uint256.Int), collateralAsset.Decimals)
	}

	res := new(uint256.Int).Div(num, den)
	return numeric.NewAmount(res, collateralAsset.Decimals)
}

func pow10(n uint8) *uint256.Int {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		result = new(uint256.Int).Mul(result, ten)
	}
	return result
}
