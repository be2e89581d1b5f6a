package numeric

import (
	"fmt"
	"math/big"
)

// usdScale is the fixed-point scale for USD-denominated values: 1e8,
// matching the base-currency-unit convention the profit engine reads
// oracle prices in.
var usdScale = big.NewInt(100_000_000)

// USD is a signed fixed-point value scaled to 1e8, used for every
// profit-path computation (repayUsd, seizeUsd, gross, net, thresholds).
// Backed by math/big.Int rather than a native int128: no example repo in
// the corpus ships a fixed-point/decimal library, and math/big is the
// standard library's arbitrary-precision signed integer — the narrowest
// correct substitute, documented in DESIGN.md.
type USD struct {
	raw *big.Int // value * 1e8
}

// USDFromFloat constructs a USD value from a float64 dollar amount. Used
// only at config-boundary (parsing `profitMinUsd` etc. from env/YAML);
// never used on the path to a profitability decision, which stays integer
// throughout.
func USDFromFloat(dollars float64) USD {
	scaled := new(big.Float).Mul(big.NewFloat(dollars), new(big.Float).SetInt(usdScale))
	i, _ := scaled.Int(nil)
	return USD{raw: i}
}

// USDFromRaw wraps an already-1e8-scaled integer.
func USDFromRaw(raw *big.Int) USD {
	if raw == nil {
		return USD{raw: big.NewInt(0)}
	}
	return USD{raw: new(big.Int).Set(raw)}
}

// ZeroUSD returns the zero USD value.
func ZeroUSD() USD { return USD{raw: big.NewInt(0)} }

// Raw returns the underlying 1e8-scaled integer, cloned.
func (u USD) Raw() *big.Int {
	if u.raw == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(u.raw)
}

// Add returns u + v.
func (u USD) Add(v USD) USD { return USD{raw: new(big.Int).Add(u.Raw(), v.Raw())} }

// Sub returns u - v.
func (u USD) Sub(v USD) USD { return USD{raw: new(big.Int).Sub(u.Raw(), v.Raw())} }

// MulBps returns floor(u * bps / 10000), used for slippage-cost math.
func (u USD) MulBps(bps int64) USD {
	num := new(big.Int).Mul(u.Raw(), big.NewInt(bps))
	res := new(big.Int).Div(num, big.NewInt(10000))
	return USD{raw: res}
}

// Cmp compares two USD values; negative/zero/positive per big.Int.Cmp.
func (u USD) Cmp(v USD) int { return u.Raw().Cmp(v.Raw()) }

// GTE reports whether u >= v — the exact comparison the profit engine's
// `net ≥ minProfitUsd` decision uses.
func (u USD) GTE(v USD) bool { return u.Cmp(v) >= 0 }

// IsNegative reports whether u < 0.
func (u USD) IsNegative() bool { return u.raw != nil && u.raw.Sign() < 0 }

// Float64 renders an approximate float for logging/metrics observability
// only; never fed back into a profitability decision.
func (u USD) Float64() float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(u.Raw()), new(big.Float).SetInt(usdScale))
	v, _ := f.Float64()
	return v
}

// String renders the USD value to 8 decimal places.
func (u USD) String() string {
	f := new(big.Float).Quo(new(big.Float).SetInt(u.Raw()), new(big.Float).SetInt(usdScale))
	return fmt.Sprintf("%s", f.Text('f', 8))
}
