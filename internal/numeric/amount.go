// Package numeric provides exact-integer on-chain amount and USD-scaled
// fixed-point types: a 256-bit unsigned integer for
// on-chain amounts, a separate signed fixed-point for USD-scaled math at
// 1e8, decimals carried explicitly in the type so scales are never mixed
// implicitly. Grounded on github.com/holiman/uint256, the 256-bit integer
// library used by three of the example repos (bsc-erigon, nhbchain,
// luxfi-evm); no example repo ships a decimal/fixed-point library, so the
// USD type is built on math/big, justified in DESIGN.md.
package numeric

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Amount is a 256-bit unsigned on-chain quantity tagged with the number of
// decimals it was minted with (e.g. 6 for USDC, 18 for WETH). Two Amounts
// with different Decimals must never be added or compared directly; callers
// rescale explicitly via Rescale.
type Amount struct {
	value    *uint256.Int
	decimals uint8
}

// NewAmount wraps a raw base-unit value with its decimals tag.
func NewAmount(raw *uint256.Int, decimals uint8) Amount {
	if raw == nil {
		raw = new(uint256.Int)
	}
	return Amount{value: raw.Clone(), decimals: decimals}
}

// AmountFromUint64 builds an Amount from a uint64 base-unit value.
func AmountFromUint64(raw uint64, decimals uint8) Amount {
	return Amount{value: uint256.NewInt(raw), decimals: decimals}
}

// AmountFromDecimalString parses a base-10 integer string of base units.
func AmountFromDecimalString(s string, decimals uint8) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{value: v, decimals: decimals}, nil
}

// Decimals returns the number of decimals the amount was tagged with.
func (a Amount) Decimals() uint8 { return a.decimals }

// Raw returns the underlying base-unit integer, cloned to prevent aliasing.
func (a Amount) Raw() *uint256.Int {
	if a.value == nil {
		return new(uint256.Int)
	}
	return a.value.Clone()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.value == nil || a.value.IsZero() }

// Cmp compares two amounts of identical decimals; it panics on a decimals
// mismatch, since comparing unlike scales is an invariant violation rather
// than a runtime condition the caller can recover from.
func (a Amount) Cmp(b Amount) int {
	if a.decimals != b.decimals {
		panic(fmt.Sprintf("numeric: cannot compare amounts with decimals %d and %d", a.decimals, b.decimals))
	}
	return a.Raw().Cmp(b.Raw())
}

// Add returns a + b; panics on a decimals mismatch.
func (a Amount) Add(b Amount) Amount {
	if a.decimals != b.decimals {
		panic(fmt.Sprintf("numeric: cannot add amounts with decimals %d and %d", a.decimals, b.decimals))
	}
	sum := new(uint256.Int).Add(a.Raw(), b.Raw())
	return Amount{value: sum, decimals: a.decimals}
}

// Sub returns a - b; panics on a decimals mismatch or underflow.
func (a Amount) Sub(b Amount) Amount {
	if a.decimals != b.decimals {
		panic(fmt.Sprintf("numeric: cannot subtract amounts with decimals %d and %d", a.decimals, b.decimals))
	}
	if a.Raw().Cmp(b.Raw()) < 0 {
		panic("numeric: amount subtraction underflow")
	}
	diff := new(uint256.Int).Sub(a.Raw(), b.Raw())
	return Amount{value: diff, decimals: a.decimals}
}

// MulDivBps computes floor(a * bps / 10000), preserving decimals. Used for
// close-factor and liquidation-bonus math, where every intermediate
// step must stay integer-exact.
func (a Amount) MulDivBps(bps uint64) Amount {
	num := new(uint256.Int).Mul(a.Raw(), uint256.NewInt(bps))
	res := new(uint256.Int).Div(num, uint256.NewInt(10000))
	return Amount{value: res, decimals: a.decimals}
}

// ToUSD converts this amount to a USD fixed-point value at 1e8 scale given
// an oracle price expressed in 1e8-scaled base-currency units (the
// convention calls `debtPriceBase`/`collateralPriceBase`).
//
// usd = amount * price / 10^decimals, result scaled to 1e8.
func (a Amount) ToUSD(priceBase1e8 *uint256.Int) USD {
	num := new(uint256.Int).Mul(a.Raw(), priceBase1e8)
	divisor := pow10(uint256.NewInt(1), a.decimals)
	res := new(uint256.Int).Div(num, divisor)
	return USD{raw: new(big.Int).SetBytes(res.Bytes())}
}

func pow10(base *uint256.Int, n uint8) *uint256.Int {
	ten := uint256.NewInt(10)
	result := base.Clone()
	for i := uint8(0); i < n; i++ {
		result = new(uint256.Int).Mul(result, ten)
	}
	return result
}

// String renders the raw base-unit value with its decimals tag, for logs.
func (a Amount) String() string {
	return fmt.Sprintf("%s(%dd)", a.Raw().Dec(), a.decimals)
}
