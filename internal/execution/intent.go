// Package execution builds and submits liquidation transactions once a
// candidate crosses the execution threshold: an intent cache keyed by user,
// a prewarmed price hot cache, multi-mode submission (public/private/race),
// gas controls, a critical-path fast lane, and a per-user inflight lock.
package execution

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/holiman/uint256"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// PriceRef is one (asset, price, updatedAt) triple an intent references,
// the unit the price fingerprint hashes over.
type PriceRef struct {
	Asset     chaintypes.Address
	Price     *uint256.Int
	UpdatedAt time.Time
}

// Intent is a precomputed liquidation call, cached per user until the block
// advances or a referenced price moves past revalidationBps.
type Intent struct {
	User             chaintypes.Address
	CollateralAsset  chaintypes.Address
	DebtAsset        chaintypes.Address
	DebtToCover      *uint256.Int
	MinOut           *uint256.Int
	SwapCalldata     []byte
	BuiltAtMs        int64
	BuiltAtBlock     uint64
	PriceFingerprint string
	ReferencedPrices []PriceRef
}

// Fingerprint hashes (asset, price, updatedAt) for every referenced price,
// in a stable order, into the Intent's PriceFingerprint.
func Fingerprint(prices []PriceRef) string {
	h := sha256.New()
	for _, p := range prices {
		h.Write(p.Asset[:])
		if p.Price != nil {
			h.Write(p.Price.Bytes())
		}
		var tsBuf [8]byte
		binary.BigEndian.PutUint64(tsBuf[:], uint64(p.UpdatedAt.UnixNano()))
		h.Write(tsBuf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IntentCache holds at most one Intent per user, invalidated on block
// advance or price drift beyond revalidationBps.
type IntentCache struct {
	entries         map[chaintypes.Address]*Intent
	revalidationBps int
}

// NewIntentCache constructs an IntentCache. revalidationBps is the price
// drift tolerance before a cached intent is considered stale.
func NewIntentCache(revalidationBps int) *IntentCache {
	return &IntentCache{entries: make(map[chaintypes.Address]*Intent), revalidationBps: revalidationBps}
}

// Put stores or replaces the cached intent for its user.
func (c *IntentCache) Put(intent *Intent) {
	c.entries[intent.User] = intent
}

// Get returns the cached intent for user, if any.
func (c *IntentCache) Get(user chaintypes.Address) (*Intent, bool) {
	intent, ok := c.entries[user]
	return intent, ok
}

// Drop removes the cached intent for user.
func (c *IntentCache) Drop(user chaintypes.Address) {
	delete(c.entries, user)
}

// Valid reports whether the cached intent for user is still valid at
// currentBlock given a freshly observed price for each referenced asset.
// The caller supplies latest prices only for assets it has refreshed;
// assets absent from latest are assumed unchanged.
func (c *IntentCache) Valid(user chaintypes.Address, currentBlock uint64, latest map[chaintypes.Address]*uint256.Int) bool {
	intent, ok := c.entries[user]
	if !ok {
		return false
	}
	if intent.BuiltAtBlock != currentBlock {
		return false
	}
	for _, ref := range intent.ReferencedPrices {
		newPrice, ok := latest[ref.Asset]
		if !ok || ref.Price == nil {
			continue
		}
		if priceDriftExceedsBps(ref.Price, newPrice, c.revalidationBps) {
			return false
		}
	}
	return true
}

// priceDriftExceedsBps reports whether newPrice differs from oldPrice by
// more than bps/10000, using exact integer math.
func priceDriftExceedsBps(oldPrice, newPrice *uint256.Int, bps int) bool {
	if oldPrice.IsZero() {
		return !newPrice.IsZero()
	}
	diff := new(uint256.Int)
	if oldPrice.Cmp(newPrice) >= 0 {
		diff.Sub(oldPrice, newPrice)
	} else {
		diff.Sub(newPrice, oldPrice)
	}
	thresholdNumerator := new(uint256.Int).Mul(diff, uint256.NewInt(10000))
	bpsMoved := new(uint256.Int).Div(thresholdNumerator, oldPrice)
	return bpsMoved.Uint64() > uint64(bps)
}
