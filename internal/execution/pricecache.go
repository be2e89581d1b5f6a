package execution

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// PriceEntry is one asset's cached price plus its staleness bookkeeping.
type PriceEntry struct {
	Price     *uint256.Int
	UpdatedAt time.Time
	Stale     bool
}

// PriceHotCache is prewarmed every block for the reserves of the top-K hot
// set. Single-writer (the prewarm loop), many-reader.
type PriceHotCache struct {
	mu              sync.RWMutex
	entries         map[chaintypes.Address]PriceEntry
	stalenessWindow time.Duration
}

// NewPriceHotCache constructs a PriceHotCache. stalenessSeconds is
// priceStalenessSeconds; a price older than this is marked stale on read.
func NewPriceHotCache(stalenessSeconds int) *PriceHotCache {
	if stalenessSeconds <= 0 {
		stalenessSeconds = 30
	}
	return &PriceHotCache{
		entries:         make(map[chaintypes.Address]PriceEntry),
		stalenessWindow: time.Duration(stalenessSeconds) * time.Second,
	}
}

// Set records a freshly observed price for asset, called by the per-block
// prewarm loop.
func (c *PriceHotCache) Set(asset chaintypes.Address, price *uint256.Int, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[asset] = PriceEntry{Price: price, UpdatedAt: updatedAt}
}

// Get returns asset's cached price, with Stale computed against now.
func (c *PriceHotCache) Get(asset chaintypes.Address, now time.Time) (PriceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[asset]
	if !ok {
		return PriceEntry{}, false
	}
	entry.Stale = now.Sub(entry.UpdatedAt) > c.stalenessWindow
	return entry, true
}

// Prune drops assets no longer in keep, called when the hot set membership
// changes so the cache doesn't grow unbounded.
func (c *PriceHotCache) Prune(keep map[chaintypes.Address]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for asset := range c.entries {
		if !keep[asset] {
			delete(c.entries, asset)
		}
	}
}

// Len reports the number of cached assets.
func (c *PriceHotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
