package hfresolver

import (
	"context"
	"sync"
	"time"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// PageSizer tracks the adaptively-sized HF resolution page: after each
// page, measured wall time is compared to a target, and the next page
// size is adjusted by ±25%, bounded by [min, max].
type PageSizer struct {
	mu      sync.Mutex
	current int
	min     int
	max     int
	targetMs int64
}

// NewPageSizer constructs a PageSizer starting at max (default:
// initial = headPageMax).
func NewPageSizer(min, max int, targetMs int64) *PageSizer {
	if min <= 0 {
		min = 600
	}
	if max < min {
		max = min
	}
	return &PageSizer{current: max, min: min, max: max, targetMs: targetMs}
}

// Current returns the current page size.
func (p *PageSizer) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Observe records a page's wall-clock time and adjusts the next page size
// by +/-25%, bounded by [min, max].
func (p *PageSizer) Observe(elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsedMs := elapsed.Milliseconds()
	switch {
	case elapsedMs > p.targetMs:
		p.current = clamp(p.current*3/4, p.min, p.max)
	case elapsedMs < p.targetMs:
		p.current = clamp(p.current*5/4, p.min, p.max)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ChainReader is the read surface the resolver needs from the chain client
// to fetch a page of user reserves at a fixed block tag.
type ChainReader interface {
	ReadUserReserves(ctx context.Context, users []chaintypes.Address, blockTag uint64) ([]UserReservesResult, error)
}

// UserReservesResult bundles one user's reserve snapshot for batch reads.
type UserReservesResult struct {
	User     chaintypes.Address
	Reserves []UserReserve
}

// HedgeMetrics reports hedge-race outcomes, kept separate from
// internal/metrics so this package carries no Prometheus dependency.
type HedgeMetrics interface {
	IncHedgeFired()
	IncHedgeWinnerSecondary()
}

type noopHedgeMetrics struct{}

func (noopHedgeMetrics) IncHedgeFired()           {}
func (noopHedgeMetrics) IncHedgeWinnerSecondary() {}

// Page issues one page read against primary, hedging to secondary after
// hedgeDelay if primary has not completed and secondary is non-nil. The
// first successful result wins; the loser is abandoned (best-effort
// cancellation via context).
func Page(ctx context.Context, primary, secondary ChainReader, users []chaintypes.Address, blockTag uint64, hedgeDelay time.Duration, metrics HedgeMetrics) ([]UserReservesResult, error) {
	if metrics == nil {
		metrics = noopHedgeMetrics{}
	}

	type outcome struct {
		result []UserReservesResult
		err    error
		source string
	}

	primaryCtx, cancelPrimary := context.WithCancel(ctx)
	defer cancelPrimary()
	primaryCh := make(chan outcome, 1)
	go func() {
		res, err := primary.ReadUserReserves(primaryCtx, users, blockTag)
		primaryCh <- outcome{result: res, err: err, source: "primary"}
	}()

	if secondary == nil || hedgeDelay <= 0 {
		out := <-primaryCh
		return out.result, out.err
	}

	select {
	case out := <-primaryCh:
		return out.result, out.err
	case <-time.After(hedgeDelay):
	}

	metrics.IncHedgeFired()

	secondaryCtx, cancelSecondary := context.WithCancel(ctx)
	defer cancelSecondary()
	secondaryCh := make(chan outcome, 1)
	go func() {
		res, err := secondary.ReadUserReserves(secondaryCtx, users, blockTag)
		secondaryCh <- outcome{result: res, err: err, source: "secondary"}
	}()

	var failed *outcome
	for i := 0; i < 2; i++ {
		var out outcome
		select {
		case out = <-primaryCh:
		case out = <-secondaryCh:
		}
		if out.err != nil {
			if failed == nil {
				failed = &out
			}
			continue
		}
		if out.source == "secondary" {
			cancelPrimary()
			metrics.IncHedgeWinnerSecondary()
		} else {
			cancelSecondary()
		}
		return out.result, nil
	}
	return failed.result, failed.err
}

// DirtyFirstOrder reorders users so that those in dirty come first,
// preserving relative order within each group.
func DirtyFirstOrder(users []chaintypes.Address, dirty map[chaintypes.Address]bool) []chaintypes.Address {
	ordered := make([]chaintypes.Address, 0, len(users))
	var rest []chaintypes.Address
	for _, u := range users {
		if dirty[u] {
			ordered = append(ordered, u)
		} else {
			rest = append(rest, u)
		}
	}
	return append(ordered, rest...)
}
