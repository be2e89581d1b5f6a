package execution

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/hfresolver"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
)

// CriticalEvent is one user crossing into the execution threshold, handed
// to the critical lane ahead of the regular scan cadence.
type CriticalEvent struct {
	User        chaintypes.Address
	Snapshot    hfresolver.Snapshot
	ObservedAt  time.Time
	ObservedMs  int64
	ObservedBlk uint64
}

// Reverifier fetches a fresh, small-batch snapshot for a single user, used
// to revalidate a critical event whose snapshot has aged past one block.
type Reverifier interface {
	Reverify(ctx context.Context, user chaintypes.Address, block uint64) (hfresolver.Snapshot, error)
}

// Outcome kinds recorded for every critical-lane event.
type LaneOutcomeKind string

const (
	LaneSuccess LaneOutcomeKind = "success"
	LaneRaced   LaneOutcomeKind = "raced"
	LaneSkip    LaneOutcomeKind = "skip"
)

// LaneOutcome is the per-event result recorded after the critical lane
// finishes processing it.
type LaneOutcome struct {
	User             chaintypes.Address
	Kind             LaneOutcomeKind
	SkipReason       string
	SnapshotStale    bool
	Reverified       bool
	SnapshotAgeMs    int64
	ReverifyMs       int64
	SubmitMs         int64
	TotalMs          int64
	WinningEndpoint  string
}

// LaneCounters accumulates running totals across processed events, read by
// the metrics exporter.
type LaneCounters struct {
	mu               sync.Mutex
	snapshotStale    int64
	miniMulticalls   int64
	successes        int64
	races            int64
	skips            int64
}

func (c *LaneCounters) recordStale()       { c.mu.Lock(); c.snapshotStale++; c.mu.Unlock() }
func (c *LaneCounters) recordMulticall()   { c.mu.Lock(); c.miniMulticalls++; c.mu.Unlock() }
func (c *LaneCounters) recordOutcome(k LaneOutcomeKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch k {
	case LaneSuccess:
		c.successes++
	case LaneRaced:
		c.races++
	case LaneSkip:
		c.skips++
	}
}

// Snapshot returns a point-in-time copy of the counters.
func (c *LaneCounters) Snapshot() (staleCount, multicalls, successes, races, skips int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotStale, c.miniMulticalls, c.successes, c.races, c.skips
}

// CriticalLane is the fast-path consumer for events arriving off the
// predictive/critical channel rather than the regular scan cadence: it
// checks the snapshot's age, reverifies via a mini-multicall if stale,
// and races a submission if the user is still liquidatable.
type CriticalLane struct {
	reverify   Reverifier
	intents    *IntentCache
	prices     *PriceHotCache
	inflight   *InflightLock
	submitter  *Submitter
	gas        *GasController
	buildTx    func(ctx context.Context, user chaintypes.Address, snap hfresolver.Snapshot) (Intent, error)
	signTx     func(ctx context.Context, intent Intent) (*types.Transaction, error)

	staleAfter time.Duration
	counters   *LaneCounters
	log        *logging.Logger
}

// CriticalLaneConfig bundles CriticalLane's collaborators.
type CriticalLaneConfig struct {
	Reverifier Reverifier
	Intents    *IntentCache
	Prices     *PriceHotCache
	Inflight   *InflightLock
	Submitter  *Submitter
	Gas        *GasController
	BuildTx    func(ctx context.Context, user chaintypes.Address, snap hfresolver.Snapshot) (Intent, error)
	SignTx     func(ctx context.Context, intent Intent) (*types.Transaction, error)
	StaleAfter time.Duration
	Log        *logging.Logger
}

// NewCriticalLane constructs a CriticalLane. StaleAfter defaults to one
// twelve-second block interval's worth of staleness tolerance.
func NewCriticalLane(cfg CriticalLaneConfig) *CriticalLane {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 12 * time.Second
	}
	return &CriticalLane{
		reverify:   cfg.Reverifier,
		intents:    cfg.Intents,
		prices:     cfg.Prices,
		inflight:   cfg.Inflight,
		submitter:  cfg.Submitter,
		gas:        cfg.Gas,
		buildTx:    cfg.BuildTx,
		signTx:     cfg.SignTx,
		staleAfter: staleAfter,
		counters:   &LaneCounters{},
		log:        cfg.Log,
	}
}

// Counters exposes the running LaneCounters for metrics export.
func (l *CriticalLane) Counters() *LaneCounters { return l.counters }

// Handle processes one CriticalEvent end to end, recording an outcome.
func (l *CriticalLane) Handle(ctx context.Context, ev CriticalEvent, currentGasGwei float64) LaneOutcome {
	start := time.Now()
	outcome := LaneOutcome{User: ev.User}

	if !l.inflight.TryAcquire(ev.User) {
		outcome.Kind = LaneSkip
		outcome.SkipReason = "inflight"
		l.counters.recordOutcome(LaneSkip)
		outcome.TotalMs = time.Since(start).Milliseconds()
		return outcome
	}
	defer l.inflight.Release(ev.User)

	snap := ev.Snapshot
	age := time.Since(ev.ObservedAt)
	outcome.SnapshotAgeMs = age.Milliseconds()
	outcome.SnapshotStale = age > l.staleAfter

	if outcome.SnapshotStale {
		l.counters.recordStale()
		revStart := time.Now()
		l.counters.recordMulticall()
		fresh, err := l.reverify.Reverify(ctx, ev.User, ev.ObservedBlk)
		outcome.ReverifyMs = time.Since(revStart).Milliseconds()
		if err != nil {
			outcome.Kind = LaneSkip
			outcome.SkipReason = "reverify_failed"
			l.counters.recordOutcome(LaneSkip)
			outcome.TotalMs = time.Since(start).Milliseconds()
			return outcome
		}
		outcome.Reverified = true
		snap = fresh
	}

	if !snap.IsLiquidatable() {
		outcome.Kind = LaneSkip
		outcome.SkipReason = "user_not_liquidatable"
		l.counters.recordOutcome(LaneSkip)
		outcome.TotalMs = time.Since(start).Milliseconds()
		return outcome
	}

	if l.gas != nil {
		if err := l.gas.CheckAbort(currentGasGwei); err != nil {
			outcome.Kind = LaneSkip
			outcome.SkipReason = "gas_cap_exceeded"
			l.counters.recordOutcome(LaneSkip)
			outcome.TotalMs = time.Since(start).Milliseconds()
			return outcome
		}
	}

	intent, err := l.buildTx(ctx, ev.User, snap)
	if err != nil {
		outcome.Kind = LaneSkip
		outcome.SkipReason = "build_failed"
		l.counters.recordOutcome(LaneSkip)
		outcome.TotalMs = time.Since(start).Milliseconds()
		return outcome
	}
	l.intents.Put(&intent)

	signedTx, err := l.signTx(ctx, intent)
	if err != nil {
		outcome.Kind = LaneSkip
		outcome.SkipReason = "sign_failed"
		l.counters.recordOutcome(LaneSkip)
		outcome.TotalMs = time.Since(start).Milliseconds()
		return outcome
	}

	submitStart := time.Now()
	winner, err := l.submitter.Submit(ctx, ModeRace, signedTx)
	outcome.SubmitMs = time.Since(submitStart).Milliseconds()
	if err != nil {
		outcome.Kind = LaneSkip
		outcome.SkipReason = classifySubmitFailure(err)
		l.counters.recordOutcome(LaneSkip)
		outcome.TotalMs = time.Since(start).Milliseconds()
		return outcome
	}

	outcome.WinningEndpoint = winner
	outcome.Kind = LaneRaced
	l.counters.recordOutcome(LaneRaced)
	outcome.TotalMs = time.Since(start).Milliseconds()
	return outcome
}

func classifySubmitFailure(err error) string {
	if kind := errs.KindOf(err); kind != "" {
		return string(kind)
	}
	return "submit_failed"
}
