// Package prioritysweep implements the periodic full-borrower scoring pass
// that produces a priority set: a cron-scheduled (github.com/robfig/cron/v3)
// core.Service that pages a borrower index, scores each user, and publishes
// an immutable, versioned PrioritySet consumed read-only by the predictive
// and execution layers.
package prioritysweep

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/core"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
)

// BorrowerPage is one page of the borrower index, a narrower view than
// chainclient.Borrower carrying just the fields the scorer needs.
type BorrowerPage struct {
	User          chaintypes.Address
	DebtUsd       float64
	CollateralUsd float64
	HF            float64
}

// PageFunc yields one page per call and a false ok once the index is
// exhausted, matching chainclient.CandidateSource's pagination shape.
type PageFunc func() ([]BorrowerPage, bool, error)

// BorrowerIndex is the read surface the sweeper pages through.
type BorrowerIndex interface {
	Page(ctx context.Context, pageSize int) (PageFunc, error)
}

// Config carries the sweep's pacing, paging, scoring, and filter tunables.
type Config struct {
	IntervalMin int
	PageSize    int
	InterRequestMs int
	TimeoutMs   int64

	MinDebtUsd       float64
	MinCollateralUsd float64
	TargetSize       int

	WDebt    float64
	WColl    float64
	WHF      float64
	HFCeiling float64

	LowHFBoostThreshold float64
	LowHFBoost          float64
}

// ScoredUser is one entry of a published PrioritySet.
type ScoredUser struct {
	User          chaintypes.Address
	Score         float64
	DebtUsd       float64
	CollateralUsd float64
	HF            float64
}

// SweepStats summarizes one completed (or aborted) sweep run.
type SweepStats struct {
	Seen       int
	Filtered   int
	Selected   int
	TopScore   float64
	MedianHF   float64
	DurationMs int64
	HeapPeakMb float64
	Aborted    bool
}

// PrioritySet is immutable once published; a new sweep produces a new
// PrioritySet wholesale rather than mutating the prior one.
type PrioritySet struct {
	Version uint64
	Users   []ScoredUser
	Stats   SweepStats
}

// score computes w_debt*log10(debtUsd) + w_coll*log10(collateralUsd) -
// w_hf*max(0, hfCeiling-hf) + (hf <= lowHfBoostThreshold ? lowHfBoost : 0).
// log10 of a non-positive value is treated as 0 contribution.
func score(b BorrowerPage, cfg Config) float64 {
	debtTerm := 0.0
	if b.DebtUsd > 0 {
		debtTerm = cfg.WDebt * math.Log10(b.DebtUsd)
	}
	collTerm := 0.0
	if b.CollateralUsd > 0 {
		collTerm = cfg.WColl * math.Log10(b.CollateralUsd)
	}
	hfPenalty := cfg.WHF * math.Max(0, cfg.HFCeiling-b.HF)

	boost := 0.0
	if b.HF <= cfg.LowHFBoostThreshold {
		boost = cfg.LowHFBoost
	}

	return debtTerm + collTerm - hfPenalty + boost
}

// Publisher receives each newly-built PrioritySet, single-writer many-reader.
type Publisher interface {
	Publish(set *PrioritySet)
}

// LatestHolder is a minimal Publisher that keeps only the most recent
// PrioritySet, safe for concurrent reads via Latest.
type LatestHolder struct {
	mu      sync.RWMutex
	current *PrioritySet
}

func (h *LatestHolder) Publish(set *PrioritySet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = set
}

// Latest returns the most recently published PrioritySet, or nil if none
// has been published yet.
func (h *LatestHolder) Latest() *PrioritySet {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Sweeper is the core.Service that runs the periodic scoring pass.
type Sweeper struct {
	cfg       Config
	index     BorrowerIndex
	publisher Publisher
	log       *logging.Logger

	cron    *cron.Cron
	version uint64
	mu      sync.Mutex

	runningMu sync.Mutex
	cancelRun context.CancelFunc
}

// NewSweeper constructs a Sweeper. IntervalMin defaults to 60 if unset.
func NewSweeper(cfg Config, index BorrowerIndex, publisher Publisher, log *logging.Logger) *Sweeper {
	if cfg.IntervalMin <= 0 {
		cfg.IntervalMin = 60
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = 1000
	}
	return &Sweeper{
		cfg:       cfg,
		index:     index,
		publisher: publisher,
		log:       log,
	}
}

func (s *Sweeper) Name() string { return "priority_sweep" }

func (s *Sweeper) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         s.Name(),
		Layer:        core.LayerSweep,
		Capabilities: []string{"borrower_scoring", "priority_set_publication"},
	}
}

// Start schedules the periodic sweep via cron and returns once the schedule
// is registered; it does not block.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := minutelySpec(s.cfg.IntervalMin)
	_, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron schedule and cancels an in-flight sweep, if any.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	s.runningMu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.runningMu.Unlock()
	return nil
}

func minutelySpec(intervalMin int) string {
	return "@every " + time.Duration(intervalMin*int(time.Minute)).String()
}

// RunOnce executes a single sweep synchronously, bypassing the cron
// schedule; exported for manual/administrative triggering and tests.
func (s *Sweeper) RunOnce(ctx context.Context) (*PrioritySet, error) {
	return s.runOnce(ctx)
}

func (s *Sweeper) runOnce(ctx context.Context) (*PrioritySet, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeoutOrDefault(s.cfg.TimeoutMs))
	s.runningMu.Lock()
	s.cancelRun = cancel
	s.runningMu.Unlock()
	defer cancel()

	start := time.Now()
	stats := SweepStats{}

	page, err := s.index.Page(runCtx, s.cfg.PageSize)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("priority sweep: failed to open borrower index page")
		}
		return nil, err
	}

	var filtered []ScoredUser
	var hfSamples []float64

	for {
		select {
		case <-runCtx.Done():
			stats.Aborted = true
			s.emitSummary(stats, start)
			return nil, runCtx.Err()
		default:
		}

		batch, ok, pageErr := page()
		if pageErr != nil {
			if s.log != nil {
				s.log.WithError(pageErr).Warn("priority sweep: page read failed")
			}
			stats.Aborted = true
			s.emitSummary(stats, start)
			return nil, pageErr
		}

		stats.Seen += len(batch)
		for _, b := range batch {
			if b.DebtUsd < s.cfg.MinDebtUsd || b.CollateralUsd < s.cfg.MinCollateralUsd {
				continue
			}
			stats.Filtered++
			hfSamples = append(hfSamples, b.HF)
			filtered = append(filtered, ScoredUser{
				User:          b.User,
				Score:         score(b, s.cfg),
				DebtUsd:       b.DebtUsd,
				CollateralUsd: b.CollateralUsd,
				HF:            b.HF,
			})
		}

		if !ok {
			break
		}

		if s.cfg.InterRequestMs > 0 {
			select {
			case <-time.After(time.Duration(s.cfg.InterRequestMs) * time.Millisecond):
			case <-runCtx.Done():
				stats.Aborted = true
				s.emitSummary(stats, start)
				return nil, runCtx.Err()
			}
		}
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })

	if len(filtered) > s.cfg.TargetSize {
		filtered = filtered[:s.cfg.TargetSize]
	}
	stats.Selected = len(filtered)
	if len(filtered) > 0 {
		stats.TopScore = filtered[0].Score
	}
	stats.MedianHF = median(hfSamples)
	stats.DurationMs = time.Since(start).Milliseconds()
	stats.HeapPeakMb = heapPeakMb()

	s.mu.Lock()
	s.version++
	v := s.version
	s.mu.Unlock()

	set := &PrioritySet{Version: v, Users: filtered, Stats: stats}
	if s.publisher != nil {
		s.publisher.Publish(set)
	}
	s.emitSummary(stats, start)
	return set, nil
}

func (s *Sweeper) emitSummary(stats SweepStats, start time.Time) {
	if s.log == nil {
		return
	}
	s.log.WithFields(map[string]any{
		"seen":        stats.Seen,
		"filtered":    stats.Filtered,
		"selected":    stats.Selected,
		"top_score":   stats.TopScore,
		"median_hf":   stats.MedianHF,
		"duration_ms": time.Since(start).Milliseconds(),
		"heap_peak_mb": stats.HeapPeakMb,
		"aborted":     stats.Aborted,
	}).Info("priority sweep completed")
}

func timeoutOrDefault(ms int64) time.Duration {
	if ms <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(ms) * time.Millisecond
}

func median(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func heapPeakMb() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc) / (1024 * 1024)
}
