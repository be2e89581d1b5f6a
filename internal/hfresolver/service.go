package hfresolver

import (
	"context"
	"sync"
	"time"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/bus"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/core"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
)

// BlockSource yields the chain head on every new block, the event the
// resolution loop paces itself against.
type BlockSource interface {
	Subscribe() <-chan uint64
}

// DirtyProvider supplies the per-run scan order and receives resolution
// outcomes, implemented by internal/candidates.Store.
type DirtyProvider interface {
	DirtyFirst() []chaintypes.Address
	ApplyResolution(user chaintypes.Address, hf float64, nowMs int64)
}

// RunMetrics reports per-run outcomes, kept separate from internal/metrics.
type RunMetrics interface {
	HedgeMetrics
	IncResolutionOutcome(outcome string)
	ObserveResolutionDuration(d time.Duration)
	SetPageSize(n int)
	IncRunAborted()
	IncLiquidatableEmitted()
}

type noopRunMetrics struct{ noopHedgeMetrics }

func (noopRunMetrics) IncResolutionOutcome(string)             {}
func (noopRunMetrics) ObserveResolutionDuration(time.Duration) {}
func (noopRunMetrics) SetPageSize(int)                         {}
func (noopRunMetrics) IncRunAborted()                          {}
func (noopRunMetrics) IncLiquidatableEmitted()                 {}

// ServiceConfig carries the resolution loop's pacing and paging tunables.
type ServiceConfig struct {
	HeadPageMin     int
	HeadPageMax     int
	HeadPageTargetMs int64
	HedgeDelay      time.Duration
	RunStallAbort   time.Duration
}

// Service drives the real-time resolution loop: on every new block it pages
// the candidate store's dirty-first order, resolves each page's HF, applies
// the outcome back to the store, and publishes a LiquidatableEvent for any
// user crossing below 1.0.
type Service struct {
	cfg       ServiceConfig
	blocks    BlockSource
	primary   ChainReader
	secondary ChainReader
	dirty     DirtyProvider
	bus       *bus.Bus
	metrics   RunMetrics
	log       *logging.Logger

	pageSizer *PageSizer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService constructs a resolution Service. secondary and metrics may be
// nil.
func NewService(cfg ServiceConfig, blocks BlockSource, primary, secondary ChainReader, dirty DirtyProvider, b *bus.Bus, metrics RunMetrics, log *logging.Logger) *Service {
	if metrics == nil {
		metrics = noopRunMetrics{}
	}
	return &Service{
		cfg:       cfg,
		blocks:    blocks,
		primary:   primary,
		secondary: secondary,
		dirty:     dirty,
		bus:       b,
		metrics:   metrics,
		log:       log,
		pageSizer: NewPageSizer(cfg.HeadPageMin, cfg.HeadPageMax, cfg.HeadPageTargetMs),
	}
}

func (s *Service) Name() string { return "hfresolver.service" }

func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{Name: s.Name(), Layer: core.LayerResolve, Capabilities: []string{"hf_resolution", "liquidatable_emission"}}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(runCtx)
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	blockCh := s.blocks.Subscribe()
	watchdog := NewRunWatchdog(s.cfg.RunStallAbort, s.metrics.IncRunAborted)

	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blockCh:
			if !ok {
				return
			}
			start := time.Now()
			err := watchdog.Watch(ctx, func(runCtx context.Context) error {
				return s.runOnce(runCtx, block)
			})
			s.metrics.ObserveResolutionDuration(time.Since(start))
			if err != nil {
				s.metrics.IncResolutionOutcome("aborted")
				if s.log != nil {
					s.log.WithError(err).Warn("hf resolution run aborted")
				}
				continue
			}
			s.metrics.IncResolutionOutcome("completed")
		}
	}
}

func (s *Service) runOnce(ctx context.Context, block uint64) error {
	users := s.dirty.DirtyFirst()
	pageSize := s.pageSizer.Current()
	s.metrics.SetPageSize(pageSize)

	for start := 0; start < len(users); start += pageSize {
		end := start + pageSize
		if end > len(users) {
			end = len(users)
		}
		page := users[start:end]

		pageStart := time.Now()
		results, err := Page(ctx, s.primary, s.secondary, page, block, s.cfg.HedgeDelay, s.metrics)
		s.pageSizer.Observe(time.Since(pageStart))
		if err != nil {
			return err
		}

		nowMs := time.Now().UnixMilli()
		for _, r := range results {
			snapshot := Resolve(r.User, block, r.Reserves)
			s.dirty.ApplyResolution(r.User, snapshot.HF, nowMs)
			if snapshot.IsLiquidatable() {
				s.metrics.IncLiquidatableEmitted()
				if s.bus != nil {
					s.bus.PublishLiquidatable(bus.LiquidatableEvent{
						User:        r.User,
						Block:       block,
						HF:          snapshot.HF,
						TriggerType: "hf_resolver",
						Timestamp:   time.Now(),
					})
				}
			}
		}
	}
	return nil
}
