package execution

import (
	"context"
	"sync"
	"time"

	"github.com/JekaMas/workerpool"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
)

// SubmitMode selects how a signed transaction reaches the network.
type SubmitMode string

const (
	ModePublic  SubmitMode = "public"
	ModePrivate SubmitMode = "private"
	ModeRace    SubmitMode = "race"
	ModeBundle  SubmitMode = "bundle" // falls back to ModeRace with a warning
)

// Endpoint is one write destination: a public RPC or a private relay.
type Endpoint interface {
	Name() string
	Private() bool
	Broadcast(ctx context.Context, signedTx *types.Transaction) error
}

// Outcome is one endpoint's submission result, used to mark it unhealthy on
// first error in race mode.
type Outcome struct {
	Endpoint string
	Err      error
}

// Submitter fans a signed transaction out to one or more Endpoints
// according to SubmitMode, using a bounded github.com/JekaMas/workerpool
// pool for the race-mode fan-out so a pathological number of configured
// endpoints cannot spawn unbounded goroutines.
type Submitter struct {
	endpoints []Endpoint
	pool      *workerpool.WorkerPool
	log       *logging.Logger

	mu        sync.Mutex
	unhealthy map[string]bool
}

// NewSubmitter constructs a Submitter over the given endpoints with a
// worker pool sized maxConcurrent.
func NewSubmitter(endpoints []Endpoint, maxConcurrent int, log *logging.Logger) *Submitter {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Submitter{
		endpoints: endpoints,
		pool:      workerpool.New(maxConcurrent),
		log:       log,
		unhealthy: make(map[string]bool),
	}
}

// Stop drains the worker pool, waiting for in-flight submissions.
func (s *Submitter) Stop() { s.pool.StopWait() }

func (s *Submitter) healthyEndpoints(wantPrivate bool) []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Endpoint
	for _, e := range s.endpoints {
		if e.Private() != wantPrivate {
			continue
		}
		if s.unhealthy[e.Name()] {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Submitter) markUnhealthy(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhealthy[name] = true
}

// Submit sends signedTx under mode, returning the winning endpoint's name
// or an error if every attempt failed.
func (s *Submitter) Submit(ctx context.Context, mode SubmitMode, signedTx *types.Transaction) (string, error) {
	switch mode {
	case ModePublic:
		return s.submitSequential(ctx, s.healthyEndpoints(false), signedTx)
	case ModePrivate:
		private := s.healthyEndpoints(true)
		if len(private) == 0 {
			return "", errs.New(errs.KindProviderUnavail, "no private relay endpoint available")
		}
		return s.submitSequential(ctx, private, signedTx)
	case ModeRace, ModeBundle:
		if mode == ModeBundle {
			s.log.Warn("bundle submission mode is not implemented, falling back to race")
		}
		all := append(s.healthyEndpoints(false), s.healthyEndpoints(true)...)
		return s.submitRace(ctx, all, signedTx)
	default:
		return "", errs.New(errs.KindConfigInvalid, "unknown submission mode").WithDetail("mode", string(mode))
	}
}

func (s *Submitter) submitSequential(ctx context.Context, endpoints []Endpoint, signedTx *types.Transaction) (string, error) {
	if len(endpoints) == 0 {
		return "", errs.New(errs.KindProviderUnavail, "no healthy write endpoint available")
	}
	var lastErr error
	for _, e := range endpoints {
		if err := e.Broadcast(ctx, signedTx); err != nil {
			lastErr = err
			s.markUnhealthy(e.Name())
			continue
		}
		return e.Name(), nil
	}
	return "", lastErr
}

// submitRace broadcasts to every endpoint concurrently via the worker
// pool; the first success wins and the remaining in-flight attempts are
// cancelled best-effort.
func (s *Submitter) submitRace(ctx context.Context, endpoints []Endpoint, signedTx *types.Transaction) (string, error) {
	if len(endpoints) == 0 {
		return "", errs.New(errs.KindProviderUnavail, "no healthy write endpoint available")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Outcome, len(endpoints))
	for _, e := range endpoints {
		endpoint := e
		s.pool.Submit(func() {
			err := endpoint.Broadcast(raceCtx, signedTx)
			results <- Outcome{Endpoint: endpoint.Name(), Err: err}
		})
	}

	var lastErr error
	for i := 0; i < len(endpoints); i++ {
		select {
		case out := <-results:
			if out.Err == nil {
				cancel()
				return out.Endpoint, nil
			}
			lastErr = out.Err
			s.markUnhealthy(out.Endpoint)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// GasConfig carries the gas-abort and inclusion-delay bump tunables.
type GasConfig struct {
	MaxGasGwei        float64
	MaxGasBumps       int
	GasBumpPct        float64
	GasBurstFirstMs   time.Duration
	GasBurstSecondMs  time.Duration
	GasBurstFirstPct  float64
	GasBurstSecondPct float64
}

// GasController decides whether to abort a submission on current gas price
// and schedules inclusion-delay bumps.
type GasController struct {
	cfg GasConfig
}

// NewGasController constructs a GasController.
func NewGasController(cfg GasConfig) *GasController { return &GasController{cfg: cfg} }

// CheckAbort returns an error if currentGasGwei exceeds the configured cap.
func (g *GasController) CheckAbort(currentGasGwei float64) error {
	if g.cfg.MaxGasGwei > 0 && currentGasGwei > g.cfg.MaxGasGwei {
		return errs.GasCapExceeded(currentGasGwei, g.cfg.MaxGasGwei)
	}
	return nil
}

// BumpSchedule returns the elapsed-time/percentage pairs at which a pending
// transaction should be bumped, bounded by MaxGasBumps.
func (g *GasController) BumpSchedule() []struct {
	After time.Duration
	Pct   float64
} {
	schedule := []struct {
		After time.Duration
		Pct   float64
	}{
		{g.cfg.GasBurstFirstMs, g.cfg.GasBurstFirstPct},
		{g.cfg.GasBurstSecondMs, g.cfg.GasBurstSecondPct},
	}
	if g.cfg.MaxGasBumps < len(schedule) {
		schedule = schedule[:g.cfg.MaxGasBumps]
	}
	return schedule
}

// BumpGasPrice applies GasBumpPct to gasPriceGwei, used for any bump beyond
// the two scheduled bursts.
func (g *GasController) BumpGasPrice(gasPriceGwei float64) float64 {
	return gasPriceGwei * (1 + g.cfg.GasBumpPct/100)
}
