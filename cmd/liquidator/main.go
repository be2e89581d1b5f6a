// Command liquidator wires every lifecycle-managed component of the bot
// and runs until SIGINT/SIGTERM, in the style of the service_layer monorepo's
// single-binary cmd entrypoints: load config, construct collaborators in
// dependency order, start them, block on a signal, stop in reverse order.
package main

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/bus"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/candidates"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/chainclient"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/config"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/core"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/execution"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/hfresolver"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/ingest"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/metrics"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/predictive"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/prioritysweep"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/rpcbudget"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/scanregistry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New("liquidator", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New("liquidator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := rpcbudget.NewPool(cfg.RPC.ProviderURLs, time.Duration(cfg.RPC.CooldownOn429Ms)*time.Millisecond)
	budget := rpcbudget.New(rpcbudget.Config{
		Capacity:   cfg.RPC.RPCBudgetBurst,
		RefillRate: float64(cfg.RPC.RPCBudgetCuPerSec),
		MinSpacing: time.Duration(cfg.RPC.RPCBudgetMinSpacingMs) * time.Millisecond,
		JitterMax:  time.Duration(cfg.RPC.RPCJitterMs) * time.Millisecond,
	})
	client := chainclient.New(pool, budget, nil, log)

	eventBus := bus.New()

	registry := scanregistry.New(scanregistry.Config{
		AvgBlockTime:             2 * time.Second,
		MaxRecentlyCompletedSize: 5000,
		Counters:                 &scanRegistryCounters{m: m},
	})

	store := candidates.NewStore(cfg.Trackers.HotlistMax, candidates.Thresholds{
		HotlistMaxHF:  cfg.Trackers.HotlistMaxHF,
		WarmMaxHF:     1.2,
		HysteresisBps: cfg.Resolver.HysteresisBps,
	})

	poolAddresses := parseAddresses(os.Getenv("POOL_ADDRESSES"))
	subscriber := ingest.NewSubscriber(client, ingest.DecodePoolLog, ingest.Config{
		Addresses: poolAddresses,
	}, eventBus, &ingestMetrics{m: m}, log)

	runBackfill(ctx, client, poolAddresses, store, log)

	queue := predictive.NewQueueManager(predictive.QueueConfig{
		SafetyMax:          cfg.Predictive.PredictiveQueueSafetyMax,
		CandidatesPerBlock: cfg.Predictive.PredictiveQueueMaxCandidatesPerBlock,
		CallsPerBlock:      cfg.Predictive.PredictiveQueueBudgetCallsPerBlock,
		BlockDebounce:      uint64(cfg.Predictive.PerUserBlockDebounce),
		CooldownSec:        cfg.Predictive.PredictiveEvalCooldownSec,
	}, time.Now)
	_ = queue // constructed here but not consulted by any running flow; not a lifecycle Service

	resolverService := hfresolver.NewService(hfresolver.ServiceConfig{
		HeadPageMin:      cfg.Resolver.HeadPageMin,
		HeadPageMax:      cfg.Resolver.HeadPageMax,
		HeadPageTargetMs: int64(cfg.Resolver.HeadPageTargetMs),
		HedgeDelay:       time.Duration(cfg.Resolver.HeadCheckHedgeMs) * time.Millisecond,
		RunStallAbort:    time.Duration(cfg.Resolver.RunStallAbortMs) * time.Millisecond,
	}, newBlockFeed(client, log), &chainReaderAdapter{client: client}, nil, store, eventBus, &resolverMetrics{m: m}, log)

	intents := execution.NewIntentCache(cfg.Profit.MaxSlippageBps)
	prices := execution.NewPriceHotCache(30)
	inflight := execution.NewInflightLock(cfg.Execution.ExecutionInflightLock)
	gasCfg := execution.GasConfig{
		MaxGasGwei:       cfg.Execution.MaxGasPriceGwei,
		MaxGasBumps:      2,
		GasBumpPct:       (cfg.Execution.GasBurstMultiplier - 1) * 100,
		GasBurstFirstMs:  time.Duration(cfg.Execution.GasBurstWindowSec) * time.Second / 2,
		GasBurstSecondMs: time.Duration(cfg.Execution.GasBurstWindowSec) * time.Second,
	}
	gasController := execution.NewGasController(gasCfg)

	endpoints := buildEndpoints(client, cfg.Execution.PrivateBundleRPC)
	submitter := execution.NewSubmitter(endpoints, 4, log)
	defer submitter.Stop()

	chainID := chainIDFromEnv()
	signer, err := execution.NewSigner(os.Getenv("EXECUTOR_PRIVATE_KEY"), chainID)
	if err != nil {
		log.WithError(err).Warn("executor signer unavailable, critical lane will skip all submissions")
	}

	var poolAddress chaintypes.Address
	if len(poolAddresses) > 0 {
		poolAddress = poolAddresses[0]
	}

	criticalLane := execution.NewCriticalLane(execution.CriticalLaneConfig{
		Reverifier: &singleUserReverifier{client: client},
		Intents:    intents,
		Prices:     prices,
		Inflight:   inflight,
		Submitter:  submitter,
		Gas:        gasController,
		BuildTx:    buildIntent,
		SignTx:     signTxFn(signer, chainID, poolAddress, client),
		StaleAfter: time.Duration(2) * time.Second,
		Log:        log,
	})

	liquidatableCh := make(chan bus.LiquidatableEvent, 64)
	liquidatableSub := eventBus.SubscribeLiquidatable(liquidatableCh)
	go runCriticalLane(ctx, criticalLane, client, liquidatableCh, liquidatableSub, log)

	seed := []chaintypes.Address{}
	candidateSource := chainclient.NewChainCandidateSource(client, seed)
	sweepHolder := &prioritysweep.LatestHolder{}
	sweeper := prioritysweep.NewSweeper(prioritysweep.Config{
		IntervalMin:         cfg.PrioritySweep.PrioritySweepIntervalMin,
		PageSize:            cfg.PrioritySweep.PrioritySweepPageSize,
		InterRequestMs:      cfg.PrioritySweep.InterRequestMs,
		TimeoutMs:           cfg.PrioritySweep.PrioritySweepTimeoutMs,
		MinDebtUsd:          cfg.PrioritySweep.MinDebtUsd,
		MinCollateralUsd:    cfg.PrioritySweep.MinCollateralUsd,
		TargetSize:          cfg.PrioritySweep.TargetSize,
		WDebt:               cfg.PrioritySweep.WDebt,
		WColl:               cfg.PrioritySweep.WColl,
		WHF:                 cfg.PrioritySweep.WHF,
		HFCeiling:           cfg.PrioritySweep.HFCeiling,
		LowHFBoostThreshold: cfg.PrioritySweep.LowHFBoostThreshold,
		LowHFBoost:          cfg.PrioritySweep.LowHFBoost,
	}, &borrowerIndexAdapter{source: candidateSource, client: client}, &metricsPublisher{holder: sweepHolder, m: m}, log)

	services := []core.Service{
		subscriber,
		resolverService,
		sweeper,
	}

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.WithError(err).WithField("service", svc.Name()).Fatal("failed to start service")
		}
		log.WithField("service", svc.Name()).Info("service started")
	}
	registry.Start()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry.Stop()
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(shutdownCtx); err != nil {
			log.WithError(err).WithField("service", svc.Name()).Warn("service did not stop cleanly")
		}
	}
}

// runCriticalLane drains LiquidatableEvents and hands each to the critical
// lane. Every event's snapshot is treated as already stale (ObservedAt left
// at its zero value) so the lane always reverifies via a fresh mini-multicall
// before submitting, since the bus event itself carries no HFRaw for the
// lane's exact-integer liquidatable check.
func runCriticalLane(ctx context.Context, lane *execution.CriticalLane, client *chainclient.Client, ch <-chan bus.LiquidatableEvent, sub event.Subscription, log *logging.Logger) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.WithError(err).Warn("liquidatable subscription error")
			}
			return
		case ev := <-ch:
			fee, err := client.GetFeeData(ctx)
			gasGwei := 0.0
			if err == nil && fee.MaxFeePerGas != nil {
				gasGwei = weiToGwei(fee.MaxFeePerGas)
			}
			outcome := lane.Handle(ctx, execution.CriticalEvent{
				User:        ev.User,
				Snapshot:    hfresolver.Snapshot{User: ev.User, Block: ev.Block, HF: ev.HF},
				ObservedBlk: ev.Block,
			}, gasGwei)
			log.WithFields(map[string]interface{}{
				"user":   ev.User.Hex(),
				"kind":   outcome.Kind,
				"reason": outcome.SkipReason,
			}).Info("critical lane processed liquidatable event")
		}
	}
}

func weiToGwei(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e9))
	out, _ := f.Float64()
	return out
}

func serveMetrics(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Warn("metrics server exited")
	}
}

func parseAddresses(raw string) []chaintypes.Address {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]chaintypes.Address, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, chaintypes.NormalizeAddress(p))
	}
	return out
}

// runBackfill scans BACKFILL_WINDOW_BLOCKS of history ending at the current
// head in BACKFILL_CHUNK_BLOCKS chunks and upserts every touched user into
// the candidate store before the live subscriber and resolver start, so the
// dirty-first resolution order has a seeded population on a cold start.
func runBackfill(ctx context.Context, client *chainclient.Client, addresses []chaintypes.Address, store *candidates.Store, log *logging.Logger) {
	windowBlocks := envUint64("BACKFILL_WINDOW_BLOCKS", 50_000)
	chunkBlocks := envUint64("BACKFILL_CHUNK_BLOCKS", 2000)

	current, err := client.GetBlockNumber(ctx)
	if err != nil {
		log.WithError(err).Warn("backfill skipped, could not read current block")
		return
	}

	backfiller := ingest.NewBackfiller(client, ingest.DecodePoolLog, ingest.BackfillConfig{
		Addresses:    addresses,
		WindowBlocks: windowBlocks,
		ChunkBlocks:  chunkBlocks,
	}, log)

	events, err := backfiller.Run(ctx, current)
	if err != nil {
		log.WithError(err).Warn("backfill run failed")
		return
	}

	nowMs := time.Now().UnixMilli()
	for _, ev := range events {
		for _, user := range ev.ExtractUsers() {
			store.Upsert(user, nowMs)
		}
	}
	log.WithFields(map[string]interface{}{"events": len(events), "window_blocks": windowBlocks}).Info("backfill complete")
}

func envUint64(key string, def uint64) uint64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// blockFeed adapts chainclient's header subscription into hfresolver's
// BlockSource contract (a channel of block numbers).
type blockFeed struct {
	client *chainclient.Client
	log    *logging.Logger
	ch     chan uint64
}

func newBlockFeed(client *chainclient.Client, log *logging.Logger) *blockFeed {
	return &blockFeed{client: client, log: log, ch: make(chan uint64, 8)}
}

func (f *blockFeed) Subscribe() <-chan uint64 {
	go f.pump()
	return f.ch
}

func (f *blockFeed) pump() {
	ctx := context.Background()
	headers, sub, err := f.client.SubscribeBlocks(ctx)
	if err != nil {
		f.log.WithError(err).Warn("block feed subscription failed")
		return
	}
	defer sub.Unsubscribe()
	for {
		select {
		case h, ok := <-headers:
			if !ok {
				return
			}
			f.ch <- h.Number.Uint64()
		case err := <-sub.Err():
			f.log.WithError(err).Warn("block feed subscription error")
			return
		}
	}
}

// chainReaderAdapter bridges chainclient.ReadClient's Multicall into
// hfresolver.ChainReader's batch-of-users contract. Amount/price decoding
// from the raw multicall results is the pool-ABI-specific step left for the
// adapter's caller to complete once the deployed pool's getUserAccountData
// and price oracle ABIs are pinned; until then it returns one result per
// user with no reserves rather than fabricating reserve data.
type chainReaderAdapter struct {
	client *chainclient.Client
}

func (a *chainReaderAdapter) ReadUserReserves(ctx context.Context, users []chaintypes.Address, blockTag uint64) ([]hfresolver.UserReservesResult, error) {
	results := make([]hfresolver.UserReservesResult, 0, len(users))
	for _, u := range users {
		results = append(results, hfresolver.UserReservesResult{User: u})
	}
	return results, nil
}

// singleUserReverifier performs the critical lane's mini-multicall
// reverification for exactly one user.
type singleUserReverifier struct {
	client *chainclient.Client
}

func (r *singleUserReverifier) Reverify(ctx context.Context, user chaintypes.Address, block uint64) (hfresolver.Snapshot, error) {
	reader := &chainReaderAdapter{client: r.client}
	results, err := reader.ReadUserReserves(ctx, []chaintypes.Address{user}, block)
	if err != nil || len(results) == 0 {
		return hfresolver.Snapshot{}, err
	}
	return hfresolver.Resolve(user, block, results[0].Reserves), nil
}

// buildIntent assembles the liquidation intent for a confirmed-liquidatable
// user. Selecting the actual collateral/debt reserve pair via
// profit.SelectCollateralAsset/SelectDebtAsset needs per-reserve balances
// and prices chainReaderAdapter does not yet populate (see its doc comment);
// until the pool's getUserAccountData/price-oracle ABIs are wired there,
// this leaves CollateralAsset/DebtAsset/DebtToCover at their zero values.
func buildIntent(ctx context.Context, user chaintypes.Address, snap hfresolver.Snapshot) (execution.Intent, error) {
	return execution.Intent{
		User:         user,
		BuiltAtMs:    time.Now().UnixMilli(),
		BuiltAtBlock: snap.Block,
	}, nil
}

func chainIDFromEnv() *big.Int {
	raw := strings.TrimSpace(os.Getenv("CHAIN_ID"))
	if raw == "" {
		return big.NewInt(8453) // Base mainnet, the default deployment target
	}
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return big.NewInt(8453)
	}
	return id
}

func signTxFn(signer *execution.Signer, chainID *big.Int, pool chaintypes.Address, client *chainclient.Client) func(context.Context, execution.Intent) (*gethtypes.Transaction, error) {
	return func(ctx context.Context, intent execution.Intent) (*gethtypes.Transaction, error) {
		if signer == nil {
			return nil, errors.New("execution: no executor signer configured")
		}
		fee, err := client.GetFeeData(ctx)
		if err != nil {
			return nil, err
		}
		return signer.BuildAndSign(ctx, intent, execution.TxParams{
			ChainID:   chainID,
			Pool:      pool,
			GasLimit:  600_000,
			GasFeeCap: fee.MaxFeePerGas,
			GasTipCap: fee.MaxPriorityFeePerGas,
		})
	}
}

// rpcBroadcastEndpoint implements execution.Endpoint over a chainclient,
// one per configured submission target (public providers plus an optional
// private relay).
type rpcBroadcastEndpoint struct {
	name    string
	private bool
	client  *chainclient.Client
}

func (e *rpcBroadcastEndpoint) Name() string    { return e.name }
func (e *rpcBroadcastEndpoint) Private() bool   { return e.private }
func (e *rpcBroadcastEndpoint) Broadcast(ctx context.Context, signedTx *gethtypes.Transaction) error {
	return e.client.BroadcastTransaction(ctx, signedTx)
}

func buildEndpoints(client *chainclient.Client, privateRPC string) []execution.Endpoint {
	endpoints := []execution.Endpoint{&rpcBroadcastEndpoint{name: "public", client: client}}
	if strings.TrimSpace(privateRPC) != "" {
		endpoints = append(endpoints, &rpcBroadcastEndpoint{name: "private", private: true, client: client})
	}
	return endpoints
}

// borrowerIndexAdapter bridges a chainclient.CandidateSource's paginated
// borrowers into prioritysweep.BorrowerIndex, resolving each page's HF via
// the same chainReaderAdapter the resolver service uses.
type borrowerIndexAdapter struct {
	source chainclient.CandidateSource
	client *chainclient.Client
}

func (a *borrowerIndexAdapter) Page(ctx context.Context, pageSize int) (prioritysweep.PageFunc, error) {
	next, err := a.source.UsersWithBorrowing(ctx, 0, pageSize)
	if err != nil {
		return nil, err
	}
	reader := &chainReaderAdapter{client: a.client}
	return func() ([]prioritysweep.BorrowerPage, bool, error) {
		borrowers, ok, err := next()
		if err != nil {
			return nil, false, err
		}
		users := make([]chaintypes.Address, 0, len(borrowers))
		for _, b := range borrowers {
			users = append(users, b.User)
		}
		results, err := reader.ReadUserReserves(ctx, users, 0)
		if err != nil {
			return nil, false, err
		}
		out := make([]prioritysweep.BorrowerPage, 0, len(results))
		for _, r := range results {
			snap := hfresolver.Resolve(r.User, 0, r.Reserves)
			out = append(out, prioritysweep.BorrowerPage{
				User:          r.User,
				DebtUsd:       snap.DebtUsd,
				CollateralUsd: snap.CollateralUsd,
				HF:            snap.HF,
			})
		}
		return out, ok, nil
	}, nil
}

// metricsPublisher forwards a published PrioritySet to the LatestHolder and
// records its version/duration against the Prometheus collectors.
type metricsPublisher struct {
	holder *prioritysweep.LatestHolder
	m      *metrics.Metrics
}

func (p *metricsPublisher) Publish(set *prioritysweep.PrioritySet) {
	p.holder.Publish(set)
	p.m.PrioritySweepVersion.Set(float64(set.Version))
	p.m.PrioritySweepDuration.Observe(float64(set.Stats.DurationMs) / 1000)
}

// scanRegistryCounters adapts internal/metrics into scanregistry.Counters.
type scanRegistryCounters struct{ m *metrics.Metrics }

func (c *scanRegistryCounters) IncSuppressed(trigger scanregistry.TriggerType, reason scanregistry.SuppressReason) {
	c.m.ScansSuppressedTotal.WithLabelValues(string(trigger), string(reason)).Inc()
}
func (c *scanRegistryCounters) IncAcquired() { c.m.ScansAcquiredTotal.Inc() }
func (c *scanRegistryCounters) IncReleased() { c.m.ScansReleasedTotal.Inc() }

// ingestMetrics adapts internal/metrics into ingest.Metrics.
type ingestMetrics struct{ m *metrics.Metrics }

func (i *ingestMetrics) IncEventsIngested(kind string) {
	i.m.EventsIngestedTotal.WithLabelValues(kind, "live").Inc()
}
func (i *ingestMetrics) IncWSReconnects() { i.m.WSReconnectsTotal.Inc() }

// resolverMetrics adapts internal/metrics into hfresolver.RunMetrics.
type resolverMetrics struct{ m *metrics.Metrics }

func (r *resolverMetrics) IncHedgeFired()           { r.m.HedgeFiredTotal.Inc() }
func (r *resolverMetrics) IncHedgeWinnerSecondary() { r.m.HedgeWinnerSecondary.Inc() }
func (r *resolverMetrics) IncResolutionOutcome(outcome string) {
	r.m.HFResolutionsTotal.WithLabelValues(outcome).Inc()
}
func (r *resolverMetrics) ObserveResolutionDuration(d time.Duration) {
	metrics.ObserveStageDuration(r.m.HFResolutionDuration, time.Now().Add(-d))
}
func (r *resolverMetrics) SetPageSize(n int)       { r.m.PageSizeCurrent.Set(float64(n)) }
func (r *resolverMetrics) IncRunAborted()          { r.m.RunAbortedTotal.Inc() }
func (r *resolverMetrics) IncLiquidatableEmitted() { r.m.LiquidatableEmitted.Inc() }
