// Package metrics provides the Prometheus collectors for every pipeline
// stage of the bot: one struct of pre-registered collectors, constructed
// once at startup and threaded explicitly into each component (never a
// hidden package-level global consulted mid-pipeline).
package metrics

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/runtime"
)

// Metrics holds every collector emitted by the core, namespaced by pipeline
// stage of the pipeline.
type Metrics struct {
	// Event ingest & backfill
	EventsIngestedTotal   *prometheus.CounterVec
	BackfillChunksTotal   *prometheus.CounterVec
	WSReconnectsTotal     prometheus.Counter

	// Candidate store & trackers
	CandidatesTracked   prometheus.Gauge
	CandidatesEvicted   *prometheus.CounterVec
	HotSetSize          prometheus.Gauge
	LowHFTrackerSize    prometheus.Gauge

	// RealTime HF resolver
	HFResolutionsTotal     *prometheus.CounterVec
	HFResolutionDuration   prometheus.Histogram
	HedgeFiredTotal        prometheus.Counter
	HedgeWinnerSecondary   prometheus.Counter
	ChunkFailuresTotal     prometheus.Counter
	RunAbortedTotal        prometheus.Counter
	PageSizeCurrent        prometheus.Gauge
	LiquidatableEmitted    prometheus.Counter

	// Predictive gate + queue manager
	PredictiveGateRejected *prometheus.CounterVec
	QueueAcceptedTotal     prometheus.Counter
	QueueRejectedTotal     *prometheus.CounterVec
	QueueSize              prometheus.Gauge

	// Scan registry
	ScansSuppressedTotal *prometheus.CounterVec
	ScansAcquiredTotal   prometheus.Counter
	ScansReleasedTotal   prometheus.Counter

	// RPC budget + client + pool
	RPCTokensWaitSeconds prometheus.Histogram
	RPCErrorsTotal       *prometheus.CounterVec
	RPCRetriesTotal      prometheus.Counter
	ProviderCooldowns    *prometheus.CounterVec

	// Profit engine
	ProfitEvaluatedTotal  *prometheus.CounterVec
	ProfitNetUsd          prometheus.Histogram

	// Execution path
	ExecutionAttemptsTotal *prometheus.CounterVec
	ExecutionOutcomeTotal  *prometheus.CounterVec
	IntentCacheHitTotal    prometheus.Counter
	IntentCacheMissTotal   prometheus.Counter
	CriticalLaneLatency    prometheus.Histogram

	// Priority sweep
	PrioritySweepDuration prometheus.Histogram
	PrioritySweepVersion  prometheus.Gauge

	ServiceInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom
// registerer, so tests can use a fresh prometheus.Registry per case.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_events_total", Help: "Decoded protocol/oracle events ingested.",
		}, []string{"kind", "source"}),
		BackfillChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_backfill_chunks_total", Help: "Backfill log chunks processed.",
		}, []string{"status"}),
		WSReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_ws_reconnects_total", Help: "WebSocket reconnect attempts.",
		}),

		CandidatesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candidates_tracked", Help: "Current number of tracked candidates.",
		}),
		CandidatesEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candidates_evicted_total", Help: "Candidates evicted due to capacity.",
		}, []string{"category"}),
		HotSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hot_set_size", Help: "Current hot-set size.",
		}),
		LowHFTrackerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "low_hf_tracker_size", Help: "Current low-HF tracker size.",
		}),

		HFResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hf_resolutions_total", Help: "HF resolution runs by outcome.",
		}, []string{"outcome"}),
		HFResolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "hf_resolution_duration_seconds", Help: "Wall time of a full HF resolution run.",
			Buckets: []float64{.05, .1, .25, .5, .9, 1.5, 3, 5, 10},
		}),
		HedgeFiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_fired_total", Help: "Pages hedged to the secondary RPC.",
		}),
		HedgeWinnerSecondary: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedge_winner_secondary_total", Help: "Hedged pages won by the secondary RPC.",
		}),
		ChunkFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hf_chunk_failures_total", Help: "Chunks that exhausted retries and were excluded from a run.",
		}),
		RunAbortedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hf_run_aborted_total", Help: "HF resolution runs aborted by the stall watchdog.",
		}),
		PageSizeCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hf_page_size_current", Help: "Current adaptive page size.",
		}),
		LiquidatableEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hf_liquidatable_emitted_total", Help: "Users emitted as liquidatable.",
		}),

		PredictiveGateRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictive_gate_rejected_total", Help: "Predictive gate rejections by reason.",
		}, []string{"reason"}),
		QueueAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictive_queue_accepted_total", Help: "Predictive evaluations accepted.",
		}),
		QueueRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictive_queue_rejected_total", Help: "Predictive evaluations rejected by reason.",
		}, []string{"reason"}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predictive_queue_size", Help: "Current predictive queue size.",
		}),

		ScansSuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scans_suppressed_total", Help: "Scans suppressed by the scan registry.",
		}, []string{"trigger_type", "reason"}),
		ScansAcquiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scans_acquired_total", Help: "Scans successfully acquired.",
		}),
		ScansReleasedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scans_released_total", Help: "Scans released back to recently-completed.",
		}),

		RPCTokensWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "rpc_budget_wait_seconds", Help: "Time spent waiting for token bucket capacity.",
			Buckets: prometheus.DefBuckets,
		}),
		RPCErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_errors_total", Help: "Classified RPC errors.",
		}, []string{"kind"}),
		RPCRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rpc_retries_total", Help: "RPC call retries performed.",
		}),
		ProviderCooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_provider_cooldowns_total", Help: "Providers placed in cooldown, by reason.",
		}, []string{"reason"}),

		ProfitEvaluatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profit_evaluated_total", Help: "Profit simulations by outcome.",
		}, []string{"outcome"}),
		ProfitNetUsd: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "profit_net_usd", Help: "Net USD profit of simulated liquidations (1e8 scale collapsed to float for observability only).",
			Buckets: []float64{-50, -10, -1, 0, 1, 5, 10, 50, 100, 500, 1000},
		}),

		ExecutionAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execution_attempts_total", Help: "Execution attempts by submission mode.",
		}, []string{"mode"}),
		ExecutionOutcomeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execution_outcome_total", Help: "Execution outcomes.",
		}, []string{"outcome"}),
		IntentCacheHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intent_cache_hit_total", Help: "Intent cache hits.",
		}),
		IntentCacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intent_cache_miss_total", Help: "Intent cache misses.",
		}),
		CriticalLaneLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "critical_lane_latency_seconds", Help: "End-to-end latency of the critical execution lane.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2},
		}),

		PrioritySweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "priority_sweep_duration_seconds", Help: "Priority sweep wall time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		PrioritySweepVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "priority_sweep_version", Help: "Current published PrioritySet version.",
		}),

		ServiceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "service_info", Help: "Static service information.",
		}, []string{"service", "environment"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.EventsIngestedTotal, m.BackfillChunksTotal, m.WSReconnectsTotal,
			m.CandidatesTracked, m.CandidatesEvicted, m.HotSetSize, m.LowHFTrackerSize,
			m.HFResolutionsTotal, m.HFResolutionDuration, m.HedgeFiredTotal, m.HedgeWinnerSecondary,
			m.ChunkFailuresTotal, m.RunAbortedTotal, m.PageSizeCurrent, m.LiquidatableEmitted,
			m.PredictiveGateRejected, m.QueueAcceptedTotal, m.QueueRejectedTotal, m.QueueSize,
			m.ScansSuppressedTotal, m.ScansAcquiredTotal, m.ScansReleasedTotal,
			m.RPCTokensWaitSeconds, m.RPCErrorsTotal, m.RPCRetriesTotal, m.ProviderCooldowns,
			m.ProfitEvaluatedTotal, m.ProfitNetUsd,
			m.ExecutionAttemptsTotal, m.ExecutionOutcomeTotal, m.IntentCacheHitTotal, m.IntentCacheMissTotal, m.CriticalLaneLatency,
			m.PrioritySweepDuration, m.PrioritySweepVersion,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, string(runtime.Env())).Set(1)
	return m
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults: production disabled unless explicitly enabled via
// METRICS_ENABLED; non-production enabled unless explicitly disabled.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// ObserveStageDuration is a small helper so pipeline stages can time a block
// of work without importing time/prometheus directly in every package.
func ObserveStageDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
