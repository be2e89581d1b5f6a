// Package config loads the bot's configuration from environment variables
// (with an optional YAML overlay): godotenv for local .env convenience,
// envdecode for struct-tag driven env binding, and a YAML file as the
// lower-priority base layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
)

// TrackersConfig controls the candidate store and hot/low-HF trackers.
type TrackersConfig struct {
	HotlistMaxHF        float64 `json:"hotlist_max_hf" env:"HOTLIST_MAX_HF"`
	HotlistMax          int     `json:"hotlist_max" env:"HOTLIST_MAX"`
	LowHFTrackerEnabled bool    `json:"low_hf_tracker_enabled" env:"LOW_HF_TRACKER_ENABLED"`
	LowHFTrackerMax     int     `json:"low_hf_tracker_max" env:"LOW_HF_TRACKER_MAX"`
	LowHFRecordMode     string  `json:"low_hf_record_mode" env:"LOW_HF_RECORD_MODE"` // all|min
}

// ResolverConfig controls the real-time HF resolver.
type ResolverConfig struct {
	ExecutionHFThresholdBps     int    `json:"execution_hf_threshold_bps" env:"EXECUTION_HF_THRESHOLD_BPS"`
	HysteresisBps               int    `json:"hysteresis_bps" env:"HYSTERESIS_BPS"`
	HeadPageAdaptive             bool   `json:"head_page_adaptive" env:"HEAD_PAGE_ADAPTIVE"`
	HeadPageTargetMs             int    `json:"head_page_target_ms" env:"HEAD_PAGE_TARGET_MS"`
	HeadPageMin                  int    `json:"head_page_min" env:"HEAD_PAGE_MIN"`
	HeadPageMax                  int    `json:"head_page_max" env:"HEAD_PAGE_MAX"`
	ChunkTimeoutMs                int    `json:"chunk_timeout_ms" env:"CHUNK_TIMEOUT_MS"`
	ChunkRetryAttempts            int    `json:"chunk_retry_attempts" env:"CHUNK_RETRY_ATTEMPTS"`
	RunStallAbortMs               int    `json:"run_stall_abort_ms" env:"RUN_STALL_ABORT_MS"`
	MulticallBatchSize            int    `json:"multicall_batch_size" env:"MULTICALL_BATCH_SIZE"`
	HeadCheckHedgeMs               int    `json:"head_check_hedge_ms" env:"HEAD_CHECK_HEDGE_MS"`
	SecondaryHeadRPCURL            string `json:"secondary_head_rpc_url" env:"SECONDARY_HEAD_RPC_URL"`
	EventBatchCoalesceMs           int    `json:"event_batch_coalesce_ms" env:"EVENT_BATCH_COALESCE_MS"`
	EventBatchMaxPerBlock          int    `json:"event_batch_max_per_block" env:"EVENT_BATCH_MAX_PER_BLOCK"`
	AdaptiveEventConcurrency       bool   `json:"adaptive_event_concurrency" env:"ADAPTIVE_EVENT_CONCURRENCY"`
	MaxParallelEventBatches        int    `json:"max_parallel_event_batches" env:"MAX_PARALLEL_EVENT_BATCHES"`
	MaxParallelEventBatchesHigh     int    `json:"max_parallel_event_batches_high" env:"MAX_PARALLEL_EVENT_BATCHES_HIGH"`
	EventBacklogThreshold           int    `json:"event_backlog_threshold" env:"EVENT_BACKLOG_THRESHOLD"`
}

// PredictiveConfig controls the predictive signal gate and queue manager.
type PredictiveConfig struct {
	PredictiveSignalMode              string  `json:"predictive_signal_mode" env:"PREDICTIVE_SIGNAL_MODE"`
	PythDeltaPct                      float64 `json:"pyth_delta_pct" env:"PYTH_DELTA_PCT"`
	TwapDeltaPct                      float64 `json:"twap_delta_pct" env:"TWAP_DELTA_PCT"`
	PredictiveNearBandBps             int     `json:"predictive_near_band_bps" env:"PREDICTIVE_NEAR_BAND_BPS"`
	FastpathPredictiveEtaCapSec       int     `json:"fastpath_predictive_eta_cap_sec" env:"FASTPATH_PREDICTIVE_ETA_CAP_SEC"`
	PredictiveMinDebtUsd               float64 `json:"predictive_min_debt_usd" env:"PREDICTIVE_MIN_DEBT_USD"`
	PredictiveQueueBudgetCallsPerBlock  int     `json:"predictive_queue_budget_calls_per_block" env:"PREDICTIVE_QUEUE_BUDGET_CALLS_PER_BLOCK"`
	PredictiveQueueMaxCandidatesPerBlock int    `json:"predictive_queue_max_candidates_per_block" env:"PREDICTIVE_QUEUE_MAX_CANDIDATES_PER_BLOCK"`
	PredictiveQueueSafetyMax            int     `json:"predictive_queue_safety_max" env:"PREDICTIVE_QUEUE_SAFETY_MAX"`
	PredictiveEvalCooldownSec           int     `json:"predictive_eval_cooldown_sec" env:"PREDICTIVE_EVAL_COOLDOWN_SEC"`
	PerUserBlockDebounce                int     `json:"per_user_block_debounce" env:"PER_USER_BLOCK_DEBOUNCE"`
}

// RPCConfig controls the RPC token bucket and provider pool.
type RPCConfig struct {
	RPCBudgetBurst       int `json:"rpc_budget_burst" env:"RPC_BUDGET_BURST"`
	RPCBudgetCuPerSec    int `json:"rpc_budget_cu_per_sec" env:"RPC_BUDGET_CU_PER_SEC"`
	RPCBudgetMinSpacingMs int `json:"rpc_budget_min_spacing_ms" env:"RPC_BUDGET_MIN_SPACING_MS"`
	RPCJitterMs           int `json:"rpc_jitter_ms" env:"RPC_JITTER_MS"`
	RetryMaxAttempts      int `json:"retry_max_attempts" env:"RPC_RETRY_MAX_ATTEMPTS"`
	RetryInitialBackoffMs int `json:"retry_initial_backoff_ms" env:"RPC_RETRY_INITIAL_BACKOFF_MS"`
	CooldownOn429Ms       int `json:"cooldown_on_429_ms" env:"RPC_COOLDOWN_ON_429_MS"`
	ProviderURLs          []string `json:"provider_urls" env:"RPC_PROVIDER_URLS"`
}

// ProfitConfig controls the liquidation profit simulator.
type ProfitConfig struct {
	ProfitMinUsd           float64 `json:"profit_min_usd" env:"PROFIT_MIN_USD"`
	ProfitFeeBps           int     `json:"profit_fee_bps" env:"PROFIT_FEE_BPS"`
	GasCostUsd             float64 `json:"gas_cost_usd" env:"GAS_COST_USD"`
	LiquidationCloseFactor int     `json:"liquidation_close_factor" env:"LIQUIDATION_CLOSE_FACTOR_BPS"`
	MaxSlippageBps         int     `json:"max_slippage_bps" env:"MAX_SLIPPAGE_BPS"`
	MinRepayUsd            float64 `json:"min_repay_usd" env:"MIN_REPAY_USD"`
}

// ExecutionConfig controls transaction submission.
type ExecutionConfig struct {
	TxSubmitMode           string  `json:"tx_submit_mode" env:"TX_SUBMIT_MODE"` // public|private|race|bundle
	MaxGasPriceGwei        float64 `json:"max_gas_price_gwei" env:"MAX_GAS_PRICE_GWEI"`
	GasBurstMultiplier     float64 `json:"gas_burst_multiplier" env:"GAS_BURST_MULTIPLIER"`
	GasBurstWindowSec      int     `json:"gas_burst_window_sec" env:"GAS_BURST_WINDOW_SEC"`
	PrivateBundleRPC       string  `json:"private_bundle_rpc" env:"PRIVATE_BUNDLE_RPC"`
	ExecutionInflightLock  bool    `json:"execution_inflight_lock" env:"EXECUTION_INFLIGHT_LOCK"`
}

// PrioritySweepConfig controls the periodic full-borrower scoring pass.
type PrioritySweepConfig struct {
	PrioritySweepIntervalMin  int     `json:"priority_sweep_interval_min" env:"PRIORITY_SWEEP_INTERVAL_MIN"`
	PrioritySweepPageSize     int     `json:"priority_sweep_page_size" env:"PRIORITY_SWEEP_PAGE_SIZE"`
	InterRequestMs            int     `json:"priority_sweep_inter_request_ms" env:"PRIORITY_SWEEP_INTER_REQUEST_MS"`
	PrioritySweepTimeoutMs    int64   `json:"priority_sweep_timeout_ms" env:"PRIORITY_SWEEP_TIMEOUT_MS"`
	MinDebtUsd                float64 `json:"priority_sweep_min_debt_usd" env:"PRIORITY_SWEEP_MIN_DEBT_USD"`
	MinCollateralUsd          float64 `json:"priority_sweep_min_collateral_usd" env:"PRIORITY_SWEEP_MIN_COLLATERAL_USD"`
	TargetSize                int     `json:"priority_sweep_target_size" env:"PRIORITY_SWEEP_TARGET_SIZE"`
	WDebt                     float64 `json:"priority_sweep_w_debt" env:"PRIORITY_SWEEP_W_DEBT"`
	WColl                     float64 `json:"priority_sweep_w_coll" env:"PRIORITY_SWEEP_W_COLL"`
	WHF                       float64 `json:"priority_sweep_w_hf" env:"PRIORITY_SWEEP_W_HF"`
	HFCeiling                 float64 `json:"priority_sweep_hf_ceiling" env:"PRIORITY_SWEEP_HF_CEILING"`
	LowHFBoostThreshold       float64 `json:"priority_sweep_low_hf_boost_threshold" env:"PRIORITY_SWEEP_LOW_HF_BOOST_THRESHOLD"`
	LowHFBoost                float64 `json:"priority_sweep_low_hf_boost" env:"PRIORITY_SWEEP_LOW_HF_BOOST"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"` // json|text
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED"`
	Addr    string `json:"addr" env:"METRICS_ADDR"`
}

// RuntimeConfig controls process-wide runtime behavior.
type RuntimeConfig struct {
	Environment string `json:"environment" env:"BOT_ENV"`
}

// Config is the top-level configuration structure.
type Config struct {
	Trackers  TrackersConfig  `json:"trackers"`
	Resolver  ResolverConfig  `json:"resolver"`
	Predictive PredictiveConfig `json:"predictive"`
	RPC       RPCConfig       `json:"rpc"`
	Profit    ProfitConfig    `json:"profit"`
	Execution ExecutionConfig `json:"execution"`
	PrioritySweep PrioritySweepConfig `json:"priority_sweep"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// New returns a configuration populated with sensible production defaults.
func New() *Config {
	return &Config{
		Trackers: TrackersConfig{
			HotlistMaxHF:        1.05,
			HotlistMax:          5000,
			LowHFTrackerEnabled: true,
			LowHFTrackerMax:     20000,
			LowHFRecordMode:     "min",
		},
		Resolver: ResolverConfig{
			ExecutionHFThresholdBps:  10000,
			HysteresisBps:            25,
			HeadPageAdaptive:         true,
			HeadPageTargetMs:         250,
			HeadPageMin:              25,
			HeadPageMax:              500,
			ChunkTimeoutMs:           2000,
			ChunkRetryAttempts:       3,
			RunStallAbortMs:          15000,
			MulticallBatchSize:       120,
			HeadCheckHedgeMs:         120,
			EventBatchCoalesceMs:     250,
			EventBatchMaxPerBlock:    500,
			AdaptiveEventConcurrency: true,
			MaxParallelEventBatches:  4,
			MaxParallelEventBatchesHigh: 8,
			EventBacklogThreshold:    50,
		},
		Predictive: PredictiveConfig{
			PredictiveSignalMode:                "pyth_twap_or_chainlink",
			PythDeltaPct:                        0.5,
			TwapDeltaPct:                         0.01,
			PredictiveNearBandBps:                100,
			FastpathPredictiveEtaCapSec:          30,
			PredictiveMinDebtUsd:                 50,
			PredictiveQueueBudgetCallsPerBlock:   200,
			PredictiveQueueMaxCandidatesPerBlock: 50,
			PredictiveQueueSafetyMax:             1000,
			PredictiveEvalCooldownSec:            6,
			PerUserBlockDebounce:                 1,
		},
		RPC: RPCConfig{
			RPCBudgetBurst:        50,
			RPCBudgetCuPerSec:     20,
			RPCBudgetMinSpacingMs: 10,
			RPCJitterMs:           5,
			RetryMaxAttempts:      3,
			RetryInitialBackoffMs: 100,
			CooldownOn429Ms:       5000,
		},
		Profit: ProfitConfig{
			ProfitMinUsd:           5,
			ProfitFeeBps:           0,
			GasCostUsd:             0.5,
			LiquidationCloseFactor: 5000,
			MaxSlippageBps:         50,
			MinRepayUsd:            0.5,
		},
		Execution: ExecutionConfig{
			TxSubmitMode:          "private",
			MaxGasPriceGwei:       5,
			GasBurstMultiplier:    1.5,
			GasBurstWindowSec:     30,
			ExecutionInflightLock: true,
		},
		PrioritySweep: PrioritySweepConfig{
			PrioritySweepIntervalMin: 60,
			PrioritySweepPageSize:    500,
			InterRequestMs:           50,
			PrioritySweepTimeoutMs:   300000,
			MinDebtUsd:               50,
			MinCollateralUsd:         50,
			TargetSize:               2000,
			WDebt:                    1.0,
			WColl:                    0.5,
			WHF:                      2.0,
			HFCeiling:                1.1,
			LowHFBoostThreshold:      0.97,
			LowHFBoost:               5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
		},
	}
}

// Load loads configuration from an optional YAML file, then applies
// environment variable overrides, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// Validate checks cross-field invariants the config struct tags cannot
// express on their own. Config errors at startup are fatal.
func (c *Config) Validate() error {
	switch c.Predictive.PredictiveSignalMode {
	case "pyth_twap", "chainlink", "both", "pyth_twap_or_chainlink":
	default:
		return errs.ConfigInvalid("predictive.predictiveSignalMode", "unrecognized mode "+c.Predictive.PredictiveSignalMode)
	}

	switch c.Execution.TxSubmitMode {
	case "public", "private", "race", "bundle":
	default:
		return errs.ConfigInvalid("execution.txSubmitMode", "unrecognized mode "+c.Execution.TxSubmitMode)
	}

	switch c.Trackers.LowHFRecordMode {
	case "all", "min":
	default:
		return errs.ConfigInvalid("trackers.lowHfRecordMode", "must be 'all' or 'min'")
	}

	if c.Resolver.HeadPageMin <= 0 || c.Resolver.HeadPageMax < c.Resolver.HeadPageMin {
		return errs.ConfigInvalid("resolver.headPageMin/headPageMax", "headPageMax must be >= headPageMin > 0")
	}

	if c.RPC.RPCBudgetBurst <= 0 || c.RPC.RPCBudgetCuPerSec <= 0 {
		return errs.ConfigInvalid("rpc.rpcBudgetBurst/rpcBudgetCuPerSec", "must be positive")
	}

	if c.Profit.LiquidationCloseFactor <= 0 || c.Profit.LiquidationCloseFactor > 10000 {
		return errs.ConfigInvalid("profit.liquidationCloseFactor", "must be a bps value in (0, 10000]")
	}

	if c.Resolver.ExecutionHFThresholdBps <= 0 {
		return errs.ConfigInvalid("resolver.executionHfThresholdBps", "must be positive")
	}

	if c.PrioritySweep.PrioritySweepIntervalMin <= 0 || c.PrioritySweep.PrioritySweepPageSize <= 0 {
		return errs.ConfigInvalid("prioritySweep.prioritySweepIntervalMin/prioritySweepPageSize", "must be positive")
	}

	return nil
}
