// Package predictive implements the predictive signal gate and
// queue manager, following a pure-decision-function style: each gate step
// is a small testable function composed into one Evaluate call, the way a
// validation pipeline chains checks.
package predictive

import (
	"math"
	"time"
)

// SignalMode selects which oracle signal combination the gate accepts.
type SignalMode string

const (
	ModePythTwap           SignalMode = "pyth_twap"
	ModeChainlink          SignalMode = "chainlink"
	ModeBoth               SignalMode = "both"
	ModePythTwapOrChainlink SignalMode = "pyth_twap_or_chainlink"
)

// signalFreshnessWindow bounds how old an oracle signal may be before the
// predictive gate ignores it.
const signalFreshnessWindow = 60 * time.Second

// AssetSignal carries the most recent oracle activity for one asset.
type AssetSignal struct {
	Asset           string
	PythDeltaPct    float64
	PythObservedAt  time.Time
	TwapDeltaPct    float64
	TwapObservedAt  time.Time
	ChainlinkFresh  bool
	ChainlinkObservedAt time.Time
}

// UserContext carries the user-side inputs the near-band gate consults.
type UserContext struct {
	HFCurrent   float64
	HFProjected *float64
	EtaSec      *float64
	DebtUsd     float64
}

// Config carries the predictive gate's tunables.
type Config struct {
	MinDebtUsd       float64
	NearBandBps      int
	EtaCapSec        float64
	SignalMode       SignalMode
	PythDeltaPct     float64
	TwapDeltaPct     float64
	AssetWhitelist   map[string]bool // nil/empty means no whitelist restriction
}

// RejectReason is a typed reason a gate step failed.
type RejectReason string

const (
	RejectDebtTooLow       RejectReason = "debt_below_min"
	RejectNotNearBand      RejectReason = "hf_not_near_band"
	RejectAssetNotWhitelisted RejectReason = "asset_not_whitelisted"
	RejectSignalNotValid   RejectReason = "signal_not_valid"
)

// Source identifies which signal triggered acceptance.
type Source string

const (
	SourcePythTwap   Source = "pyth_twap"
	SourceChainlink  Source = "chainlink"
	SourceNone       Source = ""
)

// Decision is the gate's outcome.
type Decision struct {
	Accept bool
	Source Source
	Reason RejectReason
}

// Evaluate runs the ordered gates: debt floor, near-band, asset
// whitelist, then signal validity per mode.
func Evaluate(asset string, signal AssetSignal, user UserContext, cfg Config, now time.Time) Decision {
	if user.DebtUsd < cfg.MinDebtUsd {
		return Decision{Reason: RejectDebtTooLow}
	}

	if !inNearBand(user, cfg) {
		return Decision{Reason: RejectNotNearBand}
	}

	if len(cfg.AssetWhitelist) > 0 && !cfg.AssetWhitelist[asset] {
		return Decision{Reason: RejectAssetNotWhitelisted}
	}

	pythTwapValid := fresh(signal.PythObservedAt, now) && fresh(signal.TwapObservedAt, now) &&
		math.Abs(signal.PythDeltaPct) >= cfg.PythDeltaPct && math.Abs(signal.TwapDeltaPct) >= cfg.TwapDeltaPct
	chainlinkValid := signal.ChainlinkFresh && fresh(signal.ChainlinkObservedAt, now)

	switch cfg.SignalMode {
	case ModePythTwap:
		if pythTwapValid {
			return Decision{Accept: true, Source: SourcePythTwap}
		}
	case ModeChainlink:
		if chainlinkValid {
			return Decision{Accept: true, Source: SourceChainlink}
		}
	case ModeBoth:
		if pythTwapValid && chainlinkValid {
			return Decision{Accept: true, Source: SourcePythTwap}
		}
	case ModePythTwapOrChainlink:
		if pythTwapValid {
			return Decision{Accept: true, Source: SourcePythTwap}
		}
		if chainlinkValid {
			return Decision{Accept: true, Source: SourceChainlink}
		}
	}

	return Decision{Reason: RejectSignalNotValid}
}

func fresh(observedAt, now time.Time) bool {
	if observedAt.IsZero() {
		return false
	}
	return now.Sub(observedAt) <= signalFreshnessWindow
}

func inNearBand(user UserContext, cfg Config) bool {
	upperBound := 1.0 + float64(cfg.NearBandBps)/10000

	if user.HFCurrent >= 1.0 && user.HFCurrent <= upperBound {
		return true
	}

	if user.HFProjected != nil && user.EtaSec != nil {
		if *user.HFProjected >= 1.0 && *user.HFProjected <= upperBound && *user.EtaSec <= cfg.EtaCapSec {
			return true
		}
	}

	return false
}
