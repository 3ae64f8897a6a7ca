// Package regime scores recent market analytics into a coarse market-regime
// classification used to adapt thresholds and risk posture. The rules are
// deterministic and weighted; there is no learning component.
package regime

import (
	"fmt"
	"math"

	"dex-dip-bot/internal/numutil"
)

// Regime is a coarse market-condition classification.
type Regime string

const (
	RegimeChop    Regime = "CHOP"
	RegimeTrend   Regime = "TREND"
	RegimeChaos   Regime = "CHAOS"
	RegimeUnknown Regime = "UNKNOWN"
)

// HourlyStats is one hour of aggregated market/bot analytics, supplied by the
// analytics feed.
type HourlyStats struct {
	HourStart           int64   `json:"hour_start"` // unix seconds, hour-truncated
	RangePct            float64 `json:"range_pct"`
	VolatilityPct       float64 `json:"volatility_pct"`
	AvgSlippageBps      float64 `json:"avg_slippage_bps"`
	CyclesCompleted     int     `json:"cycles_completed"`
	AvgCycleDurationSec float64 `json:"avg_cycle_duration_sec"`
	Failures            int     `json:"failures"`
	Rejections          int     `json:"rejections"`
	LastPrice           float64 `json:"last_price"`
}

// Config holds normalization thresholds for the signal scores. The signal
// weights and trigger levels are fixed by the rule set, not configurable.
type Config struct {
	MinSamples int `json:"min_samples"`

	HighVolatilityPct      float64 `json:"high_volatility_pct"`      // vol at which the chaos signal saturates
	SlippageInstabilityBps float64 `json:"slippage_instability_bps"` // slippage stddev at which instability saturates
	FailureRateSaturation  float64 `json:"failure_rate_saturation"`  // failure rate (0-1) at which the signal saturates

	TightRangePct      float64 `json:"tight_range_pct"`      // range below this reads as chop
	FastCycleSec       float64 `json:"fast_cycle_sec"`       // cycle duration below this reads as chop
	FrequentCyclesHour float64 `json:"frequent_cycles_hour"` // cycles/hour at which frequency saturates
	WideRangePct       float64 `json:"wide_range_pct"`       // range at which the trend signal saturates
	SlowCycleSec       float64 `json:"slow_cycle_sec"`       // cycle duration at which slowness saturates
	FewCyclesHour      float64 `json:"few_cycles_hour"`      // cycles/hour below which scarcity saturates
}

// DefaultConfig returns rule thresholds tuned for hourly aggregates.
func DefaultConfig() Config {
	return Config{
		MinSamples:             3,
		HighVolatilityPct:      5.0,
		SlippageInstabilityBps: 50,
		FailureRateSaturation:  0.25,
		TightRangePct:          1.0,
		FastCycleSec:           120,
		FrequentCyclesHour:     10,
		WideRangePct:           4.0,
		SlowCycleSec:           900,
		FewCyclesHour:          2,
	}
}

// Recommendation carries the threshold adjustments a regime implies.
type Recommendation struct {
	BuyDipMult   float64 `json:"buy_dip_mult"`
	SellRiseMult float64 `json:"sell_rise_mult"`
	CooldownMult float64 `json:"cooldown_mult"`
	ShouldTrade  bool    `json:"should_trade"`
	Reason       string  `json:"reason"`
}

// Classification is the full result of a regime evaluation.
type Classification struct {
	Regime         Regime             `json:"regime"`
	Confidence     float64            `json:"confidence"`
	Signals        map[string]float64 `json:"signals"`
	Recommendation Recommendation     `json:"recommendation"`
}

func neutral(reason string) Classification {
	return Classification{
		Regime:     RegimeUnknown,
		Confidence: 0,
		Signals:    map[string]float64{},
		Recommendation: Recommendation{
			BuyDipMult:   1,
			SellRiseMult: 1,
			CooldownMult: 1,
			ShouldTrade:  true,
			Reason:       reason,
		},
	}
}

// Classify evaluates the rolling window of hourly aggregates.
// Rules fire in priority order: CHAOS first (it pauses trading), then CHOP,
// then TREND; UNKNOWN with neutral multipliers when nothing fires or the
// window is too thin.
func Classify(cfg Config, window []HourlyStats) Classification {
	if len(window) < cfg.MinSamples {
		return neutral(fmt.Sprintf("insufficient samples: %d < %d", len(window), cfg.MinSamples))
	}

	agg := aggregate(window)

	// CHAOS: high volatility, unstable slippage, elevated failures.
	volScore := numutil.Clamp(numutil.SafeDiv(agg.avgVolatility, cfg.HighVolatilityPct), 0, 1)
	slipScore := numutil.Clamp(numutil.SafeDiv(agg.slippageStdDev, cfg.SlippageInstabilityBps), 0, 1)
	failScore := numutil.Clamp(numutil.SafeDiv(agg.failureRate, cfg.FailureRateSaturation), 0, 1)
	chaosScore := 0.4*volScore + 0.3*slipScore + 0.3*failScore

	if chaosScore >= 0.5 {
		return Classification{
			Regime:     RegimeChaos,
			Confidence: chaosScore,
			Signals: map[string]float64{
				"volatility":           volScore,
				"slippage_instability": slipScore,
				"failure_rate":         failScore,
			},
			Recommendation: Recommendation{
				BuyDipMult:   1.5,
				SellRiseMult: 1.5,
				CooldownMult: 2.0,
				ShouldTrade:  false,
				Reason:       fmt.Sprintf("chaos score %.2f: pause and widen targets", chaosScore),
			},
		}
	}

	// CHOP: tight range, fast cycles, frequent cycles.
	tightScore := numutil.Clamp(1-numutil.SafeDivOr(agg.avgRange, cfg.TightRangePct, 1), 0, 1)
	fastScore := numutil.Clamp(1-numutil.SafeDivOr(agg.avgCycleDur, cfg.FastCycleSec, 1), 0, 1)
	freqScore := numutil.Clamp(numutil.SafeDiv(agg.cyclesPerHour, cfg.FrequentCyclesHour), 0, 1)
	chopScore := 0.4*tightScore + 0.4*fastScore + 0.2*freqScore

	if chopScore >= 0.5 {
		return Classification{
			Regime:     RegimeChop,
			Confidence: chopScore,
			Signals: map[string]float64{
				"tight_range":     tightScore,
				"fast_cycles":     fastScore,
				"frequent_cycles": freqScore,
			},
			Recommendation: Recommendation{
				BuyDipMult:   0.8,
				SellRiseMult: 0.8,
				CooldownMult: 0.5,
				ShouldTrade:  true,
				Reason:       fmt.Sprintf("chop score %.2f: tighten thresholds, shorten cooldown", chopScore),
			},
		}
	}

	// TREND: wide range, slow cycles, few cycles.
	wideScore := numutil.Clamp(numutil.SafeDiv(agg.avgRange, cfg.WideRangePct), 0, 1)
	slowScore := numutil.Clamp(numutil.SafeDiv(agg.avgCycleDur, cfg.SlowCycleSec), 0, 1)
	fewScore := numutil.Clamp(1-numutil.SafeDivOr(agg.cyclesPerHour, cfg.FewCyclesHour, 1), 0, 1)
	trendScore := 0.4*wideScore + 0.4*slowScore + 0.2*fewScore

	if trendScore >= 0.4 {
		return Classification{
			Regime:     RegimeTrend,
			Confidence: trendScore,
			Signals: map[string]float64{
				"wide_range":  wideScore,
				"slow_cycles": slowScore,
				"few_cycles":  fewScore,
			},
			Recommendation: Recommendation{
				BuyDipMult:   1.3,
				SellRiseMult: 1.3,
				CooldownMult: 1.5,
				ShouldTrade:  true,
				Reason:       fmt.Sprintf("trend score %.2f: widen thresholds, lengthen cooldown", trendScore),
			},
		}
	}

	return neutral("no regime rule fired")
}

// RecentPriceChangePct returns the percent change between the oldest and
// newest hourly closes in the window, used by the TREND_UP_ONLY chase gate.
func RecentPriceChangePct(window []HourlyStats) float64 {
	var first, last float64
	for _, h := range window {
		if h.LastPrice <= 0 {
			continue
		}
		if first == 0 {
			first = h.LastPrice
		}
		last = h.LastPrice
	}
	return numutil.PctChange(first, last)
}

type aggregates struct {
	avgRange       float64
	avgVolatility  float64
	avgCycleDur    float64
	cyclesPerHour  float64
	failureRate    float64
	slippageStdDev float64
}

func aggregate(window []HourlyStats) aggregates {
	n := float64(len(window))
	var agg aggregates
	var totalCycles, totalFailures int
	var slipSum, slipSqSum float64
	var durSum float64
	var durHours float64

	for _, h := range window {
		agg.avgRange += h.RangePct
		agg.avgVolatility += h.VolatilityPct
		totalCycles += h.CyclesCompleted
		totalFailures += h.Failures + h.Rejections
		slipSum += h.AvgSlippageBps
		slipSqSum += h.AvgSlippageBps * h.AvgSlippageBps
		if h.CyclesCompleted > 0 {
			durSum += h.AvgCycleDurationSec
			durHours++
		}
	}

	agg.avgRange /= n
	agg.avgVolatility /= n
	agg.cyclesPerHour = float64(totalCycles) / n
	agg.avgCycleDur = numutil.SafeDiv(durSum, durHours)
	agg.failureRate = numutil.SafeDiv(float64(totalFailures), float64(totalCycles+totalFailures))

	mean := slipSum / n
	variance := numutil.NonNeg(slipSqSum/n - mean*mean)
	agg.slippageStdDev = math.Sqrt(variance)

	return agg
}
