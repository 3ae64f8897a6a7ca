// Package scaleout decides how a sell signal is executed: all at once, or as
// a primary exit that leaves an extension leg pursuing a further target.
// The extension is a state machine (NONE -> ACTIVE -> TRAILING -> NONE)
// evaluated once per cycle; all transitions are pure functions over
// ExtensionStateData so callers own persistence.
package scaleout

import (
	"fmt"
	"time"

	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/regime"
	"dex-dip-bot/internal/tier"
)

// ExtensionState is the lifecycle state of the extension leg.
type ExtensionState string

const (
	StateNone     ExtensionState = "NONE"
	StateActive   ExtensionState = "ACTIVE"
	StateTrailing ExtensionState = "TRAILING"
)

// Sell-path actions.
const (
	ActionFullExit    = "FULL_EXIT"
	ActionPrimaryExit = "PRIMARY_EXIT"
)

// Extension-cycle actions.
const (
	ActionHoldExtension = "HOLD_EXTENSION"
	ActionExtensionExit = "EXTENSION_EXIT"
	ActionAbortScaleOut = "ABORT_SCALE_OUT"
)

// ExitMode selects the overall sell behavior.
type ExitMode string

const (
	ExitModeFull     ExitMode = "FULL_EXIT"
	ExitModeScaleOut ExitMode = "SCALE_OUT"
)

// StepLevel is one rung of a multi-step extension ladder.
type StepLevel struct {
	TargetPrice float64 `json:"target_price"`
	Qty         float64 `json:"qty"`
	Completed   bool    `json:"completed"`
}

// ExtensionStateData is the persisted state of one extension leg.
type ExtensionStateData struct {
	State       ExtensionState `json:"state"`
	Qty         float64        `json:"qty"`
	CostBasis   float64        `json:"cost_basis"`
	EntryPrice  float64        `json:"entry_price"`
	PeakPrice   float64        `json:"peak_price"`
	TargetPrice float64        `json:"target_price"`
	StartTime   time.Time      `json:"start_time"`
	Levels      []StepLevel    `json:"levels,omitempty"`
	StepsDone   int            `json:"steps_done"`
}

// Config holds scale-out policy.
type Config struct {
	ExitMode           ExitMode `json:"exit_mode"`
	PrimaryExitPct     float64  `json:"primary_exit_pct"`     // share of the position sold at the primary exit
	SecondaryTargetPct float64  `json:"secondary_target_pct"` // further move demanded of the extension
	MinDollarProfit    float64  `json:"min_dollar_profit"`
	EstimatedFeePct    float64  `json:"estimated_fee_pct"` // fee estimate for profit projections

	TrailingEnabled     bool    `json:"trailing_enabled"`
	TrailingStopPct     float64 `json:"trailing_stop_pct"`
	MinExtensionGainPct float64 `json:"min_extension_gain_pct"` // gain required before trailing arms

	PullbackProtectPct   float64 `json:"pullback_protect_pct"` // band around entry that triggers protection
	PullbackMinProfitUSD float64 `json:"pullback_min_profit_usd"`

	MultiStepEnabled bool      `json:"multi_step_enabled"`
	StepCount        int       `json:"step_count"`
	StepRangePct     float64   `json:"step_range_pct"`              // levels spaced evenly across this range
	StepSpacingsPct  []float64 `json:"step_spacings_pct,omitempty"` // explicit spacing overrides StepRangePct

	WhaleOptIn bool `json:"whale_opt_in"` // allow scale-out for WHALE-tier portfolios
}

// DefaultConfig returns scale-out defaults.
func DefaultConfig() Config {
	return Config{
		ExitMode:             ExitModeScaleOut,
		PrimaryExitPct:       70,
		SecondaryTargetPct:   2.0,
		MinDollarProfit:      1.0,
		EstimatedFeePct:      0.30,
		TrailingEnabled:      true,
		TrailingStopPct:      1.0,
		MinExtensionGainPct:  0.5,
		PullbackProtectPct:   0.25,
		PullbackMinProfitUSD: 0.25,
		MultiStepEnabled:     false,
		StepCount:            3,
		StepRangePct:         3.0,
	}
}

// Decision is the sell-path outcome for a SELL signal.
type Decision struct {
	Action               string  `json:"action"`
	SellQty              float64 `json:"sell_qty"`
	RemainderQty         float64 `json:"remainder_qty"`
	ShouldStartExtension bool    `json:"should_start_extension"`
	Reason               string  `json:"reason"`
}

// ExtensionDecision is the per-cycle outcome for an active extension.
type ExtensionDecision struct {
	Action  string  `json:"action"`
	SellQty float64 `json:"sell_qty"`
	Forced  bool    `json:"forced"` // abort exits bypass the no-loss rule
	Reason  string  `json:"reason"`
}

// DecideSellPath chooses FULL_EXIT or PRIMARY_EXIT for a sell of sellQty at
// the given price. Falls back to FULL_EXIT whenever the scale-out legs cannot
// each clear the minimum dollar profit.
func DecideSellPath(cfg Config, sellQty, costBasis, price float64, reg regime.Regime, portfolioTier tier.Tier) Decision {
	full := func(reason string) Decision {
		return Decision{Action: ActionFullExit, SellQty: sellQty, Reason: reason}
	}

	if cfg.ExitMode == ExitModeFull {
		return full("exit mode is FULL_EXIT")
	}
	if reg == regime.RegimeChaos {
		return full("chaos regime forces full exit")
	}
	if portfolioTier == tier.TierWhale && !cfg.WhaleOptIn {
		return full("whale tier without scale-out opt-in")
	}

	primaryQty := sellQty * cfg.PrimaryExitPct / 100
	remainder := sellQty - primaryQty
	if primaryQty <= 0 || remainder <= 0 {
		return full("primary split leaves no remainder")
	}

	feePct := cfg.EstimatedFeePct / 100
	primaryNet := primaryQty*(price-costBasis) - primaryQty*price*feePct
	if primaryNet < cfg.MinDollarProfit {
		return full(fmt.Sprintf("primary net profit %.2f below minimum %.2f", primaryNet, cfg.MinDollarProfit))
	}

	targetPrice := price * (1 + cfg.SecondaryTargetPct/100)
	secondaryNet := remainder*(targetPrice-costBasis) - remainder*targetPrice*feePct
	if secondaryNet < cfg.MinDollarProfit {
		return full(fmt.Sprintf("projected extension profit %.2f below minimum %.2f", secondaryNet, cfg.MinDollarProfit))
	}

	return Decision{
		Action:               ActionPrimaryExit,
		SellQty:              primaryQty,
		RemainderQty:         remainder,
		ShouldStartExtension: true,
		Reason: fmt.Sprintf("primary exit %.0f%%, extension targets %.4f",
			cfg.PrimaryExitPct, targetPrice),
	}
}

// StartExtension creates the extension leg from the remainder of a primary
// exit.
func StartExtension(cfg Config, qty, costBasis, price float64, now time.Time) ExtensionStateData {
	data := ExtensionStateData{
		State:       StateActive,
		Qty:         qty,
		CostBasis:   costBasis,
		EntryPrice:  price,
		PeakPrice:   price,
		TargetPrice: price * (1 + cfg.SecondaryTargetPct/100),
		StartTime:   now,
	}
	if cfg.MultiStepEnabled {
		data.Levels = buildLevels(cfg, qty, price)
	}
	return data
}

// buildLevels spaces the step targets either evenly across StepRangePct or by
// the explicit spacing list. Quantities split evenly; the last level absorbs
// rounding.
func buildLevels(cfg Config, qty, price float64) []StepLevel {
	spacings := cfg.StepSpacingsPct
	if len(spacings) == 0 {
		n := cfg.StepCount
		if n < 1 {
			n = 1
		}
		spacings = make([]float64, n)
		for i := range spacings {
			spacings[i] = cfg.StepRangePct * float64(i+1) / float64(n)
		}
	}

	levels := make([]StepLevel, len(spacings))
	perLevel := qty / float64(len(spacings))
	var assigned float64
	for i, pct := range spacings {
		lq := perLevel
		if i == len(spacings)-1 {
			lq = qty - assigned
		}
		assigned += lq
		levels[i] = StepLevel{
			TargetPrice: price * (1 + pct/100),
			Qty:         lq,
		}
	}
	return levels
}

// EvaluateExtension advances the extension state machine one cycle.
// Priority order: chaos abort, target reached, trailing stop, pullback
// protection, hold.
func EvaluateExtension(cfg Config, data ExtensionStateData, price float64, reg regime.Regime) (ExtensionStateData, ExtensionDecision) {
	if data.State == StateNone || data.Qty <= 0 {
		return data, ExtensionDecision{Action: ActionHoldExtension, Reason: "no active extension"}
	}

	// Chaos liquidates the whole remaining extension, profit or not.
	if reg == regime.RegimeChaos {
		qty := data.Qty
		return clearExtension(data), ExtensionDecision{
			Action:  ActionAbortScaleOut,
			SellQty: qty,
			Forced:  true,
			Reason:  "chaos regime abort",
		}
	}

	if price > data.PeakPrice {
		data.PeakPrice = price
	}

	// Multi-step ladder: only the lowest unmet level exits per cycle.
	if len(data.Levels) > 0 {
		if next := nextLevel(data); next >= 0 && price >= data.Levels[next].TargetPrice {
			data.Levels[next].Completed = true
			data.StepsDone++
			qty := data.Levels[next].Qty
			data.Qty = numutil.NonNeg(data.Qty - qty)
			reason := fmt.Sprintf("step %d target %.4f reached", next+1, data.Levels[next].TargetPrice)
			if nextLevel(data) < 0 || data.Qty <= 0 {
				data = clearExtension(data)
				reason += "; ladder complete"
			}
			return data, ExtensionDecision{Action: ActionExtensionExit, SellQty: qty, Reason: reason}
		}
	} else if price >= data.TargetPrice {
		qty := data.Qty
		return clearExtension(data), ExtensionDecision{
			Action:  ActionExtensionExit,
			SellQty: qty,
			Reason:  fmt.Sprintf("secondary target %.4f reached", data.TargetPrice),
		}
	}

	// Trailing stop arms once the minimum extension gain is achieved.
	if cfg.TrailingEnabled {
		gainPct := numutil.PctChange(data.EntryPrice, data.PeakPrice)
		if data.State == StateActive && gainPct >= cfg.MinExtensionGainPct {
			data.State = StateTrailing
		}
		if data.State == StateTrailing {
			pullback := numutil.PctChange(data.PeakPrice, price)
			if pullback <= -cfg.TrailingStopPct {
				qty := data.Qty
				return clearExtension(data), ExtensionDecision{
					Action:  ActionExtensionExit,
					SellQty: qty,
					Reason:  fmt.Sprintf("trailing stop: %.2f%% off peak %.4f", -pullback, data.PeakPrice),
				}
			}
		}
	}

	// Pullback protection: price drifting back to entry with nothing to show
	// for it closes the leg while it is still profitable.
	if cfg.PullbackProtectPct > 0 {
		distPct := numutil.PctChange(data.EntryPrice, price)
		profit := data.Qty * (price - data.CostBasis)
		if distPct <= cfg.PullbackProtectPct && profit < cfg.PullbackMinProfitUSD && profit >= 0 {
			qty := data.Qty
			return clearExtension(data), ExtensionDecision{
				Action:  ActionExtensionExit,
				SellQty: qty,
				Reason:  fmt.Sprintf("pullback protection near entry %.4f", data.EntryPrice),
			}
		}
	}

	return data, ExtensionDecision{Action: ActionHoldExtension, Reason: "holding extension"}
}

func nextLevel(data ExtensionStateData) int {
	for i, lvl := range data.Levels {
		if !lvl.Completed {
			return i
		}
	}
	return -1
}

func clearExtension(data ExtensionStateData) ExtensionStateData {
	data.State = StateNone
	data.Qty = 0
	data.Levels = nil
	return data
}
