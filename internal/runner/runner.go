// Package runner manages the independent "runner" leg split off after a core
// exit. The runner has its own cost basis and exit policy (ladder or
// trailing) and is never counted in core position sizing. Two hard blocks
// override both modes: a runner exit must not realize a loss, and it must not
// fire while the current net edge is negative.
package runner

import (
	"fmt"
	"sort"
	"time"

	"dex-dip-bot/internal/numutil"
)

// State is the runner lifecycle state.
type State string

const (
	StateNone   State = "NONE"
	StateActive State = "ACTIVE"
)

// Decision actions.
const (
	ActionCreateRunner  = "CREATE_RUNNER"
	ActionHoldRunner    = "HOLD_RUNNER"
	ActionSellRunner    = "SELL_RUNNER"
	ActionBlockedProfit = "BLOCKED_PROFIT"
	ActionBlockedCost   = "BLOCKED_COST"
	ActionNone          = "NONE"
)

// Mode selects the runner exit policy.
type Mode string

const (
	ModeLadder   Mode = "LADDER"
	ModeTrailing Mode = "TRAILING"
)

// LadderStep is one rung of the ladder exit: sell SellPct of the original
// runner quantity once price gains TargetPct over the runner entry.
type LadderStep struct {
	TargetPct float64 `json:"target_pct"`
	SellPct   float64 `json:"sell_pct"`
}

// Config holds runner policy.
type Config struct {
	Enabled     bool         `json:"enabled"`
	Mode        Mode         `json:"mode"`
	CoreExitPct float64      `json:"core_exit_pct"` // share of the position the core exit sells
	Ladder      []LadderStep `json:"ladder,omitempty"`

	TrailingActivationPct float64 `json:"trailing_activation_pct"`
	TrailingStopPct       float64 `json:"trailing_stop_pct"`

	MinQty float64 `json:"min_qty"` // remainders below this are not worth tracking
}

// DefaultConfig returns runner defaults with a three-rung ladder.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Mode:        ModeLadder,
		CoreExitPct: 80,
		Ladder: []LadderStep{
			{TargetPct: 2, SellPct: 40},
			{TargetPct: 4, SellPct: 30},
			{TargetPct: 8, SellPct: 30},
		},
		TrailingActivationPct: 2.0,
		TrailingStopPct:       1.5,
		MinQty:                0.000001,
	}
}

// Validate checks ladder invariants: strictly increasing targets and sell
// percentages summing to 100.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Mode != ModeLadder && c.Mode != ModeTrailing {
		return fmt.Errorf("unknown runner mode %q", c.Mode)
	}
	if c.Mode == ModeLadder {
		if len(c.Ladder) == 0 {
			return fmt.Errorf("ladder mode requires at least one step")
		}
		if !sort.SliceIsSorted(c.Ladder, func(i, j int) bool {
			return c.Ladder[i].TargetPct < c.Ladder[j].TargetPct
		}) {
			return fmt.Errorf("ladder targets must be strictly increasing")
		}
		var sum float64
		for i, s := range c.Ladder {
			if i > 0 && s.TargetPct == c.Ladder[i-1].TargetPct {
				return fmt.Errorf("ladder targets must be strictly increasing")
			}
			sum += s.SellPct
		}
		if numutil.RoundTo(sum, 6) != 100 {
			return fmt.Errorf("ladder sell percentages sum to %.2f, want 100", sum)
		}
	}
	return nil
}

// StateData is the persisted state of one runner leg.
type StateData struct {
	State       State     `json:"state"`
	Qty         float64   `json:"qty"`
	InitialQty  float64   `json:"initial_qty"`
	CostBasis   float64   `json:"cost_basis"`
	EntryPrice  float64   `json:"entry_price"`
	PeakPrice   float64   `json:"peak_price"`
	LadderIndex int       `json:"ladder_index"`
	Activated   bool      `json:"activated"` // trailing mode armed
	StartTime   time.Time `json:"start_time"`
}

// Decision is a runner evaluation outcome.
type Decision struct {
	Action  string  `json:"action"`
	SellQty float64 `json:"sell_qty"`
	Reason  string  `json:"reason"`
}

// MaybeCreate spins a runner off the remainder left after the core exit.
// Returns a NONE decision when the feature is disabled or the remainder is
// dust.
func MaybeCreate(cfg Config, remainderQty, costBasis, price float64, now time.Time) (StateData, Decision) {
	if !cfg.Enabled || remainderQty < cfg.MinQty {
		return StateData{State: StateNone}, Decision{Action: ActionNone, Reason: "runner disabled or remainder too small"}
	}

	data := StateData{
		State:      StateActive,
		Qty:        remainderQty,
		InitialQty: remainderQty,
		CostBasis:  costBasis,
		EntryPrice: price,
		PeakPrice:  price,
		StartTime:  now,
	}
	return data, Decision{
		Action:  ActionCreateRunner,
		SellQty: 0,
		Reason:  fmt.Sprintf("runner created: %.6f @ %.4f", remainderQty, price),
	}
}

// EvaluateExit advances the runner one cycle. netEdgePct is the current cost
// calculator edge; a negative edge blocks any exit regardless of mode.
func EvaluateExit(cfg Config, data StateData, price, netEdgePct float64) (StateData, Decision) {
	if data.State != StateActive || data.Qty <= 0 {
		return data, Decision{Action: ActionNone, Reason: "no active runner"}
	}

	if price > data.PeakPrice {
		data.PeakPrice = price
	}

	// Hard blocks run before either exit mode gets a say: a runner under
	// water or facing negative edge reports the block even when no ladder
	// step or trailing stop is pending.
	if price <= data.CostBasis {
		return data, Decision{
			Action: ActionBlockedProfit,
			Reason: fmt.Sprintf("price %.4f at or below cost basis %.4f", price, data.CostBasis),
		}
	}
	if netEdgePct < 0 {
		return data, Decision{
			Action: ActionBlockedCost,
			Reason: fmt.Sprintf("net edge %.3f%% is negative", netEdgePct),
		}
	}

	sellQty, reason := pendingExit(cfg, &data, price)
	if sellQty <= 0 {
		return data, Decision{Action: ActionHoldRunner, Reason: reason}
	}

	data.Qty = numutil.NonNeg(data.Qty - sellQty)
	if cfg.Mode == ModeLadder {
		data.LadderIndex++
	}
	if data.Qty < cfg.MinQty || (cfg.Mode == ModeLadder && data.LadderIndex >= len(cfg.Ladder)) || cfg.Mode == ModeTrailing {
		data.State = StateNone
		data.Qty = 0
	}

	return data, Decision{Action: ActionSellRunner, SellQty: sellQty, Reason: reason}
}

// pendingExit computes the quantity the active mode wants to sell this cycle.
// The hard blocks have already been cleared by the time it runs.
func pendingExit(cfg Config, data *StateData, price float64) (float64, string) {
	gainPct := numutil.PctChange(data.EntryPrice, price)

	switch cfg.Mode {
	case ModeTrailing:
		if !data.Activated {
			if gainPct >= cfg.TrailingActivationPct {
				data.Activated = true
			} else {
				return 0, fmt.Sprintf("trailing not armed: gain %.2f%% < %.2f%%", gainPct, cfg.TrailingActivationPct)
			}
		}
		pullback := numutil.PctChange(data.PeakPrice, price)
		if pullback <= -cfg.TrailingStopPct {
			return data.Qty, fmt.Sprintf("trailing stop: %.2f%% off peak %.4f", -pullback, data.PeakPrice)
		}
		return 0, "trailing armed, holding"

	default: // LADDER
		if data.LadderIndex >= len(cfg.Ladder) {
			return 0, "ladder exhausted"
		}
		step := cfg.Ladder[data.LadderIndex]
		if gainPct < step.TargetPct {
			return 0, fmt.Sprintf("gain %.2f%% below step %d target %.2f%%", gainPct, data.LadderIndex+1, step.TargetPct)
		}
		qty := numutil.Min(data.InitialQty*step.SellPct/100, data.Qty)
		return qty, fmt.Sprintf("ladder step %d: target %.2f%% reached", data.LadderIndex+1, step.TargetPct)
	}
}
