// Package reserve manages the 3-bucket adaptive reserve: capital withheld
// from normal trading and deployable only as rescue buys (averaging down a
// drawdown) or chase buys (following a breakout above the last sell). Each
// deployment path has its own regime gate, trigger and per-cycle limits; all
// cycle state resets when the position fully closes.
package reserve

import (
	"fmt"

	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/regime"
)

// Deployment actions.
const (
	ActionNone      = "NONE"
	ActionRescueBuy = "RESCUE_BUY"
	ActionChaseBuy  = "CHASE_BUY"
	ActionChaseSell = "CHASE_SELL"
)

// Gate restricts a deployment path to certain regimes.
type Gate string

const (
	GateNone         Gate = "NONE"
	GateTrendOnly    Gate = "TREND_ONLY"
	GateChaosOnly    Gate = "CHAOS_ONLY"
	GateTrendOrChaos Gate = "TREND_OR_CHAOS"
	GateTrendUpOnly  Gate = "TREND_UP_ONLY"
)

// Config holds reserve policy.
type Config struct {
	Enabled         bool    `json:"enabled"`
	ResetReservePct float64 `json:"reset_reserve_pct"` // share of allocation withheld as reserve

	RescueEnabled      bool    `json:"rescue_enabled"`
	RescueGate         Gate    `json:"rescue_gate"`
	RescueTriggerPct   float64 `json:"rescue_trigger_pct"` // drop from last buy that triggers a rescue
	RescueSizePct      float64 `json:"rescue_size_pct"`    // share of the remaining reserve per rescue
	MaxRescuesPerCycle int     `json:"max_rescues_per_cycle"`

	ChaseEnabled       bool    `json:"chase_enabled"`
	ChaseGate          Gate    `json:"chase_gate"`
	ChaseTriggerPct    float64 `json:"chase_trigger_pct"`     // rise above last sell that triggers a chase
	ChaseSizePct       float64 `json:"chase_size_pct"`        // share of the remaining reserve per chase
	ChaseExitTargetPct float64 `json:"chase_exit_target_pct"` // profit target above the chase entry
	MaxChasesPerCycle  int     `json:"max_chases_per_cycle"`

	MaxDeploymentsPerCycle int     `json:"max_deployments_per_cycle"`
	MinDeploymentUSD       float64 `json:"min_deployment_usd"`
}

// DefaultConfig returns reserve defaults with both paths disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:                false,
		ResetReservePct:        30,
		RescueEnabled:          false,
		RescueGate:             GateTrendOrChaos,
		RescueTriggerPct:       5.0,
		RescueSizePct:          50,
		MaxRescuesPerCycle:     2,
		ChaseEnabled:           false,
		ChaseGate:              GateTrendUpOnly,
		ChaseTriggerPct:        3.0,
		ChaseSizePct:           50,
		ChaseExitTargetPct:     2.0,
		MaxChasesPerCycle:      1,
		MaxDeploymentsPerCycle: 3,
		MinDeploymentUSD:       5,
	}
}

// State is the per-cycle reserve tracker.
type State struct {
	InitialReserve   float64 `json:"initial_reserve"`
	AvailableReserve float64 `json:"available_reserve"`
	RescueBuys       int     `json:"rescue_buys"`
	ChaseBuys        int     `json:"chase_buys"`
	TotalDeployments int     `json:"total_deployments"`

	ChaseActive     bool    `json:"chase_active"`
	ChaseEntryPrice float64 `json:"chase_entry_price"`
	ChaseQty        float64 `json:"chase_qty"`
	ChaseCost       float64 `json:"chase_cost"`
}

// Decision is a reserve evaluation outcome.
type Decision struct {
	Action      string  `json:"action"`
	QuoteAmount float64 `json:"quote_amount,omitempty"`
	SellQty     float64 `json:"sell_qty,omitempty"`
	Reason      string  `json:"reason"`
}

func hold(reason string) Decision { return Decision{Action: ActionNone, Reason: reason} }

// Split divides an allocation into trading capital and reserve, returning
// (tradingUSD, reserve state).
func Split(cfg Config, allocatedQuote float64) (float64, State) {
	if !cfg.Enabled || cfg.ResetReservePct <= 0 {
		return allocatedQuote, State{}
	}
	res := allocatedQuote * cfg.ResetReservePct / 100
	return allocatedQuote - res, State{InitialReserve: res, AvailableReserve: res}
}

// gateAllows checks a deployment gate against the current classification.
// TREND_UP_ONLY additionally requires a positive recent price change.
func gateAllows(g Gate, reg regime.Regime, recentChangePct float64) bool {
	switch g {
	case GateNone:
		return true
	case GateTrendOnly:
		return reg == regime.RegimeTrend
	case GateChaosOnly:
		return reg == regime.RegimeChaos
	case GateTrendOrChaos:
		return reg == regime.RegimeTrend || reg == regime.RegimeChaos
	case GateTrendUpOnly:
		return reg == regime.RegimeTrend && recentChangePct > 0
	default:
		return false
	}
}

// EvaluateRescue checks whether a rescue buy should deploy: price has dropped
// rescueTriggerPct below the last buy and all gates and limits allow.
// The rescue blends into the existing position (caller averages the basis).
func EvaluateRescue(cfg Config, st State, price, lastBuyPrice float64, reg regime.Regime, recentChangePct float64) (State, Decision) {
	if !cfg.Enabled || !cfg.RescueEnabled {
		return st, hold("rescue disabled")
	}
	if !gateAllows(cfg.RescueGate, reg, recentChangePct) {
		return st, hold(fmt.Sprintf("rescue gate %s blocks regime %s", cfg.RescueGate, reg))
	}
	if st.AvailableReserve < cfg.MinDeploymentUSD {
		return st, hold("reserve exhausted")
	}
	if lastBuyPrice <= 0 {
		return st, hold("no reference buy price")
	}

	dropPct := -numutil.PctChange(lastBuyPrice, price)
	if dropPct < cfg.RescueTriggerPct {
		return st, hold(fmt.Sprintf("drop %.2f%% below trigger %.2f%%", dropPct, cfg.RescueTriggerPct))
	}

	if st.RescueBuys >= cfg.MaxRescuesPerCycle {
		return st, hold("rescue count limit reached")
	}
	if st.TotalDeployments >= cfg.MaxDeploymentsPerCycle {
		return st, hold("deployment limit reached")
	}

	amount := st.AvailableReserve * cfg.RescueSizePct / 100
	if amount < cfg.MinDeploymentUSD {
		amount = numutil.Min(st.AvailableReserve, cfg.MinDeploymentUSD)
	}

	st.AvailableReserve = numutil.NonNeg(st.AvailableReserve - amount)
	st.RescueBuys++
	st.TotalDeployments++

	return st, Decision{
		Action:      ActionRescueBuy,
		QuoteAmount: amount,
		Reason:      fmt.Sprintf("rescue: price %.4f is %.2f%% below last buy %.4f", price, dropPct, lastBuyPrice),
	}
}

// EvaluateChase checks whether a chase buy should deploy: price has risen
// chaseTriggerPct above the last sell. A chase opens a separately tracked
// position with its own profit-target exit; only one may be open at a time.
func EvaluateChase(cfg Config, st State, price, lastSellPrice float64, reg regime.Regime, recentChangePct float64) (State, Decision) {
	if !cfg.Enabled || !cfg.ChaseEnabled {
		return st, hold("chase disabled")
	}
	if st.ChaseActive {
		return st, hold("chase position already open")
	}
	if !gateAllows(cfg.ChaseGate, reg, recentChangePct) {
		return st, hold(fmt.Sprintf("chase gate %s blocks regime %s", cfg.ChaseGate, reg))
	}
	if st.AvailableReserve < cfg.MinDeploymentUSD {
		return st, hold("reserve exhausted")
	}
	if lastSellPrice <= 0 {
		return st, hold("no reference sell price")
	}

	risePct := numutil.PctChange(lastSellPrice, price)
	if risePct < cfg.ChaseTriggerPct {
		return st, hold(fmt.Sprintf("rise %.2f%% below trigger %.2f%%", risePct, cfg.ChaseTriggerPct))
	}

	if st.ChaseBuys >= cfg.MaxChasesPerCycle {
		return st, hold("chase count limit reached")
	}
	if st.TotalDeployments >= cfg.MaxDeploymentsPerCycle {
		return st, hold("deployment limit reached")
	}

	amount := st.AvailableReserve * cfg.ChaseSizePct / 100
	if amount < cfg.MinDeploymentUSD {
		amount = numutil.Min(st.AvailableReserve, cfg.MinDeploymentUSD)
	}

	st.AvailableReserve = numutil.NonNeg(st.AvailableReserve - amount)
	st.ChaseBuys++
	st.TotalDeployments++
	st.ChaseActive = true
	st.ChaseEntryPrice = price
	st.ChaseCost = amount
	st.ChaseQty = numutil.SafeDiv(amount, price)

	return st, Decision{
		Action:      ActionChaseBuy,
		QuoteAmount: amount,
		Reason:      fmt.Sprintf("chase: price %.4f is %.2f%% above last sell %.4f", price, risePct, lastSellPrice),
	}
}

// EvaluateChaseExit closes the chase position once its own profit target is
// reached.
func EvaluateChaseExit(cfg Config, st State, price float64) (State, Decision) {
	if !st.ChaseActive || st.ChaseQty <= 0 {
		return st, hold("no chase position")
	}

	target := st.ChaseEntryPrice * (1 + cfg.ChaseExitTargetPct/100)
	if price < target {
		return st, hold(fmt.Sprintf("chase target %.4f not reached", target))
	}

	qty := st.ChaseQty
	st.ChaseActive = false
	st.ChaseQty = 0
	st.ChaseCost = 0
	st.ChaseEntryPrice = 0

	return st, Decision{
		Action:  ActionChaseSell,
		SellQty: qty,
		Reason:  fmt.Sprintf("chase exit: price %.4f reached target %.4f", price, target),
	}
}

// ResetCycle clears counters and the chase position after the core position
// fully closes, restoring the full reserve.
func ResetCycle(st State) State {
	return State{
		InitialReserve:   st.InitialReserve,
		AvailableReserve: st.InitialReserve,
	}
}
