// Package cost converts a venue quote into a total execution cost percentage
// and a go/no-go edge decision. Pure functions, no state.
package cost

import (
	"fmt"

	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/venue"
)

// Rejection reason codes. These are gating outcomes, not errors.
const (
	ReasonCostTooHigh = "EXECUTION_COST_TOO_HIGH"
	ReasonEdgeTooLow  = "NET_EDGE_TOO_LOW"
)

// Config holds execution cost gating parameters.
type Config struct {
	DexFeePct       float64 `json:"dex_fee_pct"`        // venue fee as percent of notional
	PriorityFeePct  float64 `json:"priority_fee_pct"`   // priority/gas fee as percent of notional
	MaxTotalCostPct float64 `json:"max_total_cost_pct"` // hard ceiling on total cost
	MinNetEdgePct   float64 `json:"min_net_edge_pct"`   // minimum acceptable edge after costs

	// Sell target tiering: when execution is expensive the bot demands a
	// larger move before selling.
	BaseTargetPct         float64 `json:"base_target_pct"`
	Tier1TargetPct        float64 `json:"tier1_target_pct"`
	Tier2TargetPct        float64 `json:"tier2_target_pct"`
	Tier1CostThresholdPct float64 `json:"tier1_cost_threshold_pct"`
	Tier2CostThresholdPct float64 `json:"tier2_cost_threshold_pct"`
}

// DefaultConfig returns conservative cost gating defaults.
func DefaultConfig() Config {
	return Config{
		DexFeePct:             0.25,
		PriorityFeePct:        0.05,
		MaxTotalCostPct:       1.50,
		MinNetEdgePct:         0.10,
		BaseTargetPct:         1.00,
		Tier1TargetPct:        1.50,
		Tier2TargetPct:        2.00,
		Tier1CostThresholdPct: 0.30,
		Tier2CostThresholdPct: 0.50,
	}
}

// Result is the outcome of a cost evaluation.
type Result struct {
	Approved           bool    `json:"approved"`
	Reason             string  `json:"reason,omitempty"`
	Detail             string  `json:"detail,omitempty"`
	SlippagePct        float64 `json:"slippage_pct"`
	TotalCostPct       float64 `json:"total_cost_pct"`
	EffectiveTargetPct float64 `json:"effective_target_pct"`
	NetEdgePct         float64 `json:"net_edge_pct"`
}

// Evaluate gates a trade on its estimated execution cost.
// A nil price impact on the quote is treated as unknown slippage and
// contributes zero; the configured fees still apply.
func Evaluate(cfg Config, quote *venue.Quote) Result {
	var slippagePct float64
	if quote != nil && quote.PriceImpactBps != nil && numutil.IsFinite(*quote.PriceImpactBps) {
		slippagePct = numutil.NonNeg(*quote.PriceImpactBps) / 100
	}

	totalCost := slippagePct + cfg.DexFeePct + cfg.PriorityFeePct
	target := effectiveTarget(cfg, totalCost)
	netEdge := target - totalCost

	res := Result{
		SlippagePct:        slippagePct,
		TotalCostPct:       totalCost,
		EffectiveTargetPct: target,
		NetEdgePct:         netEdge,
	}

	if totalCost > cfg.MaxTotalCostPct {
		res.Reason = ReasonCostTooHigh
		res.Detail = fmt.Sprintf("total cost %.3f%% exceeds ceiling %.3f%%", totalCost, cfg.MaxTotalCostPct)
		return res
	}

	if netEdge < cfg.MinNetEdgePct {
		res.Reason = ReasonEdgeTooLow
		res.Detail = fmt.Sprintf("net edge %.3f%% below minimum %.3f%%", netEdge, cfg.MinNetEdgePct)
		return res
	}

	res.Approved = true
	return res
}

// effectiveTarget widens the sell target as execution cost climbs.
func effectiveTarget(cfg Config, totalCostPct float64) float64 {
	switch {
	case totalCostPct > cfg.Tier2CostThresholdPct:
		return cfg.Tier2TargetPct
	case totalCostPct > cfg.Tier1CostThresholdPct:
		return cfg.Tier1TargetPct
	default:
		return cfg.BaseTargetPct
	}
}
