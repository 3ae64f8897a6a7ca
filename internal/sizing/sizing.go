// Package sizing derives the next trade's notional from the bot's balance,
// reserve policy and realized gains. Each compounding mode has its own
// handler; all modes return zero below the minimum notional.
package sizing

import (
	"dex-dip-bot/internal/numutil"
)

// Mode selects how the trade size compounds.
type Mode string

const (
	ModeFixed       Mode = "FIXED"
	ModeFullBalance Mode = "FULL_BALANCE"
	ModeCalculated  Mode = "CALCULATED"
)

// Config holds compounding parameters.
type Config struct {
	Mode           Mode    `json:"mode"`
	FixedSizeUSD   float64 `json:"fixed_size_usd"`
	InitialSizeUSD float64 `json:"initial_size_usd"`
	ReservePct     float64 `json:"reserve_pct"` // share of gains withheld from compounding
	MinNotionalUSD float64 `json:"min_notional_usd"`
}

// DefaultConfig returns compounding defaults.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeFixed,
		FixedSizeUSD:   100,
		InitialSizeUSD: 100,
		ReservePct:     20,
		MinNotionalUSD: 10,
	}
}

// TradeSize computes the next buy's notional in quote terms.
// availableQuote is the bot's unencumbered quote balance after reserves.
func TradeSize(cfg Config, availableQuote, totalRealizedPnl float64) float64 {
	var size float64

	switch cfg.Mode {
	case ModeFullBalance:
		size = availableQuote
	case ModeCalculated:
		gains := numutil.NonNeg(totalRealizedPnl)
		size = cfg.InitialSizeUSD + gains*(1-cfg.ReservePct/100)
		size = numutil.Min(size, availableQuote)
	default: // FIXED
		size = numutil.Min(cfg.FixedSizeUSD, availableQuote)
	}

	size = numutil.NonNeg(size)
	if size < cfg.MinNotionalUSD {
		return 0
	}
	return size
}
