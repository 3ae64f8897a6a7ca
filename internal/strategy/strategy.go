// Package strategy is the top-level per-cycle evaluator: circuit breakers,
// cooldowns, rate limits and buy-dip/sell-rise threshold logic, producing a
// single action per cycle. It is a pure state-transition function; the caller
// owns persistence and must honor PAUSE by halting the bot's loop.
package strategy

import (
	"fmt"
	"time"

	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/venue"
)

// Action is the cycle outcome.
type Action string

const (
	ActionHold  Action = "HOLD"
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionPause Action = "PAUSE"
)

// Breaker codes attached to PAUSE decisions.
const (
	CodeMaxFailures   = "MAX_CONSECUTIVE_FAILURES"
	CodeDailyLoss     = "DAILY_LOSS_LIMIT"
	CodeGasReserveLow = "GAS_RESERVE_LOW"
)

// StartingMode controls the bootstrap action when no reference prices exist.
type StartingMode string

const (
	StartBuyFirst  StartingMode = "BUY_FIRST"
	StartSellFirst StartingMode = "SELL_FIRST"
	StartWait      StartingMode = "WAIT"
)

// SizeMode selects how the per-trade size is derived.
type SizeMode string

const (
	SizeFixedQuote SizeMode = "FIXED_QUOTE"
	SizeFixedBase  SizeMode = "FIXED_BASE"
	SizePctBalance SizeMode = "PCT_BALANCE"
)

// Config is the immutable per-bot policy. Loaded externally; the evaluator
// treats it as read-only input each cycle.
type Config struct {
	BuyDipPct   float64 `json:"buy_dip_pct"`
	SellRisePct float64 `json:"sell_rise_pct"`

	StartingMode StartingMode `json:"starting_mode"`

	SizeMode       SizeMode `json:"size_mode"`
	FixedQuoteUSD  float64  `json:"fixed_quote_usd"`
	FixedBaseQty   float64  `json:"fixed_base_qty"`
	BalancePct     float64  `json:"balance_pct"`
	MinNotionalUSD float64  `json:"min_notional_usd"`

	// Balances below these reserves are never traded.
	QuoteReserveUSD float64 `json:"quote_reserve_usd"`
	BaseReserveQty  float64 `json:"base_reserve_qty"`
	MinGasNative    float64 `json:"min_gas_native"`

	CooldownSec            int     `json:"cooldown_sec"`
	MaxTradesPerHour       int     `json:"max_trades_per_hour"`
	MaxConsecutiveFailures int     `json:"max_consecutive_failures"`
	DailyLossLimitUSD      float64 `json:"daily_loss_limit_usd"`
	MaxPriceImpactBps      float64 `json:"max_price_impact_bps"`
}

// DefaultConfig returns conservative strategy defaults.
func DefaultConfig() Config {
	return Config{
		BuyDipPct:              2.0,
		SellRisePct:            5.0,
		StartingMode:           StartBuyFirst,
		SizeMode:               SizeFixedQuote,
		FixedQuoteUSD:          100,
		BalancePct:             25,
		MinNotionalUSD:         10,
		MinGasNative:           0.01,
		CooldownSec:            60,
		MaxTradesPerHour:       10,
		MaxConsecutiveFailures: 3,
		DailyLossLimitUSD:      50,
		MaxPriceImpactBps:      100,
	}
}

// State carries the mutable per-bot facts between cycles. The evaluator reads
// it and returns an updated copy; it never touches storage.
type State struct {
	LastBuyPrice  float64   `json:"last_buy_price"`
	LastSellPrice float64   `json:"last_sell_price"`
	LastTradeTime time.Time `json:"last_trade_time"`

	ConsecutiveFailures int `json:"consecutive_failures"`

	TradesThisHour int       `json:"trades_this_hour"`
	HourStart      time.Time `json:"hour_start"`

	DailyRealizedPnl float64   `json:"daily_realized_pnl"`
	DayStart         time.Time `json:"day_start"`
}

// Decision is the single action a cycle produces.
type Decision struct {
	Action      Action  `json:"action"`
	Code        string  `json:"code,omitempty"` // breaker code on PAUSE
	QuoteAmount float64 `json:"quote_amount,omitempty"`
	BaseQty     float64 `json:"base_qty,omitempty"`
	Reason      string  `json:"reason"`
}

func hold(reason string) Decision { return Decision{Action: ActionHold, Reason: reason} }

func pause(code, reason string) Decision {
	return Decision{Action: ActionPause, Code: code, Reason: reason}
}

// Evaluate runs one strategy cycle. Checks run in fixed order: breakers first
// (PAUSE), then rate limits and the impact cap (HOLD), then the threshold
// evaluation. quote may be nil when the venue could not produce one; the
// impact cap then passes and the cost gate downstream handles the unknown.
func Evaluate(cfg Config, st State, bal venue.Balances, price float64, quote *venue.Quote, now time.Time) (State, Decision) {
	st = rollover(st, now)

	// (1) consecutive-failure breaker
	if cfg.MaxConsecutiveFailures > 0 && st.ConsecutiveFailures >= cfg.MaxConsecutiveFailures {
		return st, pause(CodeMaxFailures,
			fmt.Sprintf("%d consecutive failures (limit %d)", st.ConsecutiveFailures, cfg.MaxConsecutiveFailures))
	}

	// (2) daily loss limit
	if cfg.DailyLossLimitUSD > 0 && st.DailyRealizedPnl <= -cfg.DailyLossLimitUSD {
		return st, pause(CodeDailyLoss,
			fmt.Sprintf("daily pnl %.2f breaches loss limit %.2f", st.DailyRealizedPnl, cfg.DailyLossLimitUSD))
	}

	// (3) gas reserve
	if bal.NativeForGas < cfg.MinGasNative {
		return st, pause(CodeGasReserveLow,
			fmt.Sprintf("native balance %.6f below gas reserve %.6f", bal.NativeForGas, cfg.MinGasNative))
	}

	// (4) cooldown
	if cfg.CooldownSec > 0 && !st.LastTradeTime.IsZero() {
		elapsed := now.Sub(st.LastTradeTime)
		if elapsed < time.Duration(cfg.CooldownSec)*time.Second {
			return st, hold(fmt.Sprintf("cooldown: %.0fs of %ds elapsed", elapsed.Seconds(), cfg.CooldownSec))
		}
	}

	// (5) hourly trade cap
	if cfg.MaxTradesPerHour > 0 && st.TradesThisHour >= cfg.MaxTradesPerHour {
		return st, hold(fmt.Sprintf("hourly cap reached: %d trades", st.TradesThisHour))
	}

	// (6) price-impact cap
	if quote != nil && quote.PriceImpactBps != nil && cfg.MaxPriceImpactBps > 0 {
		if *quote.PriceImpactBps > cfg.MaxPriceImpactBps {
			return st, hold(fmt.Sprintf("price impact %.1fbps above cap %.1fbps", *quote.PriceImpactBps, cfg.MaxPriceImpactBps))
		}
	}

	// (7) thresholds
	return st, evaluateThresholds(cfg, st, bal, price)
}

// rollover resets the hourly and daily counters when their windows lapse.
func rollover(st State, now time.Time) State {
	if st.HourStart.IsZero() || now.Sub(st.HourStart) >= time.Hour {
		st.HourStart = now.Truncate(time.Hour)
		st.TradesThisHour = 0
	}
	if st.DayStart.IsZero() || !now.UTC().Truncate(24*time.Hour).Equal(st.DayStart) {
		st.DayStart = now.UTC().Truncate(24 * time.Hour)
		st.DailyRealizedPnl = 0
	}
	return st
}

// evaluateThresholds applies the buy-dip/sell-rise rules. Move percentages
// are rounded to two decimals before comparing and must strictly exceed the
// configured threshold, so a move of exactly the threshold holds.
func evaluateThresholds(cfg Config, st State, bal venue.Balances, price float64) Decision {
	hasBuyRef := st.LastBuyPrice > 0
	hasSellRef := st.LastSellPrice > 0

	if !hasBuyRef && !hasSellRef {
		return bootstrap(cfg, bal, price)
	}

	if hasBuyRef {
		risePct := numutil.RoundTo(numutil.PctChange(st.LastBuyPrice, price), 2)
		if risePct > cfg.SellRisePct {
			qty := sellSize(cfg, bal, price)
			if qty <= 0 {
				return hold("sell signal but no sellable size above minimum notional")
			}
			return Decision{
				Action:  ActionSell,
				BaseQty: qty,
				Reason:  fmt.Sprintf("price %.4f is %.2f%% above last buy %.4f", price, risePct, st.LastBuyPrice),
			}
		}
	}

	if hasSellRef {
		dropPct := numutil.RoundTo(-numutil.PctChange(st.LastSellPrice, price), 2)
		if dropPct > cfg.BuyDipPct {
			amount := buySize(cfg, bal, price)
			if amount <= 0 {
				return hold("buy signal but no affordable size above minimum notional")
			}
			return Decision{
				Action:      ActionBuy,
				QuoteAmount: amount,
				Reason:      fmt.Sprintf("price %.4f is %.2f%% below last sell %.4f", price, dropPct, st.LastSellPrice),
			}
		}
	}

	return hold(distanceReason(cfg, st, price))
}

// bootstrap decides the first trade of a fresh bot.
func bootstrap(cfg Config, bal venue.Balances, price float64) Decision {
	switch cfg.StartingMode {
	case StartBuyFirst:
		amount := buySize(cfg, bal, price)
		if amount <= 0 {
			return hold("bootstrap buy below minimum notional")
		}
		return Decision{Action: ActionBuy, QuoteAmount: amount, Reason: "bootstrap: buy first"}
	case StartSellFirst:
		qty := sellSize(cfg, bal, price)
		if qty <= 0 {
			return hold("bootstrap sell: no base to sell")
		}
		return Decision{Action: ActionSell, BaseQty: qty, Reason: "bootstrap: sell first"}
	default:
		return hold("bootstrap: waiting for a reference price")
	}
}

// distanceReason describes how far price is from the nearest threshold.
func distanceReason(cfg Config, st State, price float64) string {
	if st.LastSellPrice > 0 {
		buyTarget := st.LastSellPrice * (1 - cfg.BuyDipPct/100)
		if st.LastBuyPrice > 0 {
			sellTarget := st.LastBuyPrice * (1 + cfg.SellRisePct/100)
			return fmt.Sprintf("holding: buy below %.4f, sell above %.4f, price %.4f", buyTarget, sellTarget, price)
		}
		return fmt.Sprintf("holding: waiting for dip below %.4f, price %.4f", buyTarget, price)
	}
	sellTarget := st.LastBuyPrice * (1 + cfg.SellRisePct/100)
	return fmt.Sprintf("holding: waiting for rise above %.4f, price %.4f", sellTarget, price)
}

// buySize derives the quote amount to spend, clamped to the quote reserve and
// the minimum notional.
func buySize(cfg Config, bal venue.Balances, price float64) float64 {
	spendable := numutil.NonNeg(bal.Quote - cfg.QuoteReserveUSD)

	var amount float64
	switch cfg.SizeMode {
	case SizeFixedBase:
		amount = cfg.FixedBaseQty * price
	case SizePctBalance:
		amount = spendable * cfg.BalancePct / 100
	default:
		amount = cfg.FixedQuoteUSD
	}

	amount = numutil.Min(amount, spendable)
	if amount < cfg.MinNotionalUSD {
		return 0
	}
	return amount
}

// sellSize derives the base quantity to sell, clamped to the base reserve and
// the minimum notional.
func sellSize(cfg Config, bal venue.Balances, price float64) float64 {
	sellable := numutil.NonNeg(bal.Base - cfg.BaseReserveQty)

	var qty float64
	switch cfg.SizeMode {
	case SizeFixedBase:
		qty = cfg.FixedBaseQty
	case SizePctBalance:
		qty = sellable * cfg.BalancePct / 100
	default:
		qty = numutil.SafeDiv(cfg.FixedQuoteUSD, price)
	}

	qty = numutil.Min(qty, sellable)
	if qty*price < cfg.MinNotionalUSD {
		return 0
	}
	return qty
}

// RecordFill updates state after a successful trade: the executed side's
// reference price, counters, and realized pnl for the daily breaker.
func RecordFill(st State, side venue.Side, price, realizedPnl float64, now time.Time) State {
	if side == venue.SideBuy {
		st.LastBuyPrice = price
	} else {
		st.LastSellPrice = price
	}
	st.LastTradeTime = now
	st.TradesThisHour++
	st.ConsecutiveFailures = 0
	st.DailyRealizedPnl += realizedPnl
	return st
}

// RecordFailure increments the consecutive-failure counter feeding the
// circuit breaker.
func RecordFailure(st State) State {
	st.ConsecutiveFailures++
	return st
}
