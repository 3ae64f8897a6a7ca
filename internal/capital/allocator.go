// Package capital maintains the per-bot virtual ledger over a shared wallet.
// It enforces the two safety rules of the core: a bot can only spend capital
// allocated to it, and a sell must never realize a loss unless forced by a
// higher-level abort. All reservation and settlement for bots sharing one
// wallet is serialized behind the Allocator's mutex.
package capital

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/pnl"
	"dex-dip-bot/internal/venue"
)

// Gating reason codes.
const (
	ReasonInsufficientCapital = "INSUFFICIENT_CAPITAL"
	ReasonSellNotProfitable   = "SELL_NOT_PROFITABLE"
	ReasonWalletGuardrail     = "WALLET_GUARDRAIL_FAILED"
)

var (
	ErrUnknownBot          = errors.New("bot is not registered with the allocator")
	ErrAlreadyReserved     = errors.New("bot already has an unsettled reservation")
	ErrNothingReserved     = errors.New("bot has no reservation to settle")
	ErrReservationMismatch = errors.New("settlement does not match the reserved plan")
)

// Config holds allocator parameters.
type Config struct {
	FeeBufferMult       float64 `json:"fee_buffer_mult"`        // multiplier on estimated fees
	MinWalletReserveUSD float64 `json:"min_wallet_reserve_usd"` // safety buffer kept in the wallet
	MinProfitUSD        float64 `json:"min_profit_usd"`         // minimum net profit for a sell
}

// DefaultConfig returns allocator defaults.
func DefaultConfig() Config {
	return Config{
		FeeBufferMult:       1.5,
		MinWalletReserveUSD: 10,
		MinProfitUSD:        0.01,
	}
}

// BotCapitalState is one bot's virtual ledger.
// Invariant: AllocatedQuote - ReservedFees - PendingBuy >= 0 and
// AllocatedBase - PendingSell >= 0 at all times.
type BotCapitalState struct {
	AllocatedQuote float64 `json:"allocated_quote"`
	AllocatedBase  float64 `json:"allocated_base"`
	ReservedFees   float64 `json:"reserved_fees"`
	PendingBuy     float64 `json:"pending_buy"`  // quote encumbered by an in-flight buy
	PendingSell    float64 `json:"pending_sell"` // base encumbered by an in-flight sell
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	TotalCost      float64 `json:"total_cost"`
	TotalQty       float64 `json:"total_qty"`
}

// AvailableQuote is the quote balance not encumbered by reservations.
func (s BotCapitalState) AvailableQuote() float64 {
	return s.AllocatedQuote - s.ReservedFees - s.PendingBuy
}

// AvailableBase is the base balance not encumbered by reservations.
func (s BotCapitalState) AvailableBase() float64 {
	return s.AllocatedBase - s.PendingSell
}

// TradePlan is the unit of solvency checking: a proposed trade with its
// estimated fee at a reference price.
type TradePlan struct {
	Side          venue.Side `json:"side"`
	QuoteAmount   float64    `json:"quote_amount"`
	BaseAmount    float64    `json:"base_amount"`
	EstimatedFee  float64    `json:"estimated_fee"`
	Price         float64    `json:"price"`
	ClientOrderID string     `json:"client_order_id"`

	// Forced marks a sell that bypasses the no-loss rule (chaos abort,
	// operator liquidation). Solvency is still enforced.
	Forced bool `json:"forced,omitempty"`
}

// Decision is a gating outcome. Rejections carry a machine-readable reason
// and leave all state untouched.
type Decision struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func approve() Decision { return Decision{OK: true} }

func reject(reason, format string, args ...interface{}) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Allocator is the wallet-level arena of bot ledgers.
type Allocator struct {
	mu     sync.Mutex
	cfg    Config
	bots   map[string]*BotCapitalState
	logger zerolog.Logger

	// reservations maps bot id -> the plan currently encumbering funds.
	// One reservation per bot at a time: a cycle settles before the next
	// begins.
	reservations map[string]TradePlan
}

// NewAllocator creates an empty allocator for one wallet.
func NewAllocator(cfg Config, logger zerolog.Logger) *Allocator {
	return &Allocator{
		cfg:          cfg,
		bots:         make(map[string]*BotCapitalState),
		reservations: make(map[string]TradePlan),
		logger:       logger.With().Str("component", "CapitalAllocator").Logger(),
	}
}

// RegisterBot adds a bot with its initial quote allocation. Re-registering
// an existing bot replaces its ledger; callers restore persisted state via
// RestoreState instead.
func (a *Allocator) RegisterBot(botID string, allocatedQuote float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bots[botID] = &BotCapitalState{AllocatedQuote: numutil.NonNeg(allocatedQuote)}
	a.logger.Info().Str("bot", botID).Float64("allocated_quote", allocatedQuote).Msg("bot registered")
}

// RestoreState installs a persisted ledger for a bot. Pending and reserved
// amounts are cleared: a restart must never resurrect an in-flight
// reservation.
func (a *Allocator) RestoreState(botID string, st BotCapitalState) {
	st.PendingBuy = 0
	st.PendingSell = 0
	st.ReservedFees = 0

	a.mu.Lock()
	defer a.mu.Unlock()
	a.bots[botID] = &st
}

// State returns a copy of the bot's ledger.
func (a *Allocator) State(botID string) (BotCapitalState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.bots[botID]
	if !ok {
		return BotCapitalState{}, false
	}
	return *st, true
}

// CheckWalletGuardrail verifies that the sum of every bot's allocated,
// pending and reserved funds plus the minimum wallet reserve fits inside the
// actual wallet balance. Fails closed: a non-finite balance rejects.
func (a *Allocator) CheckWalletGuardrail(actualWalletQuote float64) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkGuardrailLocked(actualWalletQuote)
}

func (a *Allocator) checkGuardrailLocked(actualWalletQuote float64) Decision {
	if !numutil.IsFinite(actualWalletQuote) {
		return reject(ReasonWalletGuardrail, "wallet balance is not a finite number")
	}

	var committed float64
	for _, st := range a.bots {
		committed += st.AllocatedQuote + st.PendingBuy + st.ReservedFees
	}

	needed := committed + a.cfg.MinWalletReserveUSD
	if needed > actualWalletQuote {
		return reject(ReasonWalletGuardrail,
			"committed %.2f + reserve %.2f exceeds wallet balance %.2f",
			committed, a.cfg.MinWalletReserveUSD, actualWalletQuote)
	}
	return approve()
}

// CanBuy checks whether the bot's unencumbered quote covers the trade plus a
// buffered fee.
func (a *Allocator) CanBuy(botID string, plan TradePlan) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.bots[botID]
	if !ok {
		return reject(ReasonInsufficientCapital, "unknown bot %s", botID)
	}
	return a.canBuyLocked(st, plan)
}

func (a *Allocator) canBuyLocked(st *BotCapitalState, plan TradePlan) Decision {
	needed := plan.QuoteAmount + plan.EstimatedFee*a.cfg.FeeBufferMult
	if !numutil.IsFinite(needed) || needed <= 0 {
		return reject(ReasonInsufficientCapital, "invalid buy amount")
	}
	if st.AvailableQuote() < needed {
		return reject(ReasonInsufficientCapital,
			"available %.2f < required %.2f (trade %.2f + buffered fee %.2f)",
			st.AvailableQuote(), needed, plan.QuoteAmount, plan.EstimatedFee*a.cfg.FeeBufferMult)
	}
	return approve()
}

// CanSell checks that sufficient base is unencumbered and that the sale's
// projected net profit clears the configured minimum (the no-loss rule).
// Forced plans skip the profit check but never the solvency check.
func (a *Allocator) CanSell(botID string, plan TradePlan) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.bots[botID]
	if !ok {
		return reject(ReasonInsufficientCapital, "unknown bot %s", botID)
	}
	return a.canSellLocked(st, plan)
}

func (a *Allocator) canSellLocked(st *BotCapitalState, plan TradePlan) Decision {
	if plan.BaseAmount <= 0 || !numutil.IsFinite(plan.BaseAmount) {
		return reject(ReasonInsufficientCapital, "invalid sell quantity")
	}
	if st.AvailableBase() < plan.BaseAmount {
		return reject(ReasonInsufficientCapital,
			"available base %.6f < sell quantity %.6f", st.AvailableBase(), plan.BaseAmount)
	}

	if plan.Forced {
		return approve()
	}

	costBasis := numutil.SafeDiv(st.TotalCost, st.TotalQty)
	proceeds := plan.BaseAmount * plan.Price
	netProfit := proceeds - plan.EstimatedFee*a.cfg.FeeBufferMult - costBasis*plan.BaseAmount
	if !numutil.IsFinite(netProfit) || netProfit < a.cfg.MinProfitUSD {
		return reject(ReasonSellNotProfitable,
			"projected net profit %.4f below minimum %.4f (basis %.6f)",
			netProfit, a.cfg.MinProfitUSD, costBasis)
	}
	return approve()
}

// ReserveCapital encumbers the funds for a trade ahead of execution. The
// wallet guardrail runs inside the same critical section so two bots cannot
// race past the solvency check.
func (a *Allocator) ReserveCapital(botID string, plan TradePlan, actualWalletQuote float64) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.bots[botID]
	if !ok {
		return Decision{}, ErrUnknownBot
	}
	if _, exists := a.reservations[botID]; exists {
		return Decision{}, ErrAlreadyReserved
	}

	if d := a.checkGuardrailLocked(actualWalletQuote); !d.OK {
		return d, nil
	}

	var d Decision
	switch plan.Side {
	case venue.SideBuy:
		d = a.canBuyLocked(st, plan)
	case venue.SideSell:
		d = a.canSellLocked(st, plan)
	default:
		return Decision{}, fmt.Errorf("unknown trade side %q", plan.Side)
	}
	if !d.OK {
		return d, nil
	}

	fee := plan.EstimatedFee * a.cfg.FeeBufferMult
	st.ReservedFees += fee
	if plan.Side == venue.SideBuy {
		st.PendingBuy += plan.QuoteAmount
	} else {
		st.PendingSell += plan.BaseAmount
	}
	a.reservations[botID] = plan

	a.logger.Debug().
		Str("bot", botID).
		Str("side", string(plan.Side)).
		Float64("quote", plan.QuoteAmount).
		Float64("base", plan.BaseAmount).
		Msg("capital reserved")

	return approve(), nil
}

// SettleTransaction releases the bot's reservation and, on success, applies
// the executed amounts to the ledger. On failure the reservation is simply
// released so the next cycle can retry cleanly. Returns the realized PnL
// delta for sells (zero otherwise).
func (a *Allocator) SettleTransaction(botID string, result *venue.SwapResult) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.bots[botID]
	if !ok {
		return 0, ErrUnknownBot
	}
	plan, ok := a.reservations[botID]
	if !ok {
		return 0, ErrNothingReserved
	}
	delete(a.reservations, botID)

	// Release the encumbrance regardless of outcome.
	st.ReservedFees = numutil.NonNeg(st.ReservedFees - plan.EstimatedFee*a.cfg.FeeBufferMult)
	if plan.Side == venue.SideBuy {
		st.PendingBuy = numutil.NonNeg(st.PendingBuy - plan.QuoteAmount)
	} else {
		st.PendingSell = numutil.NonNeg(st.PendingSell - plan.BaseAmount)
	}

	if result == nil || !result.Success {
		a.logger.Debug().Str("bot", botID).Msg("reservation released after failed execution")
		return 0, nil
	}

	var realized float64
	book := pnl.Book{Method: pnl.MethodAverageCost, TotalQty: st.TotalQty, TotalCost: st.TotalCost}

	if plan.Side == venue.SideBuy {
		st.AllocatedQuote = numutil.NonNeg(st.AllocatedQuote - result.InputAmount - result.FeeNativeUSDC)
		st.AllocatedBase += result.OutputAmount
		book = pnl.ApplyBuy(book, result.InputAmount, result.FeeNativeUSDC, result.OutputAmount)
	} else {
		st.AllocatedBase = numutil.NonNeg(st.AllocatedBase - result.InputAmount)
		st.AllocatedQuote += result.OutputAmount - result.FeeNativeUSDC
		book, realized = pnl.ApplySell(book, result.InputAmount, result.OutputAmount, result.FeeNativeUSDC)
		st.RealizedPnL += realized
	}

	st.TotalQty = book.TotalQty
	st.TotalCost = book.TotalCost

	a.logger.Info().
		Str("bot", botID).
		Str("side", string(plan.Side)).
		Float64("executed_price", result.ExecutedPrice).
		Float64("realized", realized).
		Msg("transaction settled")

	return realized, nil
}

// ReleaseReservation drops an unsettled reservation, e.g. when a bot stops
// mid-cycle. Safe to call when nothing is reserved.
func (a *Allocator) ReleaseReservation(botID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.bots[botID]
	if !ok {
		return
	}
	plan, ok := a.reservations[botID]
	if !ok {
		return
	}
	delete(a.reservations, botID)

	st.ReservedFees = numutil.NonNeg(st.ReservedFees - plan.EstimatedFee*a.cfg.FeeBufferMult)
	if plan.Side == venue.SideBuy {
		st.PendingBuy = numutil.NonNeg(st.PendingBuy - plan.QuoteAmount)
	} else {
		st.PendingSell = numutil.NonNeg(st.PendingSell - plan.BaseAmount)
	}
	a.logger.Warn().Str("bot", botID).Msg("reservation released without settlement")
}

// UpdateUnrealized refreshes the bot's unrealized PnL at the given price.
func (a *Allocator) UpdateUnrealized(botID string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.bots[botID]; ok {
		st.UnrealizedPnL = st.TotalQty*price - st.TotalCost
	}
}

// TotalCommitted returns the sum of all bots' allocated, pending and
// reserved quote funds.
func (a *Allocator) TotalCommitted() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total float64
	for _, st := range a.bots {
		total += st.AllocatedQuote + st.PendingBuy + st.ReservedFees
	}
	return total
}
