// Package bot runs one trading loop per instance. The loop is the only
// goroutine that touches an instance's state; every decision component is a
// pure function it calls in a fixed order, and the capital allocator is the
// single shared structure between loops.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dex-dip-bot/config"
	"dex-dip-bot/internal/analytics"
	"dex-dip-bot/internal/cache"
	"dex-dip-bot/internal/capital"
	"dex-dip-bot/internal/cost"
	"dex-dip-bot/internal/database"
	"dex-dip-bot/internal/events"
	"dex-dip-bot/internal/metrics"
	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/orders"
	"dex-dip-bot/internal/pnl"
	"dex-dip-bot/internal/regime"
	"dex-dip-bot/internal/reserve"
	"dex-dip-bot/internal/runner"
	"dex-dip-bot/internal/scaleout"
	"dex-dip-bot/internal/sizing"
	"dex-dip-bot/internal/splitexec"
	"dex-dip-bot/internal/strategy"
	"dex-dip-bot/internal/tier"
	"dex-dip-bot/internal/venue"
)

// analyticsWindowHours bounds the rolling window feeding the regime
// classifier.
const analyticsWindowHours = 24

// Bot owns one instance's cycle loop and per-instance state.
type Bot struct {
	cfg       config.BotConfig
	adapter   venue.Adapter
	allocator *capital.Allocator
	executor  *splitexec.Executor
	idGen     *orders.Generator
	recorder  *orders.Recorder
	repo      *database.Repository // nil when persistence is disabled
	cache     *cache.Service       // nil when Redis is disabled
	bus       *events.Bus
	logger    zerolog.Logger
	pair      string

	mu         sync.Mutex
	stratState strategy.State
	book       pnl.Book
	extState   scaleout.ExtensionStateData
	runState   runner.StateData
	resState   reserve.State
	window     *analytics.Window
	lastReg    regime.Regime
	paused     bool
	pauseCode  string

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New wires a bot instance and registers its allocation with the allocator.
// The reserve split is applied up front: the reserve share is withheld from
// routine sizing and only deployed through the rescue/chase paths.
func New(
	cfg config.BotConfig,
	adapter venue.Adapter,
	allocator *capital.Allocator,
	executor *splitexec.Executor,
	idGen *orders.Generator,
	recorder *orders.Recorder,
	repo *database.Repository,
	cacheSvc *cache.Service,
	bus *events.Bus,
	logger zerolog.Logger,
) *Bot {
	_, resState := reserve.Split(cfg.Reserve, cfg.AllocatedUSD)
	allocator.RegisterBot(cfg.InstanceID, cfg.AllocatedUSD)

	return &Bot{
		cfg:       cfg,
		adapter:   adapter,
		allocator: allocator,
		executor:  executor,
		idGen:     idGen,
		recorder:  recorder,
		repo:      repo,
		cache:     cacheSvc,
		bus:       bus,
		logger:    logger.With().Str("component", "Bot").Str("instance", cfg.InstanceID).Logger(),
		pair:      cfg.BaseSymbol + "/" + cfg.QuoteSymbol,
		book:      pnl.NewBook(cfg.PnlMethod),
		resState:  resState,
		window:    analytics.NewWindow(analyticsWindowHours),
		lastReg:   regime.RegimeUnknown,
		extState:  scaleout.ExtensionStateData{State: scaleout.StateNone},
		runState:  runner.StateData{State: runner.StateNone},
	}
}

// InstanceID returns the bot's identifier.
func (b *Bot) InstanceID() string { return b.cfg.InstanceID }

// Restore loads persisted state from the repository, if one is configured.
// Pending reservations never survive a restart: the allocator restore clears
// encumbrances, and in-flight attempts are resolved by the trade ledger's
// idempotence rather than by replay.
func (b *Bot) Restore(ctx context.Context) error {
	if b.repo == nil {
		return nil
	}
	id := b.cfg.InstanceID

	if st, found, err := b.repo.LoadStrategyState(ctx, id); err != nil {
		return fmt.Errorf("restore strategy state: %w", err)
	} else if found {
		b.stratState = st
	}

	if st, found, err := b.repo.LoadCapitalState(ctx, id); err != nil {
		return fmt.Errorf("restore capital state: %w", err)
	} else if found {
		b.allocator.RestoreState(id, st)
	}

	if book, found, err := b.repo.LoadPnlBook(ctx, id); err != nil {
		return fmt.Errorf("restore pnl book: %w", err)
	} else if found {
		b.book = book
	}

	if st, found, err := b.repo.LoadExtensionState(ctx, id); err != nil {
		return fmt.Errorf("restore extension state: %w", err)
	} else if found {
		b.extState = st
	}

	if st, found, err := b.repo.LoadRunnerState(ctx, id); err != nil {
		return fmt.Errorf("restore runner state: %w", err)
	} else if found {
		b.runState = st
	}

	if st, found, err := b.repo.LoadReserveState(ctx, id); err != nil {
		return fmt.Errorf("restore reserve state: %w", err)
	} else if found {
		b.resState = st
	}

	since := time.Now().Add(-time.Duration(analyticsWindowHours) * time.Hour)
	hours, err := b.repo.LoadHourlyStats(ctx, id, since)
	if err != nil {
		return fmt.Errorf("restore hourly stats: %w", err)
	}
	for _, h := range hours {
		if h.LastPrice > 0 {
			b.window.RecordPrice(h.LastPrice, time.Unix(h.HourStart, 0))
		}
	}

	b.logger.Info().Int("window_hours", len(hours)).Msg("state restored")
	return nil
}

// Start launches the cycle loop.
func (b *Bot) Start() error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot %s already running", b.cfg.InstanceID)
	}
	b.running = true
	b.stopChan = make(chan struct{})
	b.mu.Unlock()

	b.wg.Add(1)
	go b.runLoop()

	b.bus.Publish(events.Event{
		Type:       events.EventBotStarted,
		InstanceID: b.cfg.InstanceID,
		Data:       map[string]interface{}{"pair": b.pair},
	})
	b.logger.Info().Str("pair", b.pair).Int("interval_sec", b.cfg.CycleIntervalSec).Msg("bot started")
	return nil
}

// Stop halts the loop, waits for an in-flight cycle, and drops any unsettled
// reservation so a restart begins from a clean ledger.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.allocator.ReleaseReservation(b.cfg.InstanceID)

	b.bus.Publish(events.Event{
		Type:       events.EventBotStopped,
		InstanceID: b.cfg.InstanceID,
		Data:       map[string]interface{}{"pair": b.pair},
	})
	b.logger.Info().Msg("bot stopped")
}

// Resume clears a breaker pause. Operator action only; the loop never
// unpauses itself.
func (b *Bot) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paused {
		b.logger.Warn().Str("code", b.pauseCode).Msg("breaker pause cleared by operator")
	}
	b.paused = false
	b.pauseCode = ""
	b.stratState.ConsecutiveFailures = 0
}

func (b *Bot) runLoop() {
	defer b.wg.Done()

	interval := time.Duration(b.cfg.CycleIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-b.stopChan
		cancel()
	}()

	b.runCycle(ctx)
	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

// runCycle executes one full decision pass. All component calls happen with
// the bot mutex held; the only suspension points are venue calls and
// persistence, which use the loop context.
func (b *Bot) runCycle(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	defer func() {
		b.window.RecordCycle(time.Since(start), start)
		metrics.IncCycle(b.cfg.InstanceID)
	}()

	if b.paused {
		b.logger.Debug().Str("code", b.pauseCode).Msg("paused, skipping cycle")
		return
	}

	bal, err := b.adapter.GetBalances(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("balance fetch failed")
		b.window.RecordFailure(start)
		return
	}

	quote, price, err := b.probePrice(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("price probe failed")
		b.window.RecordFailure(start)
		return
	}

	b.window.RecordPrice(price, start)
	b.allocator.UpdateUnrealized(b.cfg.InstanceID, price)
	b.publishGauges(price)
	if b.cache != nil {
		_ = b.cache.SetLastPrice(ctx, b.pair, price)
	}

	snapshot := b.window.Snapshot()
	cls := regime.Classify(b.cfg.Regime, snapshot)
	recentChange := regime.RecentPriceChangePct(snapshot)
	if cls.Regime != b.lastReg {
		b.bus.PublishRegimeChanged(b.cfg.InstanceID, string(b.lastReg), string(cls.Regime), cls.Confidence)
		metrics.SetRegime(b.cfg.InstanceID, string(cls.Regime))
		b.logger.Info().
			Str("from", string(b.lastReg)).
			Str("to", string(cls.Regime)).
			Float64("confidence", cls.Confidence).
			Msg("regime changed")
		b.lastReg = cls.Regime
	}

	// Open legs settle before any new position is considered. Chaos aborts
	// come back Forced and bypass the no-loss rule downstream.
	b.evaluateExtension(ctx, bal, price, cls.Regime)
	b.evaluateRunner(ctx, bal, price, quote)
	b.evaluateChaseExit(ctx, bal, price)

	if cls.Recommendation.ShouldTrade {
		b.evaluateReserveEntries(ctx, bal, price, cls.Regime, recentChange)
		b.evaluateCore(ctx, bal, price, quote, cls.Recommendation)
	} else {
		b.logger.Debug().Str("regime", string(cls.Regime)).Str("reason", cls.Recommendation.Reason).Msg("regime blocks new entries")
	}

	b.persist(ctx)
}

// probePrice fetches a reference quote sized at the configured fixed notional.
// The quote doubles as the impact-cap and cost-gate input for the cycle.
func (b *Bot) probePrice(ctx context.Context) (*venue.Quote, float64, error) {
	notional := b.cfg.Strategy.FixedQuoteUSD
	if notional <= 0 {
		notional = b.cfg.Strategy.MinNotionalUSD
	}
	q, err := b.adapter.GetQuote(ctx, venue.QuoteRequest{
		Side:        venue.SideBuy,
		Amount:      notional,
		SlippageBps: b.cfg.Split.SlippageBps,
	})
	if err != nil {
		return nil, 0, err
	}
	if q.Price <= 0 {
		return nil, 0, fmt.Errorf("venue returned non-positive price %.8f", q.Price)
	}
	return q, q.Price, nil
}

func (b *Bot) evaluateExtension(ctx context.Context, bal venue.Balances, price float64, reg regime.Regime) {
	if b.extState.State == scaleout.StateNone {
		return
	}

	next, dec := scaleout.EvaluateExtension(b.cfg.ScaleOut, b.extState, price, reg)
	switch dec.Action {
	case scaleout.ActionExtensionExit, scaleout.ActionAbortScaleOut:
		if b.executeSell(ctx, bal, dec.SellQty, price, dec.Forced, "extension") {
			b.extState = next
			if next.State == scaleout.StateNone {
				b.bus.PublishLegClosed(b.cfg.InstanceID, "extension", dec.Reason, 0)
				metrics.SetOpenLegs(b.cfg.InstanceID, "extension", 0)
			}
		}
	default:
		b.extState = next
	}
}

func (b *Bot) evaluateRunner(ctx context.Context, bal venue.Balances, price float64, quote *venue.Quote) {
	if b.runState.State != runner.StateActive {
		return
	}

	netEdge := cost.Evaluate(b.cfg.Cost, quote).NetEdgePct
	next, dec := runner.EvaluateExit(b.cfg.Runner, b.runState, price, netEdge)
	switch dec.Action {
	case runner.ActionSellRunner:
		if b.executeSell(ctx, bal, dec.SellQty, price, false, "runner") {
			b.runState = next
			if next.State == runner.StateNone {
				b.bus.PublishLegClosed(b.cfg.InstanceID, "runner", dec.Reason, 0)
				metrics.SetOpenLegs(b.cfg.InstanceID, "runner", 0)
			}
		}
	default:
		b.runState = next
	}
}

func (b *Bot) evaluateChaseExit(ctx context.Context, bal venue.Balances, price float64) {
	if !b.resState.ChaseActive {
		return
	}

	next, dec := reserve.EvaluateChaseExit(b.cfg.Reserve, b.resState, price)
	if dec.Action == reserve.ActionChaseSell {
		if b.executeSell(ctx, bal, dec.SellQty, price, false, "chase") {
			b.resState = next
			b.bus.PublishLegClosed(b.cfg.InstanceID, "chase", dec.Reason, 0)
			metrics.SetOpenLegs(b.cfg.InstanceID, "chase", 0)
		}
		return
	}
	b.resState = next
}

func (b *Bot) evaluateReserveEntries(ctx context.Context, bal venue.Balances, price float64, reg regime.Regime, recentChange float64) {
	if !b.cfg.Reserve.Enabled {
		return
	}

	next, dec := reserve.EvaluateRescue(b.cfg.Reserve, b.resState, price, b.stratState.LastBuyPrice, reg, recentChange)
	if dec.Action == reserve.ActionRescueBuy {
		if b.executeBuy(ctx, bal, dec.QuoteAmount, price, "rescue") {
			b.resState = next
			b.bus.PublishReserveDeployed(b.cfg.InstanceID, dec.Action, dec.QuoteAmount)
		}
	} else {
		b.resState = next
	}

	next, dec = reserve.EvaluateChase(b.cfg.Reserve, b.resState, price, b.stratState.LastSellPrice, reg, recentChange)
	if dec.Action == reserve.ActionChaseBuy {
		if b.executeBuy(ctx, bal, dec.QuoteAmount, price, "chase") {
			b.resState = next
			b.bus.PublishReserveDeployed(b.cfg.InstanceID, dec.Action, dec.QuoteAmount)
			b.bus.PublishLegOpened(b.cfg.InstanceID, "chase", b.resState.ChaseQty, price)
			metrics.SetOpenLegs(b.cfg.InstanceID, "chase", 1)
		}
	} else {
		b.resState = next
	}
}

// evaluateCore runs the buy-dip/sell-rise evaluation with the regime's
// threshold multipliers applied for this cycle only.
func (b *Bot) evaluateCore(ctx context.Context, bal venue.Balances, price float64, quote *venue.Quote, rec regime.Recommendation) {
	sc := b.cfg.Strategy
	sc.BuyDipPct *= rec.BuyDipMult
	sc.SellRisePct *= rec.SellRiseMult
	if rec.CooldownMult > 0 {
		sc.CooldownSec = int(float64(sc.CooldownSec) * rec.CooldownMult)
	}

	next, dec := strategy.Evaluate(sc, b.stratState, bal, price, quote, time.Now())
	b.stratState = next

	switch dec.Action {
	case strategy.ActionPause:
		b.paused = true
		b.pauseCode = dec.Code
		metrics.IncBreakerTrip(b.cfg.InstanceID, dec.Code)
		b.bus.PublishBreakerTripped(b.cfg.InstanceID, dec.Code, dec.Reason)
		b.logger.Warn().Str("code", dec.Code).Str("reason", dec.Reason).Msg("breaker tripped")

	case strategy.ActionBuy:
		// The reserve bucket is never spendable by routine buys, whatever
		// the sizing mode; only rescue/chase deployments may draw on it.
		amt := dec.QuoteAmount
		if st, ok := b.allocator.State(b.cfg.InstanceID); ok {
			avail := numutil.NonNeg(st.AvailableQuote() - b.resState.AvailableReserve)
			if b.cfg.Sizing.Mode != sizing.ModeFixed {
				amt = sizing.TradeSize(b.cfg.Sizing, avail, st.RealizedPnL)
			} else {
				amt = numutil.Min(amt, avail)
			}
		}
		if amt >= b.cfg.Strategy.MinNotionalUSD {
			b.executeBuy(ctx, bal, amt, price, "core")
		}

	case strategy.ActionSell:
		b.runSellPath(ctx, bal, dec.BaseQty, price)

	default:
		b.logger.Debug().Str("reason", dec.Reason).Msg("holding")
	}
}

// runSellPath routes a core SELL through the scale-out decision: full exit,
// or primary exit plus extension, with the runner peeled off a full exit's
// remainder when enabled.
func (b *Bot) runSellPath(ctx context.Context, bal venue.Balances, sellQty, price float64) {
	if b.extState.State != scaleout.StateNone {
		b.logger.Debug().Msg("extension active, deferring new sell")
		return
	}

	// Runner and chase legs hold base in the same wallet but belong to their
	// own exit policies. The core may only sell what neither leg owns.
	legQty := b.runState.Qty + b.resState.ChaseQty
	sellQty = numutil.Min(sellQty, numutil.NonNeg(b.book.TotalQty-legQty))
	if sellQty*price < b.cfg.Strategy.MinNotionalUSD {
		b.logger.Debug().Float64("leg_qty", legQty).Msg("core sellable below minimum after leg exclusion")
		return
	}

	costBasis := b.book.CostBasis()
	portfolioValue := b.book.PortfolioValue(price, bal.Quote)
	portfolioTier := tier.Classify(b.cfg.Tier, portfolioValue)

	sp := scaleout.DecideSellPath(b.cfg.ScaleOut, sellQty, costBasis, price, b.lastReg, portfolioTier)
	switch sp.Action {
	case scaleout.ActionPrimaryExit:
		if b.executeSell(ctx, bal, sp.SellQty, price, false, "primary") && sp.ShouldStartExtension {
			b.extState = scaleout.StartExtension(b.cfg.ScaleOut, sp.RemainderQty, costBasis, price, time.Now())
			b.bus.PublishLegOpened(b.cfg.InstanceID, "extension", sp.RemainderQty, price)
			metrics.SetOpenLegs(b.cfg.InstanceID, "extension", 1)
		}

	default: // FULL_EXIT
		coreQty := sellQty
		var remainder float64
		if b.cfg.Runner.Enabled && b.runState.State != runner.StateActive {
			coreQty = sellQty * b.cfg.Runner.CoreExitPct / 100
			remainder = sellQty - coreQty
		}
		if !b.executeSell(ctx, bal, coreQty, price, false, "core") {
			return
		}
		if remainder > 0 {
			runState, rd := runner.MaybeCreate(b.cfg.Runner, remainder, costBasis, price, time.Now())
			if rd.Action == runner.ActionCreateRunner {
				b.runState = runState
				b.bus.PublishLegOpened(b.cfg.InstanceID, "runner", remainder, price)
				metrics.SetOpenLegs(b.cfg.InstanceID, "runner", 1)
				b.logger.Info().Float64("qty", remainder).Msg(rd.Reason)
			}
		}
	}
}

func (b *Bot) executeBuy(ctx context.Context, bal venue.Balances, quoteAmount, price float64, leg string) bool {
	return b.executeTrade(ctx, bal, venue.SideBuy, quoteAmount, false, price, false, leg)
}

func (b *Bot) executeSell(ctx context.Context, bal venue.Balances, baseQty, price float64, forced bool, leg string) bool {
	return b.executeTrade(ctx, bal, venue.SideSell, baseQty, true, price, forced, leg)
}

// executeTrade runs the full gating and execution pipeline for one trade:
// fresh quote, cost gate, idempotent attempt record, capital reservation,
// split execution, settlement. Forced sells skip the cost gate but still pass
// solvency.
func (b *Bot) executeTrade(ctx context.Context, bal venue.Balances, side venue.Side, amount float64, amountIsBase bool, price float64, forced bool, leg string) bool {
	if amount <= 0 {
		return false
	}
	id := b.cfg.InstanceID

	q, err := b.adapter.GetQuote(ctx, venue.QuoteRequest{
		Side:         side,
		Amount:       amount,
		AmountIsBase: amountIsBase,
		SlippageBps:  b.cfg.Split.SlippageBps,
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("side", string(side)).Msg("quote fetch failed")
		b.stratState = strategy.RecordFailure(b.stratState)
		b.window.RecordFailure(time.Now())
		return false
	}

	notional := amount
	if amountIsBase {
		notional = amount * price
	}

	cr := cost.Evaluate(b.cfg.Cost, q)
	if !forced && !cr.Approved {
		b.rejectTrade(side, cr.Reason, cr.Detail)
		return false
	}

	clientOrderID := b.idGen.Generate(ctx, side)
	attempt := orders.Attempt{
		ClientOrderID: clientOrderID,
		InstanceID:    id,
		Side:          side,
		QuoteAmount:   notional,
		Price:         price,
	}
	if amountIsBase {
		attempt.BaseQty = amount
	}
	if !b.recorder.Record(attempt) {
		b.logger.Warn().Str("client_order_id", clientOrderID).Msg("duplicate attempt suppressed")
		return false
	}
	if b.repo != nil {
		if fresh, err := b.repo.RecordTradeAttempt(ctx, attempt); err != nil {
			b.logger.Warn().Err(err).Msg("trade attempt persistence failed")
		} else if !fresh {
			b.logger.Warn().Str("client_order_id", clientOrderID).Msg("attempt already in ledger, skipping")
			return false
		}
	}

	plan := capital.TradePlan{
		Side:          side,
		QuoteAmount:   notional,
		EstimatedFee:  notional * cr.TotalCostPct / 100,
		Price:         price,
		ClientOrderID: clientOrderID,
		Forced:        forced,
	}
	if amountIsBase {
		plan.BaseAmount = amount
	}

	d, err := b.allocator.ReserveCapital(id, plan, bal.Quote)
	if err != nil {
		b.logger.Error().Err(err).Msg("capital reservation error")
		b.resolveAttempt(ctx, clientOrderID, orders.StatusFailed, "", err.Error())
		return false
	}
	if !d.OK {
		b.rejectTrade(side, d.Reason, d.Detail)
		b.resolveAttempt(ctx, clientOrderID, orders.StatusRejected, "", d.Reason)
		// A failed wallet guardrail means the real wallet no longer covers
		// the fleet's commitments. That is operator territory, not a
		// next-cycle retry.
		if d.Reason == capital.ReasonWalletGuardrail {
			b.paused = true
			b.pauseCode = d.Reason
			metrics.IncBreakerTrip(id, d.Reason)
			b.bus.PublishBreakerTripped(id, d.Reason, d.Detail)
			b.logger.Error().Str("detail", d.Detail).Msg("wallet guardrail failed, pausing")
		}
		return false
	}

	portfolioValue := b.book.PortfolioValue(price, bal.Quote)
	res, err := b.executor.Execute(ctx, side, amount, amountIsBase, portfolioValue, clientOrderID)
	if err != nil || !res.Success {
		b.allocator.ReleaseReservation(id)
		reason := "no chunk executed"
		if err != nil {
			reason = err.Error()
		} else if res.AbortReason != "" {
			reason = res.AbortReason
		}
		b.stratState = strategy.RecordFailure(b.stratState)
		b.window.RecordFailure(time.Now())
		b.resolveAttempt(ctx, clientOrderID, orders.StatusFailed, "", reason)
		b.bus.Publish(events.Event{
			Type:       events.EventTradeFailed,
			InstanceID: id,
			Data:       map[string]interface{}{"side": string(side), "reason": reason},
		})
		b.logger.Warn().Str("side", string(side)).Str("reason", reason).Msg("execution failed")
		return false
	}

	swap := aggregateSwapResult(side, res)
	realized, err := b.allocator.SettleTransaction(id, swap)
	if err != nil {
		b.logger.Error().Err(err).Msg("settlement error")
		return false
	}

	if side == venue.SideBuy {
		b.book = pnl.ApplyBuy(b.book, res.ExecutedQuote, res.TotalFees, res.ExecutedBase)
	} else {
		b.book, _ = pnl.ApplySell(b.book, res.ExecutedBase, res.ExecutedQuote, res.TotalFees)
	}
	b.stratState = strategy.RecordFill(b.stratState, side, res.AvgPrice, realized, time.Now())
	if res.SlippageCostUSD > 0 && res.ExecutedQuote > 0 {
		b.window.RecordSlippage(res.SlippageCostUSD/res.ExecutedQuote*10000, time.Now())
	}

	txRef := ""
	for _, c := range res.Chunks {
		if c.Success {
			txRef = c.ClientOrderID
		}
	}
	b.resolveAttempt(ctx, clientOrderID, orders.StatusFilled, txRef, "")

	metrics.IncTrade(id, string(side))
	if st, ok := b.allocator.State(id); ok {
		metrics.SetRealizedPnl(id, st.RealizedPnL)
	}
	b.bus.PublishTradeExecuted(id, string(side), clientOrderID, res.AvgPrice, res.ExecutedQuote, realized)
	b.logger.Info().
		Str("side", string(side)).
		Str("leg", leg).
		Float64("avg_price", res.AvgPrice).
		Float64("executed_quote", res.ExecutedQuote).
		Float64("realized", realized).
		Bool("fully_executed", res.FullyExecuted).
		Msg("trade executed")
	return true
}

// aggregateSwapResult collapses a split execution into the single swap shape
// the allocator settles: executed amounts only, partial fills included.
func aggregateSwapResult(side venue.Side, res *splitexec.Result) *venue.SwapResult {
	swap := &venue.SwapResult{
		Success:       res.Success,
		ExecutedPrice: res.AvgPrice,
		FeeNativeUSDC: res.TotalFees,
	}
	if side == venue.SideBuy {
		swap.InputAmount = res.ExecutedQuote
		swap.OutputAmount = res.ExecutedBase
	} else {
		swap.InputAmount = res.ExecutedBase
		swap.OutputAmount = res.ExecutedQuote
	}
	return swap
}

func (b *Bot) rejectTrade(side venue.Side, code, detail string) {
	metrics.IncRejection(b.cfg.InstanceID, code)
	b.bus.PublishTradeRejected(b.cfg.InstanceID, string(side), code, detail)
	b.window.RecordRejection(time.Now())
	b.logger.Info().Str("side", string(side)).Str("code", code).Str("detail", detail).Msg("trade rejected")
}

func (b *Bot) resolveAttempt(ctx context.Context, clientOrderID string, status orders.AttemptStatus, txRef, reason string) {
	b.recorder.Resolve(clientOrderID, status, txRef, reason)
	if b.repo != nil {
		if err := b.repo.ResolveTradeAttempt(ctx, clientOrderID, status, txRef, reason); err != nil {
			b.logger.Warn().Err(err).Msg("attempt resolution persistence failed")
		}
	}
}

func (b *Bot) publishGauges(price float64) {
	id := b.cfg.InstanceID
	if st, ok := b.allocator.State(id); ok {
		metrics.SetRealizedPnl(id, st.RealizedPnL)
		metrics.SetUnrealizedPnl(id, st.UnrealizedPnL)
	}
	metrics.SetWalletCommitted(b.allocator.TotalCommitted())
}

// persist saves every component snapshot plus the newest hourly aggregate.
// Persistence failures are logged, never fatal: the in-memory state remains
// authoritative for the running process.
func (b *Bot) persist(ctx context.Context) {
	id := b.cfg.InstanceID

	if b.repo != nil {
		if err := b.repo.SaveStrategyState(ctx, id, b.stratState); err != nil {
			b.logger.Warn().Err(err).Msg("strategy state persistence failed")
		}
		if st, ok := b.allocator.State(id); ok {
			if err := b.repo.SaveCapitalState(ctx, id, st); err != nil {
				b.logger.Warn().Err(err).Msg("capital state persistence failed")
			}
		}
		if err := b.repo.SavePnlBook(ctx, id, b.book); err != nil {
			b.logger.Warn().Err(err).Msg("pnl book persistence failed")
		}
		if err := b.repo.SaveExtensionState(ctx, id, b.extState); err != nil {
			b.logger.Warn().Err(err).Msg("extension state persistence failed")
		}
		if err := b.repo.SaveRunnerState(ctx, id, b.runState); err != nil {
			b.logger.Warn().Err(err).Msg("runner state persistence failed")
		}
		if err := b.repo.SaveReserveState(ctx, id, b.resState); err != nil {
			b.logger.Warn().Err(err).Msg("reserve state persistence failed")
		}
		if hours := b.window.Snapshot(); len(hours) > 0 {
			if err := b.repo.SaveHourlyStats(ctx, id, hours[len(hours)-1]); err != nil {
				b.logger.Warn().Err(err).Msg("hourly stats persistence failed")
			}
		}
	}

	if b.cache != nil {
		_ = b.cache.SetStateSnapshot(ctx, id, map[string]interface{}{
			"strategy":  b.stratState,
			"extension": b.extState,
			"runner":    b.runState,
			"reserve":   b.resState,
			"paused":    b.paused,
		})
	}
}
