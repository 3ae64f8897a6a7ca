// Package splitexec executes a trade as one or more sequential chunks against
// a venue adapter. Chunking keeps per-chunk slippage inside budget for large
// orders; between chunks the executor can re-quote and abort the remainder if
// the market moved or the prior chunk slipped badly. Chunks are never
// parallel: each abort decision depends on the previous chunk's outcome.
package splitexec

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dex-dip-bot/internal/numutil"
	"dex-dip-bot/internal/tier"
	"dex-dip-bot/internal/venue"
)

// Abort reasons.
const (
	AbortPriceMove     = "PRICE_MOVE"
	AbortSlippageSpike = "SLIPPAGE_SPIKE"
	AbortFirstChunk    = "FIRST_CHUNK_FAILED"
	AbortCancelled     = "CANCELLED"
)

// Config holds split execution parameters.
type Config struct {
	SlippageBps                int           `json:"slippage_bps"`
	ChunkDelay                 time.Duration `json:"chunk_delay"`
	RequoteEnabled             bool          `json:"requote_enabled"`
	PriceMoveAbortThresholdPct float64       `json:"price_move_abort_threshold_pct"`
	SlippageSpikeAbortBps      float64       `json:"slippage_spike_abort_bps"`
	PriorityFee                float64       `json:"priority_fee"`
}

// DefaultConfig returns split execution defaults.
func DefaultConfig() Config {
	return Config{
		SlippageBps:                50,
		ChunkDelay:                 2 * time.Second,
		RequoteEnabled:             true,
		PriceMoveAbortThresholdPct: 2.0,
		SlippageSpikeAbortBps:      100,
	}
}

// ChunkResult is the outcome of one chunk.
type ChunkResult struct {
	Index         int     `json:"index"`
	ClientOrderID string  `json:"client_order_id"`
	Success       bool    `json:"success"`
	ExecutedBase  float64 `json:"executed_base"`
	ExecutedQuote float64 `json:"executed_quote"`
	Price         float64 `json:"price"`
	Fee           float64 `json:"fee"`
	Error         string  `json:"error,omitempty"`
}

// Result aggregates a split execution.
// Success means at least one chunk filled; FullyExecuted means every planned
// chunk filled with no abort.
type Result struct {
	Success         bool          `json:"success"`
	FullyExecuted   bool          `json:"fully_executed"`
	ChunksPlanned   int           `json:"chunks_planned"`
	ChunksExecuted  int           `json:"chunks_executed"`
	ExecutedBase    float64       `json:"executed_base"`
	ExecutedQuote   float64       `json:"executed_quote"`
	AvgPrice        float64       `json:"avg_price"`
	TotalFees       float64       `json:"total_fees"`
	SlippageCostUSD float64       `json:"slippage_cost_usd"`
	AbortReason     string        `json:"abort_reason,omitempty"`
	Chunks          []ChunkResult `json:"chunks"`
}

// Executor runs chunked trades against one venue adapter.
type Executor struct {
	adapter venue.Adapter
	tierCfg tier.Config
	cfg     Config
	logger  zerolog.Logger
}

// New creates a split executor.
func New(adapter venue.Adapter, tierCfg tier.Config, cfg Config, logger zerolog.Logger) *Executor {
	return &Executor{
		adapter: adapter,
		tierCfg: tierCfg,
		cfg:     cfg,
		logger:  logger.With().Str("component", "SplitExecutor").Logger(),
	}
}

// Execute trades amount (base units when amountIsBase, quote otherwise),
// splitting into chunks when the tier evaluator demands it. orderIDBase seeds
// per-chunk client order ids ("<base>-C1", "-C2", ...).
func (e *Executor) Execute(ctx context.Context, side venue.Side, amount float64, amountIsBase bool, portfolioValueUSD float64, orderIDBase string) (*Result, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("execute amount must be positive, got %v", amount)
	}

	initial, err := e.adapter.GetQuote(ctx, venue.QuoteRequest{
		Side:         side,
		Amount:       amount,
		AmountIsBase: amountIsBase,
		SlippageBps:  e.cfg.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("initial quote failed: %w", err)
	}

	notional := amount
	if amountIsBase {
		notional = amount * initial.Price
	}

	var slipRate float64
	if initial.PriceImpactBps != nil {
		slipRate = numutil.SafeDiv(*initial.PriceImpactBps, notional)
	}

	plan := tier.Evaluate(e.tierCfg, portfolioValueUSD, notional, slipRate)
	res := &Result{ChunksPlanned: plan.ChunkCount}

	e.logger.Info().
		Str("side", string(side)).
		Float64("amount", amount).
		Str("tier", string(plan.Tier)).
		Int("chunks", plan.ChunkCount).
		Msg("execution planned")

	chunkAmount := amount / float64(plan.ChunkCount)
	firstPrice := 0.0
	var prevActualSlipBps *float64

	for i := 0; i < plan.ChunkCount; i++ {
		if i > 0 {
			if aborted := e.waitChunkDelay(ctx); aborted {
				res.AbortReason = AbortCancelled
				break
			}
		}

		quote := initial
		if i > 0 || plan.ChunkCount > 1 {
			quote, err = e.adapter.GetQuote(ctx, venue.QuoteRequest{
				Side:         side,
				Amount:       chunkAmount,
				AmountIsBase: amountIsBase,
				SlippageBps:  e.cfg.SlippageBps,
			})
			if err != nil {
				if i == 0 {
					return nil, fmt.Errorf("chunk quote failed: %w", err)
				}
				e.logger.Warn().Err(err).Int("chunk", i+1).Msg("re-quote failed, continuing")
				continue
			}
		}

		if i == 0 {
			firstPrice = quote.Price
		} else if e.cfg.RequoteEnabled {
			if reason := e.abortCheck(firstPrice, quote.Price, prevActualSlipBps); reason != "" {
				res.AbortReason = reason
				e.logger.Warn().Str("reason", reason).Int("chunk", i+1).Msg("aborting remaining chunks")
				break
			}
		}

		orderID := fmt.Sprintf("%s-C%d", orderIDBase, i+1)
		swap, err := e.adapter.ExecuteSwap(ctx, quote, orderID, e.cfg.PriorityFee)
		chunk := ChunkResult{Index: i, ClientOrderID: orderID}
		if err != nil || swap == nil || !swap.Success {
			if err != nil {
				chunk.Error = err.Error()
			} else if swap != nil {
				chunk.Error = swap.Error
			}
			res.Chunks = append(res.Chunks, chunk)

			// First-chunk failure aborts entirely; later failures are
			// logged and the loop continues.
			if i == 0 {
				res.AbortReason = AbortFirstChunk
				e.logger.Error().Str("error", chunk.Error).Msg("first chunk failed, aborting")
				break
			}
			e.logger.Warn().Str("error", chunk.Error).Int("chunk", i+1).Msg("chunk failed, continuing")
			continue
		}

		chunk.Success = true
		chunk.Price = swap.ExecutedPrice
		chunk.Fee = swap.FeeNativeUSDC
		if side == venue.SideBuy {
			chunk.ExecutedQuote = swap.InputAmount
			chunk.ExecutedBase = swap.OutputAmount
		} else {
			chunk.ExecutedBase = swap.InputAmount
			chunk.ExecutedQuote = swap.OutputAmount
		}
		res.Chunks = append(res.Chunks, chunk)
		res.ChunksExecuted++
		res.ExecutedBase += chunk.ExecutedBase
		res.ExecutedQuote += chunk.ExecutedQuote
		res.TotalFees += chunk.Fee

		prevActualSlipBps = swap.ActualSlippageBps
		if swap.ActualSlippageBps != nil {
			excess := numutil.NonNeg(*swap.ActualSlippageBps - float64(quote.SlippageBps))
			res.SlippageCostUSD += excess / 10000 * chunk.ExecutedQuote
		}
	}

	res.Success = res.ChunksExecuted > 0
	res.FullyExecuted = res.ChunksExecuted == res.ChunksPlanned && res.AbortReason == ""
	if res.ExecutedBase > 0 {
		res.AvgPrice = numutil.SafeDiv(res.ExecutedQuote, res.ExecutedBase)
	}

	e.logger.Info().
		Bool("success", res.Success).
		Bool("fully_executed", res.FullyExecuted).
		Int("executed", res.ChunksExecuted).
		Int("planned", res.ChunksPlanned).
		Str("abort", res.AbortReason).
		Msg("execution finished")

	return res, nil
}

// abortCheck returns a non-empty reason when the remainder should not trade.
func (e *Executor) abortCheck(firstPrice, currentPrice float64, prevActualSlipBps *float64) string {
	move := numutil.PctChange(firstPrice, currentPrice)
	if move < 0 {
		move = -move
	}
	if move > e.cfg.PriceMoveAbortThresholdPct {
		return AbortPriceMove
	}
	if prevActualSlipBps != nil && *prevActualSlipBps-float64(e.cfg.SlippageBps) > e.cfg.SlippageSpikeAbortBps {
		return AbortSlippageSpike
	}
	return ""
}

// waitChunkDelay sleeps between chunks, honoring cancellation.
func (e *Executor) waitChunkDelay(ctx context.Context) bool {
	if e.cfg.ChunkDelay <= 0 {
		return ctx.Err() != nil
	}
	select {
	case <-ctx.Done():
		return true
	case <-time.After(e.cfg.ChunkDelay):
		return false
	}
}
