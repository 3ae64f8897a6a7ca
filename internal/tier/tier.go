// Package tier classifies a bot's portfolio size and decides whether a trade
// must be executed in chunks to keep per-chunk slippage inside budget.
package tier

import (
	"math"

	"dex-dip-bot/internal/numutil"
)

// Tier buckets a portfolio by value in quote terms.
type Tier string

const (
	TierSmall  Tier = "SMALL"
	TierMedium Tier = "MEDIUM"
	TierLarge  Tier = "LARGE"
	TierWhale  Tier = "WHALE"
)

// Config holds tier thresholds and chunking parameters.
type Config struct {
	SmallMaxUSD  float64 `json:"small_max_usd"`
	MediumMaxUSD float64 `json:"medium_max_usd"`
	LargeMaxUSD  float64 `json:"large_max_usd"`

	// Per-tier maximum single-trade fraction of portfolio value (percent).
	SmallMaxTradePct  float64 `json:"small_max_trade_pct"`
	MediumMaxTradePct float64 `json:"medium_max_trade_pct"`
	LargeMaxTradePct  float64 `json:"large_max_trade_pct"`
	WhaleMaxTradePct  float64 `json:"whale_max_trade_pct"`

	// Chunk planning.
	TargetChunkSlippageBps float64 `json:"target_chunk_slippage_bps"`
	MaxChunks              int     `json:"max_chunks"`
	MinChunkUSD            float64 `json:"min_chunk_usd"`
}

// DefaultConfig returns tier defaults tuned for a stable-quoted pair.
func DefaultConfig() Config {
	return Config{
		SmallMaxUSD:            1000,
		MediumMaxUSD:           10000,
		LargeMaxUSD:            100000,
		SmallMaxTradePct:       100,
		MediumMaxTradePct:      50,
		LargeMaxTradePct:       25,
		WhaleMaxTradePct:       10,
		TargetChunkSlippageBps: 30,
		MaxChunks:              8,
		MinChunkUSD:            25,
	}
}

// Result describes the tier classification and the chunk plan for one trade.
type Result struct {
	Tier         Tier    `json:"tier"`
	MaxTradeUSD  float64 `json:"max_trade_usd"`
	ShouldSplit  bool    `json:"should_split"`
	ChunkCount   int     `json:"chunk_count"`
	ChunkSizeUSD float64 `json:"chunk_size_usd"`
}

// Classify returns the tier for a portfolio value.
func Classify(cfg Config, portfolioValueUSD float64) Tier {
	switch {
	case portfolioValueUSD <= cfg.SmallMaxUSD:
		return TierSmall
	case portfolioValueUSD <= cfg.MediumMaxUSD:
		return TierMedium
	case portfolioValueUSD <= cfg.LargeMaxUSD:
		return TierLarge
	default:
		return TierWhale
	}
}

// MaxTradePct returns the tier's maximum single-trade fraction of portfolio.
func MaxTradePct(cfg Config, t Tier) float64 {
	switch t {
	case TierSmall:
		return cfg.SmallMaxTradePct
	case TierMedium:
		return cfg.MediumMaxTradePct
	case TierLarge:
		return cfg.LargeMaxTradePct
	default:
		return cfg.WhaleMaxTradePct
	}
}

// Evaluate classifies the portfolio and plans chunking for a trade of
// tradeUSD. slippageRateBpsPerUSD is the estimated marginal slippage of the
// venue, typically quoted impact divided by the probed notional; pass 0 when
// unknown and the plan falls back to an even split at the tier cap.
func Evaluate(cfg Config, portfolioValueUSD, tradeUSD, slippageRateBpsPerUSD float64) Result {
	t := Classify(cfg, portfolioValueUSD)
	maxTrade := portfolioValueUSD * MaxTradePct(cfg, t) / 100

	res := Result{
		Tier:        t,
		MaxTradeUSD: maxTrade,
	}

	if tradeUSD <= 0 || tradeUSD <= maxTrade {
		res.ChunkCount = 1
		res.ChunkSizeUSD = tradeUSD
		return res
	}

	res.ShouldSplit = true
	res.ChunkCount, res.ChunkSizeUSD = planChunks(cfg, tradeUSD, maxTrade, slippageRateBpsPerUSD)
	return res
}

// planChunks derives the chunk count from the estimated slippage rate,
// targeting TargetChunkSlippageBps per chunk, bounded by MaxChunks and
// MinChunkUSD.
func planChunks(cfg Config, tradeUSD, maxTradeUSD, slippageRateBpsPerUSD float64) (int, float64) {
	chunkSize := maxTradeUSD
	if slippageRateBpsPerUSD > 0 {
		bySlippage := numutil.SafeDiv(cfg.TargetChunkSlippageBps, slippageRateBpsPerUSD)
		if bySlippage > 0 {
			chunkSize = numutil.Min(chunkSize, bySlippage)
		}
	}
	chunkSize = numutil.Max(chunkSize, cfg.MinChunkUSD)

	count := int(math.Ceil(numutil.SafeDivOr(tradeUSD, chunkSize, 1)))
	if count < 1 {
		count = 1
	}
	if cfg.MaxChunks > 0 && count > cfg.MaxChunks {
		count = cfg.MaxChunks
	}

	return count, tradeUSD / float64(count)
}
