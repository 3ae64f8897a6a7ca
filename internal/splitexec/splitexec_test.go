package splitexec

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"dex-dip-bot/internal/tier"
	"dex-dip-bot/internal/venue"
)

func testExecutor(adapter venue.Adapter, tierCfg tier.Config, cfg Config) *Executor {
	return New(adapter, tierCfg, cfg, zerolog.Nop())
}

// splitTierConfig forces a 1000 USD trade on a 1000 USD portfolio into two
// 500 USD chunks.
func splitTierConfig() tier.Config {
	cfg := tier.DefaultConfig()
	cfg.SmallMaxTradePct = 50
	return cfg
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkDelay = 0
	return cfg
}

func TestSingleShotBelowTierCap(t *testing.T) {
	mock := venue.NewMockAdapter(100)
	mock.SetFee(0.5)

	ex := testExecutor(mock, tier.DefaultConfig(), fastConfig())
	res, err := ex.Execute(context.Background(), venue.SideBuy, 500, false, 1000, "B1-BUY-1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.ChunksPlanned != 1 || res.ChunksExecuted != 1 {
		t.Fatalf("chunks = %d/%d, want 1/1", res.ChunksExecuted, res.ChunksPlanned)
	}
	if !res.Success || !res.FullyExecuted {
		t.Errorf("result flags: %+v", res)
	}
	if mock.SwapCount() != 1 {
		t.Errorf("swap count = %d, want 1", mock.SwapCount())
	}
	if math.Abs(res.ExecutedQuote-500) > 1e-9 || math.Abs(res.ExecutedBase-5) > 1e-9 {
		t.Errorf("executed = %v quote / %v base", res.ExecutedQuote, res.ExecutedBase)
	}
}

func TestSplitAggregation(t *testing.T) {
	mock := venue.NewMockAdapter(100)
	mock.SetFee(0.5)

	ex := testExecutor(mock, splitTierConfig(), fastConfig())
	res, err := ex.Execute(context.Background(), venue.SideBuy, 1000, false, 1000, "B1-BUY-2")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.ChunksPlanned != 2 || res.ChunksExecuted != 2 {
		t.Fatalf("chunks = %d/%d, want 2/2", res.ChunksExecuted, res.ChunksPlanned)
	}
	if !res.FullyExecuted {
		t.Error("both chunks filled but FullyExecuted is false")
	}
	if math.Abs(res.ExecutedQuote-1000) > 1e-9 || math.Abs(res.ExecutedBase-10) > 1e-9 {
		t.Errorf("executed = %v quote / %v base", res.ExecutedQuote, res.ExecutedBase)
	}
	if math.Abs(res.AvgPrice-100) > 1e-9 {
		t.Errorf("avg price = %v, want 100", res.AvgPrice)
	}
	if math.Abs(res.TotalFees-1.0) > 1e-9 {
		t.Errorf("total fees = %v, want 1.0", res.TotalFees)
	}

	// Distinct client order ids per chunk.
	if res.Chunks[0].ClientOrderID == res.Chunks[1].ClientOrderID {
		t.Error("chunk order ids are not unique")
	}
}

// A 3% move between chunks against a 2% abort threshold stops the remainder.
func TestAbortOnPriceMove(t *testing.T) {
	mock := venue.NewMockAdapter(100)
	// Quote calls: initial probe, chunk 1, chunk 2 re-quote.
	mock.SetPriceSchedule(100, 100, 103)

	cfg := fastConfig()
	cfg.PriceMoveAbortThresholdPct = 2.0

	ex := testExecutor(mock, splitTierConfig(), cfg)
	res, err := ex.Execute(context.Background(), venue.SideBuy, 1000, false, 1000, "B1-BUY-3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.ChunksExecuted != 1 {
		t.Fatalf("chunks executed = %d, want 1", res.ChunksExecuted)
	}
	if res.FullyExecuted {
		t.Error("aborted execution reported as fully executed")
	}
	if !res.Success {
		t.Error("first chunk filled, Success should be true")
	}
	if res.AbortReason != AbortPriceMove {
		t.Errorf("abort reason = %q, want %q", res.AbortReason, AbortPriceMove)
	}
}

func TestAbortOnSlippageSpike(t *testing.T) {
	mock := venue.NewMockAdapter(100)
	mock.SetExecutionSlippageBps(200)

	cfg := fastConfig()
	cfg.SlippageBps = 50
	cfg.SlippageSpikeAbortBps = 100

	ex := testExecutor(mock, splitTierConfig(), cfg)
	res, err := ex.Execute(context.Background(), venue.SideBuy, 1000, false, 1000, "B1-BUY-4")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.ChunksExecuted != 1 || res.AbortReason != AbortSlippageSpike {
		t.Fatalf("want slippage-spike abort after one chunk, got %+v", res)
	}
	// 150bps excess over the quoted 50 on a 500 USD chunk.
	if math.Abs(res.SlippageCostUSD-7.5) > 1e-9 {
		t.Errorf("slippage cost = %v, want 7.5", res.SlippageCostUSD)
	}
}

func TestFirstChunkFailureAbortsAll(t *testing.T) {
	mock := venue.NewMockAdapter(100)
	mock.FailNextSwaps(1, "insufficient liquidity")

	ex := testExecutor(mock, splitTierConfig(), fastConfig())
	res, err := ex.Execute(context.Background(), venue.SideBuy, 1000, false, 1000, "B1-BUY-5")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.Success || res.ChunksExecuted != 0 {
		t.Errorf("first-chunk failure should abort everything: %+v", res)
	}
	if res.AbortReason != AbortFirstChunk {
		t.Errorf("abort reason = %q, want %q", res.AbortReason, AbortFirstChunk)
	}
	if mock.SwapCount() != 0 {
		t.Errorf("swap count = %d, want 0", mock.SwapCount())
	}
}

func TestCancelledContextStopsRemainder(t *testing.T) {
	mock := venue.NewMockAdapter(100)

	cfg := fastConfig()
	ex := testExecutor(mock, splitTierConfig(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ex.Execute(ctx, venue.SideBuy, 1000, false, 1000, "B1-BUY-6"); err == nil {
		t.Error("cancelled context should fail the initial quote")
	}
}
