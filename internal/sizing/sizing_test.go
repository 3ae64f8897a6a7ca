package sizing

import (
	"math"
	"testing"
)

func TestFixedModeCappedByBalance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedSizeUSD = 100

	if got := TradeSize(cfg, 500, 0); got != 100 {
		t.Errorf("TradeSize = %v, want 100", got)
	}
	if got := TradeSize(cfg, 60, 0); got != 60 {
		t.Errorf("TradeSize capped = %v, want 60", got)
	}
}

func TestFullBalanceMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeFullBalance

	if got := TradeSize(cfg, 432.5, 0); got != 432.5 {
		t.Errorf("TradeSize = %v, want 432.5", got)
	}
}

func TestCalculatedModeCompoundsGains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeCalculated
	cfg.InitialSizeUSD = 100
	cfg.ReservePct = 20

	// 100 + max(0, 50) * 0.8 = 140
	if got := TradeSize(cfg, 1000, 50); math.Abs(got-140) > 1e-9 {
		t.Errorf("TradeSize = %v, want 140", got)
	}

	// Losses never shrink the size below initial.
	if got := TradeSize(cfg, 1000, -30); got != 100 {
		t.Errorf("TradeSize with losses = %v, want 100", got)
	}

	// Capped by available balance.
	if got := TradeSize(cfg, 120, 100); got != 120 {
		t.Errorf("TradeSize capped = %v, want 120", got)
	}
}

func TestBelowMinimumNotionalIsZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinNotionalUSD = 10

	if got := TradeSize(cfg, 5, 0); got != 0 {
		t.Errorf("TradeSize below minimum = %v, want 0", got)
	}
}
