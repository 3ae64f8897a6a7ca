package pnl

import (
	"math"
	"testing"
)

// TestCostBasisRoundTrip verifies buying then immediately selling everything
// at the same price with zero fees realizes exactly zero PnL.
func TestCostBasisRoundTrip(t *testing.T) {
	for _, method := range []Method{MethodAverageCost, MethodFIFO} {
		b := NewBook(method)

		// Buy 2.5 units at price 40: spend 100 quote.
		b = ApplyBuy(b, 100, 0, 2.5)

		b, realized := ApplySell(b, 2.5, 100, 0)
		if math.Abs(realized) > 1e-9 {
			t.Errorf("%s: round-trip realized = %v, want 0", method, realized)
		}
		if !b.IsFlat() {
			t.Errorf("%s: book should be flat after full sell, qty=%v", method, b.TotalQty)
		}
		if b.TotalCost != 0 {
			t.Errorf("%s: residual cost %v after full close", method, b.TotalCost)
		}
	}
}

func TestAverageCostPartialSell(t *testing.T) {
	b := NewBook(MethodAverageCost)
	b = ApplyBuy(b, 100, 1, 10) // cost basis 10.1
	b = ApplyBuy(b, 220, 2, 20) // total cost 323, qty 30, basis ~10.7667

	basis := b.CostBasis()
	b, realized := ApplySell(b, 15, 180, 1)

	wantRealized := (180 - 1) - basis*15
	if math.Abs(realized-wantRealized) > 1e-9 {
		t.Errorf("realized = %v, want %v", realized, wantRealized)
	}
	if math.Abs(b.TotalQty-15) > 1e-9 {
		t.Errorf("remaining qty = %v, want 15", b.TotalQty)
	}
	// Basis is unchanged by a proportional sell.
	if math.Abs(b.CostBasis()-basis) > 1e-9 {
		t.Errorf("cost basis changed after sell: %v -> %v", basis, b.CostBasis())
	}
}

func TestFIFOConsumesOldestLotsFirst(t *testing.T) {
	b := NewBook(MethodFIFO)
	b = ApplyBuy(b, 100, 0, 10) // lot 1: 10 @ 10
	b = ApplyBuy(b, 240, 0, 12) // lot 2: 12 @ 20

	// Sell 15: consumes all of lot 1 and 5 of lot 2.
	b, realized := ApplySell(b, 15, 15*25, 0)
	wantCost := 10*10.0 + 5*20.0
	wantRealized := 15*25.0 - wantCost
	if math.Abs(realized-wantRealized) > 1e-9 {
		t.Errorf("realized = %v, want %v", realized, wantRealized)
	}
	if len(b.Lots) != 1 || math.Abs(b.Lots[0].Qty-7) > 1e-9 {
		t.Errorf("remaining lots = %+v, want single lot of 7", b.Lots)
	}
}

func TestSellMoreThanHeldIsClamped(t *testing.T) {
	b := NewBook(MethodAverageCost)
	b = ApplyBuy(b, 100, 0, 10)

	b, _ = ApplySell(b, 12, 120, 0)
	if !b.IsFlat() {
		t.Errorf("overselling should close the position, qty=%v", b.TotalQty)
	}
}

func TestUnrealizedAndPortfolioValue(t *testing.T) {
	b := NewBook(MethodAverageCost)
	b = ApplyBuy(b, 100, 0, 10)

	if got := b.Unrealized(12); math.Abs(got-20) > 1e-9 {
		t.Errorf("Unrealized(12) = %v, want 20", got)
	}
	if got := b.PortfolioValue(12, 50); math.Abs(got-170) > 1e-9 {
		t.Errorf("PortfolioValue(12, 50) = %v, want 170", got)
	}
}
