// Package pnl implements position cost accounting for the trading core.
// The default method is average cost; FIFO lot accounting is available behind
// the same Book contract, selected per bot by config. All functions treat the
// Book as a value: callers own persistence and pass the current book in.
package pnl

import (
	"dex-dip-bot/internal/numutil"
)

// Method selects the accounting method for realized PnL.
type Method string

const (
	MethodAverageCost Method = "AVERAGE_COST"
	MethodFIFO        Method = "FIFO"
)

// Lot is a single buy parcel tracked under FIFO accounting.
type Lot struct {
	Qty         float64 `json:"qty"`
	CostPerUnit float64 `json:"cost_per_unit"`
}

// Book tracks the running position of one bot instance.
// TotalQty and TotalCost are authoritative for average-cost math; Lots is
// only populated under FIFO.
type Book struct {
	Method    Method  `json:"method"`
	TotalQty  float64 `json:"total_qty"`
	TotalCost float64 `json:"total_cost"`
	Lots      []Lot   `json:"lots,omitempty"`
}

// NewBook creates an empty book for the given method.
func NewBook(method Method) Book {
	if method != MethodFIFO {
		method = MethodAverageCost
	}
	return Book{Method: method}
}

// CostBasis returns the average cost per unit of the current position.
func (b Book) CostBasis() float64 {
	return numutil.SafeDiv(b.TotalCost, b.TotalQty)
}

// Unrealized returns the unrealized PnL at the given price.
func (b Book) Unrealized(price float64) float64 {
	return b.TotalQty*price - b.TotalCost
}

// PortfolioValue returns the total portfolio value in quote terms.
func (b Book) PortfolioValue(price, quoteBalance float64) float64 {
	return b.TotalQty*price + quoteBalance
}

// IsFlat reports whether the position is fully closed.
func (b Book) IsFlat() bool {
	return b.TotalQty <= 0
}

// ApplyBuy records a fill that spent quoteSpent (plus fee) and received
// baseReceived, returning the updated book.
func ApplyBuy(b Book, quoteSpent, fee, baseReceived float64) Book {
	if baseReceived <= 0 {
		return b
	}

	cost := quoteSpent + fee
	b.TotalQty += baseReceived
	b.TotalCost += cost

	if b.Method == MethodFIFO {
		b.Lots = append(b.Lots, Lot{
			Qty:         baseReceived,
			CostPerUnit: numutil.SafeDiv(cost, baseReceived),
		})
	}
	return b
}

// ApplySell records a fill that sold soldQty for proceeds (before fee) and
// returns the updated book plus the realized PnL of the sold portion.
// The position shrinks proportionally and is floored at zero to absorb
// rounding dust.
func ApplySell(b Book, soldQty, proceeds, fee float64) (Book, float64) {
	if soldQty <= 0 || b.TotalQty <= 0 {
		return b, 0
	}
	if soldQty > b.TotalQty {
		soldQty = b.TotalQty
	}

	var costOfSold float64
	switch b.Method {
	case MethodFIFO:
		b, costOfSold = consumeLots(b, soldQty)
	default:
		costOfSold = b.CostBasis() * soldQty
		b.TotalCost = numutil.NonNeg(b.TotalCost - costOfSold)
		b.TotalQty = numutil.NonNeg(b.TotalQty - soldQty)
	}

	realized := (proceeds - fee) - costOfSold

	// A fully closed position carries no residual cost.
	if b.TotalQty == 0 {
		b.TotalCost = 0
		b.Lots = nil
	}

	return b, realized
}

// consumeLots removes soldQty from the front of the lot queue and returns the
// cost attributed to the consumed quantity.
func consumeLots(b Book, soldQty float64) (Book, float64) {
	remaining := soldQty
	var costOfSold float64

	for remaining > 0 && len(b.Lots) > 0 {
		lot := b.Lots[0]
		if lot.Qty <= remaining {
			costOfSold += lot.Qty * lot.CostPerUnit
			remaining -= lot.Qty
			b.Lots = b.Lots[1:]
		} else {
			costOfSold += remaining * lot.CostPerUnit
			b.Lots[0].Qty = lot.Qty - remaining
			remaining = 0
		}
	}

	b.TotalQty = numutil.NonNeg(b.TotalQty - soldQty)
	b.TotalCost = numutil.NonNeg(b.TotalCost - costOfSold)
	return b, costOfSold
}
