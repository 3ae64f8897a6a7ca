// Package venue defines the contract the trading core uses to talk to a
// blockchain trading venue. The core never constructs or signs transactions;
// it only consumes quotes, balances and swap results through the Adapter
// interface. Concrete adapters (HTTP aggregator, mock) live here too.
package venue

import "time"

// Side identifies the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Balances is a snapshot of the wallet at the venue.
type Balances struct {
	Base         float64 `json:"base"`
	Quote        float64 `json:"quote"`
	NativeForGas float64 `json:"native_for_gas"`
}

// QuoteRequest asks the venue for an executable price.
type QuoteRequest struct {
	Side            Side     `json:"side"`
	Amount          float64  `json:"amount"`
	AmountIsBase    bool     `json:"amount_is_base"`
	SlippageBps     int      `json:"slippage_bps"`
	AllowedSources  []string `json:"allowed_sources,omitempty"`
	ExcludedSources []string `json:"excluded_sources,omitempty"`
}

// Quote is an executable price snapshot returned by the venue.
// PriceImpactBps is nil when the venue does not report impact; callers must
// treat that as unknown, not zero.
type Quote struct {
	Side           Side      `json:"side"`
	InputAmount    float64   `json:"input_amount"`
	OutputAmount   float64   `json:"output_amount"`
	Price          float64   `json:"price"`
	PriceImpactBps *float64  `json:"price_impact_bps,omitempty"`
	SlippageBps    int       `json:"slippage_bps"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SwapResult is the adapter-reported outcome of a swap submission.
type SwapResult struct {
	Success           bool     `json:"success"`
	ExecutedPrice     float64  `json:"executed_price"`
	InputAmount       float64  `json:"input_amount"`
	OutputAmount      float64  `json:"output_amount"`
	FeeNativeUSDC     float64  `json:"fee_native_usdc"`
	ActualSlippageBps *float64 `json:"actual_slippage_bps,omitempty"`
	TxRef             string   `json:"tx_ref"`
	Error             string   `json:"error,omitempty"`
}

// ConnectivityStatus reports adapter health ahead of starting bot loops.
type ConnectivityStatus struct {
	RPCConnected bool     `json:"rpc_connected"`
	APIConnected bool     `json:"api_connected"`
	LatencyMs    int64    `json:"latency_ms"`
	Errors       []string `json:"errors,omitempty"`
}
