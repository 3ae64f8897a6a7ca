package venue

import "context"

// Adapter is the narrow contract between the trading core and a venue.
// Implementations own all wire-level concerns: RPC endpoints, transaction
// construction, signing and retry policy. The core treats every call as a
// suspension point and passes a context that is cancelled on bot stop.
type Adapter interface {
	// GetBalances returns the wallet balances at the venue.
	GetBalances(ctx context.Context) (Balances, error)

	// GetQuote fetches an executable quote for the given request.
	GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error)

	// ExecuteSwap submits a swap for a previously fetched quote.
	// clientOrderID identifies the attempt; submitting the same id twice
	// must not produce a second fill.
	ExecuteSwap(ctx context.Context, quote *Quote, clientOrderID string, priorityFee float64) (*SwapResult, error)

	// CheckConnectivity probes RPC and API health.
	CheckConnectivity(ctx context.Context) ConnectivityStatus
}
