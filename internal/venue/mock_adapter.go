package venue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter provides simulated venue behavior for development and tests.
// Price, impact and failure behavior are all configurable, and executed
// client order ids are recorded so duplicate submissions can be detected.
type MockAdapter struct {
	mu sync.Mutex

	price          float64
	priceImpactBps *float64
	slippageBps    float64 // applied to executed price vs quoted price
	feePerSwap     float64

	balances Balances

	failNextSwaps int    // fail this many upcoming swaps
	failError     string // error string for failed swaps

	quoteCount int
	swapCount  int

	// priceSchedule, when non-empty, overrides price per quote call in order.
	priceSchedule []float64

	executedIDs map[string]*SwapResult
}

// NewMockAdapter creates a mock venue with a flat price and healthy balances.
func NewMockAdapter(price float64) *MockAdapter {
	return &MockAdapter{
		price: price,
		balances: Balances{
			Base:         0,
			Quote:        10000,
			NativeForGas: 1.0,
		},
		executedIDs: make(map[string]*SwapResult),
	}
}

// SetPrice sets the current mock price.
func (m *MockAdapter) SetPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = p
}

// SetPriceSchedule makes successive GetQuote calls walk the given prices.
// After the schedule is exhausted the last price sticks.
func (m *MockAdapter) SetPriceSchedule(prices ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceSchedule = prices
}

// SetPriceImpactBps sets the reported price impact. Pass a negative value to
// report no impact (nil in the quote).
func (m *MockAdapter) SetPriceImpactBps(bps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bps < 0 {
		m.priceImpactBps = nil
		return
	}
	v := bps
	m.priceImpactBps = &v
}

// SetExecutionSlippageBps sets the slippage applied to executed swaps.
func (m *MockAdapter) SetExecutionSlippageBps(bps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippageBps = bps
}

// SetFee sets the per-swap fee in quote terms.
func (m *MockAdapter) SetFee(fee float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feePerSwap = fee
}

// SetBalances overrides the reported wallet balances.
func (m *MockAdapter) SetBalances(b Balances) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = b
}

// FailNextSwaps makes the next n ExecuteSwap calls fail with the given error.
func (m *MockAdapter) FailNextSwaps(n int, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextSwaps = n
	m.failError = errMsg
}

// SwapCount returns how many swaps were actually executed (not deduplicated).
func (m *MockAdapter) SwapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapCount
}

func (m *MockAdapter) GetBalances(ctx context.Context) (Balances, error) {
	if err := ctx.Err(); err != nil {
		return Balances{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances, nil
}

func (m *MockAdapter) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("quote amount must be positive, got %v", req.Amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.priceSchedule) > 0 {
		idx := m.quoteCount
		if idx >= len(m.priceSchedule) {
			idx = len(m.priceSchedule) - 1
		}
		m.price = m.priceSchedule[idx]
	}
	m.quoteCount++

	var input, output float64
	if req.Side == SideBuy {
		// spending quote, receiving base
		if req.AmountIsBase {
			input = req.Amount * m.price
			output = req.Amount
		} else {
			input = req.Amount
			output = req.Amount / m.price
		}
	} else {
		// spending base, receiving quote
		if req.AmountIsBase {
			input = req.Amount
			output = req.Amount * m.price
		} else {
			input = req.Amount / m.price
			output = req.Amount
		}
	}

	var impact *float64
	if m.priceImpactBps != nil {
		v := *m.priceImpactBps
		impact = &v
	}

	return &Quote{
		Side:           req.Side,
		InputAmount:    input,
		OutputAmount:   output,
		Price:          m.price,
		PriceImpactBps: impact,
		SlippageBps:    req.SlippageBps,
		ExpiresAt:      time.Now().Add(30 * time.Second),
	}, nil
}

func (m *MockAdapter) ExecuteSwap(ctx context.Context, quote *Quote, clientOrderID string, priorityFee float64) (*SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Duplicate submission with the same id is a no-op returning the
	// original result.
	if prev, ok := m.executedIDs[clientOrderID]; ok {
		return prev, nil
	}

	if m.failNextSwaps > 0 {
		m.failNextSwaps--
		res := &SwapResult{
			Success: false,
			Error:   m.failError,
		}
		m.executedIDs[clientOrderID] = res
		return res, nil
	}

	slip := m.slippageBps / 10000
	executedPrice := quote.Price
	output := quote.OutputAmount
	if quote.Side == SideBuy {
		executedPrice = quote.Price * (1 + slip)
		output = quote.InputAmount / executedPrice
	} else {
		executedPrice = quote.Price * (1 - slip)
		output = quote.InputAmount * executedPrice
	}

	actual := m.slippageBps
	res := &SwapResult{
		Success:           true,
		ExecutedPrice:     executedPrice,
		InputAmount:       quote.InputAmount,
		OutputAmount:      output,
		FeeNativeUSDC:     m.feePerSwap,
		ActualSlippageBps: &actual,
		TxRef:             fmt.Sprintf("mocktx-%d", m.swapCount+1),
	}

	m.swapCount++
	m.executedIDs[clientOrderID] = res

	// Apply balance deltas so solvency checks see the trade.
	if quote.Side == SideBuy {
		m.balances.Quote -= quote.InputAmount
		m.balances.Base += output
	} else {
		m.balances.Base -= quote.InputAmount
		m.balances.Quote += output
	}

	return res, nil
}

func (m *MockAdapter) CheckConnectivity(ctx context.Context) ConnectivityStatus {
	return ConnectivityStatus{
		RPCConnected: true,
		APIConnected: true,
		LatencyMs:    1,
	}
}
