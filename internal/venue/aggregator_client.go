package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AggregatorClient is an Adapter backed by a DEX aggregator HTTP API
// (0x/Jupiter style): quotes come from a price endpoint, swaps are submitted
// through a relayer that owns transaction construction and signing.
type AggregatorClient struct {
	apiKey     string
	baseURL    string
	baseMint   string
	quoteMint  string
	httpClient *http.Client
}

// NewAggregatorClient creates a new aggregator-backed venue adapter.
func NewAggregatorClient(apiKey, baseURL, baseMint, quoteMint string) *AggregatorClient {
	return &AggregatorClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		baseMint:   baseMint,
		quoteMint:  quoteMint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type balancesResponse struct {
	Base         float64 `json:"base"`
	Quote        float64 `json:"quote"`
	NativeForGas float64 `json:"nativeForGas"`
}

type quoteResponse struct {
	InputAmount    float64  `json:"inputAmount"`
	OutputAmount   float64  `json:"outputAmount"`
	Price          float64  `json:"price"`
	PriceImpactBps *float64 `json:"priceImpactBps"`
	ExpiresAtMs    int64    `json:"expiresAt"`
}

type swapRequest struct {
	ClientOrderID string  `json:"clientOrderId"`
	Side          string  `json:"side"`
	InputAmount   float64 `json:"inputAmount"`
	MinOutput     float64 `json:"minOutput"`
	SlippageBps   int     `json:"slippageBps"`
	PriorityFee   float64 `json:"priorityFee,omitempty"`
}

type swapResponse struct {
	Success           bool     `json:"success"`
	ExecutedPrice     float64  `json:"executedPrice"`
	InputAmount       float64  `json:"inputAmount"`
	OutputAmount      float64  `json:"outputAmount"`
	FeeNativeUSDC     float64  `json:"feeNativeUsdc"`
	ActualSlippageBps *float64 `json:"actualSlippageBps"`
	TxRef             string   `json:"txRef"`
	Error             string   `json:"error"`
}

func (c *AggregatorClient) GetBalances(ctx context.Context) (Balances, error) {
	var out balancesResponse
	if err := c.doGet(ctx, "/v1/balances", nil, &out); err != nil {
		return Balances{}, fmt.Errorf("error fetching balances: %w", err)
	}
	return Balances{Base: out.Base, Quote: out.Quote, NativeForGas: out.NativeForGas}, nil
}

func (c *AggregatorClient) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	params := url.Values{}
	if req.Side == SideBuy {
		params.Set("inputMint", c.quoteMint)
		params.Set("outputMint", c.baseMint)
	} else {
		params.Set("inputMint", c.baseMint)
		params.Set("outputMint", c.quoteMint)
	}
	params.Set("amount", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	params.Set("amountIsBase", strconv.FormatBool(req.AmountIsBase))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	for _, s := range req.AllowedSources {
		params.Add("allowedSources", s)
	}
	for _, s := range req.ExcludedSources {
		params.Add("excludedSources", s)
	}

	var out quoteResponse
	if err := c.doGet(ctx, "/v1/quote", params, &out); err != nil {
		return nil, fmt.Errorf("error fetching quote: %w", err)
	}

	return &Quote{
		Side:           req.Side,
		InputAmount:    out.InputAmount,
		OutputAmount:   out.OutputAmount,
		Price:          out.Price,
		PriceImpactBps: out.PriceImpactBps,
		SlippageBps:    req.SlippageBps,
		ExpiresAt:      time.UnixMilli(out.ExpiresAtMs),
	}, nil
}

func (c *AggregatorClient) ExecuteSwap(ctx context.Context, quote *Quote, clientOrderID string, priorityFee float64) (*SwapResult, error) {
	reqBody := swapRequest{
		ClientOrderID: clientOrderID,
		Side:          string(quote.Side),
		InputAmount:   quote.InputAmount,
		MinOutput:     quote.OutputAmount * (1 - float64(quote.SlippageBps)/10000),
		SlippageBps:   quote.SlippageBps,
		PriorityFee:   priorityFee,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error encoding swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error building swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error submitting swap: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading swap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap API error: %s", string(body))
	}

	var out swapResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("error parsing swap response: %w", err)
	}

	return &SwapResult{
		Success:           out.Success,
		ExecutedPrice:     out.ExecutedPrice,
		InputAmount:       out.InputAmount,
		OutputAmount:      out.OutputAmount,
		FeeNativeUSDC:     out.FeeNativeUSDC,
		ActualSlippageBps: out.ActualSlippageBps,
		TxRef:             out.TxRef,
		Error:             out.Error,
	}, nil
}

func (c *AggregatorClient) CheckConnectivity(ctx context.Context) ConnectivityStatus {
	status := ConnectivityStatus{}

	start := time.Now()
	var health struct {
		RPCConnected bool `json:"rpcConnected"`
	}
	if err := c.doGet(ctx, "/v1/health", nil, &health); err != nil {
		status.Errors = append(status.Errors, err.Error())
	} else {
		status.APIConnected = true
		status.RPCConnected = health.RPCConnected
	}
	status.LatencyMs = time.Since(start).Milliseconds()

	return status
}

// doGet performs a GET request against the aggregator API and decodes the
// JSON body into out.
func (c *AggregatorClient) doGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s", string(body))
	}

	return json.Unmarshal(body, out)
}
