package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// JupiterClient is a minimal HTTP SwapRouter adapter against the
// Jupiter aggregator's quote/swap REST endpoints, grounded on the
// teacher's internal/hl/rest.Client (same bounded http.Client,
// context-scoped request, status-range check, truncated error body
// pattern). It is intentionally thin: the spec treats the DEX
// aggregator transport as deliberately out of scope, so this exists
// only to make the CLI runnable end-to-end, not as a complete
// Jupiter API binding.
type JupiterClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewJupiterClient(baseURL string, timeout time.Duration, log *zap.Logger) *JupiterClient {
	return &JupiterClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type jupiterQuoteResponse struct {
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

func (c *JupiterClient) Quote(ctx context.Context, inputMint, outputMint string, amountIn uint64, slippageBps int) (Quote, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, inputMint, outputMint, amountIn, slippageBps)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}
	var resp jupiterQuoteResponse
	raw, err := c.doJSON(httpReq, &resp)
	if err != nil {
		return Quote{}, err
	}
	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("parse outAmount: %w", err)
	}
	impactBps := priceImpactPctToBps(resp.PriceImpactPct)
	return Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		AmountIn:       amountIn,
		OutAmount:      outAmount,
		PriceImpactBps: impactBps,
		Route:          "jupiter",
		Raw:            raw,
	}, nil
}

type jupiterSwapRequest struct {
	QuoteResponse             any    `json:"quoteResponse"`
	UserPublicKey             string `json:"userPublicKey"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports,omitempty"`
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

func (c *JupiterClient) BuildSwap(ctx context.Context, quote Quote, userPubkey string, priorityFeeMicroLamports uint64) (UnsignedTx, error) {
	payload, err := json.Marshal(jupiterSwapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             userPubkey,
		PrioritizationFeeLamports: priorityFeeMicroLamports,
	})
	if err != nil {
		return UnsignedTx{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return UnsignedTx{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	var resp jupiterSwapResponse
	if _, err := c.doJSON(httpReq, &resp); err != nil {
		return UnsignedTx{}, err
	}
	return UnsignedTx{
		Payload:              []byte(resp.SwapTransaction),
		LastValidBlockHeight: resp.LastValidBlockHeight,
	}, nil
}

func (c *JupiterClient) doJSON(httpReq *http.Request, out any) (any, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("jupiter http %d: %s", resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, err
	}
	var raw any
	_ = json.Unmarshal(body, &raw)
	return raw, nil
}

// priceImpactPctToBps converts Jupiter's decimal-percent string
// ("0.42" meaning 0.42%) into whole basis points, tolerating a
// malformed field by treating it as zero impact rather than failing
// the whole quote.
func priceImpactPctToBps(pct string) int {
	var f float64
	if _, err := fmt.Sscanf(pct, "%f", &f); err != nil {
		return 0
	}
	return int(f * 100)
}
