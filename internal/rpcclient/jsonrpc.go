package rpcclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// JSONRPCClient is a minimal Solana JSON-RPC adapter implementing
// RPC, grounded on the teacher's internal/hl/rest.Client request
// shape (context-scoped http.Client, status-range check, truncated
// error body). It covers only the three methods the execution
// pipeline needs (sendTransaction, getSignatureStatuses,
// getRecentPrioritizationFees); a full JSON-RPC binding is out of
// scope per the spec's external-interface boundary.
type JSONRPCClient struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

func NewJSONRPCClient(endpoint string, timeout time.Duration, log *zap.Logger) *JSONRPCClient {
	return &JSONRPCClient{endpoint: endpoint, http: &http.Client{Timeout: timeout}, log: log}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("rpc http %d: %s", resp.StatusCode, string(body))
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// Submit base64-encodes and sends a signed transaction via
// sendTransaction.
func (c *JSONRPCClient) Submit(ctx context.Context, signedTx []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(signedTx)
	var signature string
	params := []any{encoded, map[string]any{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

type signatureStatus struct {
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}

// Confirm polls getSignatureStatuses until the status settles,
// reaches deadline, or ctx is cancelled.
func (c *JSONRPCClient) Confirm(ctx context.Context, signature string, deadline time.Time) (ConfirmOutcome, error) {
	for {
		var result signatureStatusesResult
		params := []any{[]string{signature}, map[string]any{"searchTransactionHistory": true}}
		if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
			return ConfirmUnknown, err
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return Failed, nil
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return Confirmed, nil
			}
		}
		if time.Now().After(deadline) {
			return ConfirmTimeout, nil
		}
		select {
		case <-ctx.Done():
			return ConfirmUnknown, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type prioritizationFee struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

// RecentPriorityFees calls getRecentPrioritizationFees, returning
// every sampled fee within slotWindow slots of the latest sample.
func (c *JSONRPCClient) RecentPriorityFees(ctx context.Context, slotWindow int) ([]uint64, error) {
	var result []prioritizationFee
	if err := c.call(ctx, "getRecentPrioritizationFees", nil, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	latest := result[len(result)-1].Slot
	var fees []uint64
	for _, r := range result {
		if slotWindow <= 0 || latest-r.Slot <= uint64(slotWindow) {
			fees = append(fees, r.PrioritizationFee)
		}
	}
	return fees, nil
}
