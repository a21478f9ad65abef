package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrProviderUnavailable marks transient provider failures. Callers treat
// these as retryable-by-next-tick, not fatal.
var ErrProviderUnavailable = errors.New("provider unavailable")

const (
	// DefaultHTTPTimeout bounds every HTTP RPC call.
	DefaultHTTPTimeout = 10 * time.Second

	commitment = "confirmed"
)

// Client is the HTTP side of the RPC gateway: point lookups by address or
// signature.
type Client struct {
	url    string
	client *http.Client
	nextID atomic.Uint64
}

// NewClient creates a Client for the given JSON-RPC HTTP endpoint.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrProviderUnavailable, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrProviderUnavailable, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetAccountInfo fetches the current state of an account. Returns (nil, nil)
// when the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var res accountInfoResult
	params := []interface{}{
		address,
		map[string]interface{}{"encoding": "base64", "commitment": commitment},
	}
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetTransaction fetches a finalized transaction by signature. Returns
// (nil, nil) when the transaction is unknown or not yet available.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionDetail, error) {
	var raw json.RawMessage
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var res txResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}
	return res.detail(), nil
}

// GetSignatures fetches the most recent transaction signatures mentioning an
// address, newest first. Used by the sweep to backfill wallets whose log
// subscription is down.
func (c *Client) GetSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	var sigs []SignatureInfo
	params := []interface{}{
		address,
		map[string]interface{}{"limit": limit, "commitment": commitment},
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}
