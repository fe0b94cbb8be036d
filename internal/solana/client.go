package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a JSON-RPC 2.0 client bound to a single endpoint URL. Retries,
// failover and rate limiting live in the Gateway; the Client issues exactly
// one HTTP request per call.
type Client struct {
	url        string
	commitment string
	httpClient *http.Client
}

// NewClient creates a client for one RPC endpoint
func NewClient(url, commitment string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		commitment: commitment,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint this client talks to
func (c *Client) URL() string { return c.url }

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call issues a single JSON-RPC request and decodes the result into out.
// It distinguishes transport failures, rate-limit rejections (HTTP 429) and
// definitive RPC errors so the gateway can apply the right retry policy.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{url: c.url, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return &rateLimitedError{url: c.url}
	}
	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return &transportError{url: c.url, err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{url: c.url, err: err}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &transportError{url: c.url, err: fmt.Errorf("malformed rpc response: %w", err)}
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return &transportError{url: c.url, err: fmt.Errorf("malformed rpc result: %w", err)}
		}
	}
	return nil
}

// valueContext is the standard slot-context envelope around RPC values
type valueContext[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

// GetBalance returns the lamport balance of an address
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	var out valueContext[uint64]
	err := c.Call(ctx, "getBalance", []interface{}{address, map[string]string{"commitment": c.commitment}}, &out)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

type parsedTokenAccount struct {
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						Amount   string `json:"amount"`
						Decimals int32  `json:"decimals"`
						UIAmount string `json:"uiAmountString"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// GetTokenAccountsByOwner lists parsed SPL token accounts for owner and mint
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]parsedTokenAccount, error) {
	var out valueContext[[]parsedTokenAccount]
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed", "commitment": c.commitment},
	}
	if err := c.Call(ctx, "getTokenAccountsByOwner", params, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetAccountInfo returns nil when the account does not exist
func (c *Client) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var out valueContext[*AccountInfo]
	params := []interface{}{address, map[string]string{"encoding": "base64", "commitment": c.commitment}}
	if err := c.Call(ctx, "getAccountInfo", params, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetSlot returns the current slot
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.Call(ctx, "getSlot", []interface{}{map[string]string{"commitment": c.commitment}}, &slot)
	return slot, err
}

type epochInfo struct {
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
	AbsoluteSlot uint64 `json:"absoluteSlot"`
}

// GetEpochInfo returns epoch progress counters
func (c *Client) GetEpochInfo(ctx context.Context) (*epochInfo, error) {
	var out epochInfo
	err := c.Call(ctx, "getEpochInfo", []interface{}{map[string]string{"commitment": c.commitment}}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type supplyInfo struct {
	Total       uint64 `json:"total"`
	Circulating uint64 `json:"circulating"`
}

// GetSupply returns total and circulating supply in lamports
func (c *Client) GetSupply(ctx context.Context) (*supplyInfo, error) {
	var out valueContext[supplyInfo]
	params := []interface{}{map[string]interface{}{"commitment": c.commitment, "excludeNonCirculatingAccountsList": true}}
	if err := c.Call(ctx, "getSupply", params, &out); err != nil {
		return nil, err
	}
	return &out.Value, nil
}

type performanceSample struct {
	NumTransactions  uint64 `json:"numTransactions"`
	SamplePeriodSecs uint64 `json:"samplePeriodSecs"`
	Slot             uint64 `json:"slot"`
}

// GetRecentPerformanceSamples returns up to limit recent TPS samples
func (c *Client) GetRecentPerformanceSamples(ctx context.Context, limit int) ([]performanceSample, error) {
	var out []performanceSample
	if err := c.Call(ctx, "getRecentPerformanceSamples", []interface{}{limit}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLatestBlockhash returns the recent blockhash used to anchor a transaction
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	var out valueContext[struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}]
	err := c.Call(ctx, "getLatestBlockhash", []interface{}{map[string]string{"commitment": c.commitment}}, &out)
	if err != nil {
		return "", err
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns its signature
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	var signature string
	params := []interface{}{txBase64, map[string]interface{}{"encoding": "base64", "preflightCommitment": c.commitment}}
	if err := c.Call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// GetHealth reports whether the node considers itself healthy
func (c *Client) GetHealth(ctx context.Context) (bool, error) {
	var status string
	if err := c.Call(ctx, "getHealth", nil, &status); err != nil {
		return false, err
	}
	return status == "ok", nil
}
