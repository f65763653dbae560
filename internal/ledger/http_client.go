package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/identity"
	"token-ledger-client/internal/principal"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0, bound to one
// credential. Every request body is signed with the credential's key.
type HTTPClient struct {
	endpoint    string
	id          *identity.Identity
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a ledger client for one endpoint, bound to id.
func NewHTTPClient(endpoint string, id *identity.Identity, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		id:          id,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.id != nil {
			req.Header.Set("X-Ledger-Principal", c.id.Principal().Text())
			req.Header.Set("X-Ledger-Signature", base64.StdEncoding.EncodeToString(c.id.Sign(body)))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetTokenList returns all tokens known to the ledger.
func (c *HTTPClient) GetTokenList(ctx context.Context) ([]TokenListing, error) {
	var result []TokenListing
	if err := c.call(ctx, "get_token_list", nil, &result); err != nil {
		return nil, remoteErr("get_token_list", err)
	}
	return result, nil
}

// TotalSupply returns the total supply for a symbol.
func (c *HTTPClient) TotalSupply(ctx context.Context, symbol string) (uint64, error) {
	params := map[string]interface{}{"symbol": symbol}
	var result uint64
	if err := c.call(ctx, "total_supply", params, &result); err != nil {
		return 0, remoteErr("total_supply", err)
	}
	return result, nil
}

// BalanceOf returns one principal's balance for a symbol.
func (c *HTTPClient) BalanceOf(ctx context.Context, symbol string, p principal.Principal) (uint64, error) {
	params := map[string]interface{}{
		"symbol":    symbol,
		"principal": p.Text(),
	}
	var result uint64
	if err := c.call(ctx, "balance_of", params, &result); err != nil {
		return 0, remoteErr("balance_of", err)
	}
	return result, nil
}

// wireTransaction is the raw get_transactions response item.
type wireTransaction struct {
	From      *string `json:"from"`
	To        string  `json:"to"`
	Amount    uint64  `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

// GetTransactions returns the transactions involving a principal for a symbol.
func (c *HTTPClient) GetTransactions(ctx context.Context, symbol string, p principal.Principal) ([]domain.Transaction, error) {
	params := map[string]interface{}{
		"symbol":    symbol,
		"principal": p.Text(),
	}
	var result []wireTransaction
	if err := c.call(ctx, "get_transactions", params, &result); err != nil {
		return nil, remoteErr("get_transactions", err)
	}

	txs := make([]domain.Transaction, len(result))
	for i, w := range result {
		tx := domain.Transaction{
			Type:      domain.TxTypeTransfer,
			To:        w.To,
			Amount:    w.Amount,
			Timestamp: w.Timestamp,
			Symbol:    symbol,
		}
		if w.From != nil {
			tx.From = *w.From
		}
		txs[i] = tx
	}
	return txs, nil
}

// CreateToken registers a new token with the full supply credited to the creator.
func (c *HTTPClient) CreateToken(ctx context.Context, creator principal.Principal, name, symbol, imageURL string, totalSupply uint64) (bool, error) {
	params := map[string]interface{}{
		"creatorPrincipal": creator.Text(),
		"name":             name,
		"symbol":           symbol,
		"imageUrl":         imageURL,
		"totalSupply":      totalSupply,
	}
	var result bool
	if err := c.call(ctx, "create_token", params, &result); err != nil {
		return false, remoteErr("create_token", err)
	}
	return result, nil
}

// Transfer moves amount of symbol from one principal to another.
func (c *HTTPClient) Transfer(ctx context.Context, symbol string, to, from principal.Principal, amount uint64) (bool, error) {
	params := map[string]interface{}{
		"symbol":        symbol,
		"toPrincipal":   to.Text(),
		"fromPrincipal": from.Text(),
		"amount":        amount,
	}
	var result bool
	if err := c.call(ctx, "transfer", params, &result); err != nil {
		return false, remoteErr("transfer", err)
	}
	return result, nil
}
