// Package stub provides an in-memory ledger.Client for tests and local
// development. It mirrors the remote service's semantics: creating a token
// credits the full supply to the creator and records a mint-style transfer.
package stub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/principal"
)

// ErrUnknownSymbol is returned for operations on tokens the ledger does not know.
var ErrUnknownSymbol = errors.New("unknown symbol")

type token struct {
	name         string
	symbol       string
	imageURL     string
	totalSupply  uint64
	balances     map[string]uint64               // by principal text
	transactions map[string][]domain.Transaction // by principal text
}

// Client implements ledger.Client against in-memory state.
type Client struct {
	mu     sync.Mutex
	tokens map[string]*token

	// Fault injection: operations listed here fail with the given error.
	FailTotalSupply     map[string]error // by symbol
	FailBalanceOf       map[string]error // by symbol
	FailGetTransactions map[string]error // by symbol
	FailGetTokenList    error
	FailTransfer        error
	FailCreateToken     error

	// Call counters, for observing single-flight behavior in tests.
	Calls map[string]int

	// Now supplies transaction timestamps; defaults to wall clock.
	Now func() int64
}

// NewClient creates an empty stub ledger.
func NewClient() *Client {
	return &Client{
		tokens:              make(map[string]*token),
		FailTotalSupply:     make(map[string]error),
		FailBalanceOf:       make(map[string]error),
		FailGetTransactions: make(map[string]error),
		Calls:               make(map[string]int),
		Now: func() int64 {
			return time.Now().UnixMilli()
		},
	}
}

var _ ledger.Client = (*Client)(nil)

// GetTokenList returns all tokens known to the ledger.
func (c *Client) GetTokenList(_ context.Context) ([]ledger.TokenListing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["get_token_list"]++

	if c.FailGetTokenList != nil {
		return nil, &ledger.RemoteCallError{Op: "get_token_list", Err: c.FailGetTokenList}
	}

	out := make([]ledger.TokenListing, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, ledger.TokenListing{Name: t.name, Symbol: t.symbol, ImageURL: t.imageURL})
	}
	// Stable listing order, so repeated refreshes see identical state.
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// TotalSupply returns the total supply for a symbol, 0 for unknown symbols.
func (c *Client) TotalSupply(_ context.Context, symbol string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["total_supply"]++

	if err := c.FailTotalSupply[symbol]; err != nil {
		return 0, &ledger.RemoteCallError{Op: "total_supply", Err: err}
	}
	if t, ok := c.tokens[symbol]; ok {
		return t.totalSupply, nil
	}
	return 0, nil
}

// BalanceOf returns one principal's balance, 0 when absent.
func (c *Client) BalanceOf(_ context.Context, symbol string, p principal.Principal) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["balance_of"]++

	if err := c.FailBalanceOf[symbol]; err != nil {
		return 0, &ledger.RemoteCallError{Op: "balance_of", Err: err}
	}
	if t, ok := c.tokens[symbol]; ok {
		return t.balances[p.Text()], nil
	}
	return 0, nil
}

// GetTransactions returns the transactions involving a principal for a symbol.
func (c *Client) GetTransactions(_ context.Context, symbol string, p principal.Principal) ([]domain.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["get_transactions"]++

	if err := c.FailGetTransactions[symbol]; err != nil {
		return nil, &ledger.RemoteCallError{Op: "get_transactions", Err: err}
	}
	t, ok := c.tokens[symbol]
	if !ok {
		return nil, nil
	}
	txs := t.transactions[p.Text()]
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

// CreateToken registers a new token and credits the creator with the supply.
func (c *Client) CreateToken(_ context.Context, creator principal.Principal, name, symbol, imageURL string, totalSupply uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["create_token"]++

	if c.FailCreateToken != nil {
		return false, &ledger.RemoteCallError{Op: "create_token", Err: c.FailCreateToken}
	}
	if _, exists := c.tokens[symbol]; exists {
		return false, nil
	}

	mint := domain.Transaction{
		Type:      domain.TxTypeTransfer,
		To:        creator.Text(),
		Amount:    totalSupply,
		Timestamp: c.Now(),
		Symbol:    symbol,
	}
	c.tokens[symbol] = &token{
		name:        name,
		symbol:      symbol,
		imageURL:    imageURL,
		totalSupply: totalSupply,
		balances:    map[string]uint64{creator.Text(): totalSupply},
		transactions: map[string][]domain.Transaction{
			creator.Text(): {mint},
		},
	}
	return true, nil
}

// Transfer moves amount between principals. Returns false when the sender's
// balance is insufficient or the symbol is unknown, matching the remote service.
func (c *Client) Transfer(_ context.Context, symbol string, to, from principal.Principal, amount uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["transfer"]++

	if c.FailTransfer != nil {
		return false, &ledger.RemoteCallError{Op: "transfer", Err: c.FailTransfer}
	}
	t, ok := c.tokens[symbol]
	if !ok {
		return false, nil
	}

	fromText, toText := from.Text(), to.Text()
	if t.balances[fromText] < amount {
		return false, nil
	}
	t.balances[fromText] -= amount
	t.balances[toText] += amount

	tx := domain.Transaction{
		Type:      domain.TxTypeTransfer,
		From:      fromText,
		To:        toText,
		Amount:    amount,
		Timestamp: c.Now(),
		Symbol:    symbol,
	}
	t.transactions[fromText] = append(t.transactions[fromText], tx)
	if toText != fromText {
		t.transactions[toText] = append(t.transactions[toText], tx)
	}
	return true, nil
}

// SetBalance overwrites one balance directly, for test setup.
func (c *Client) SetBalance(symbol string, p principal.Principal, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tokens[symbol]; ok {
		t.balances[p.Text()] = amount
	}
}

// CallCount returns how many times an operation was invoked.
func (c *Client) CallCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[op]
}
