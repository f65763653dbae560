// Package ledger wraps the remote ledger service behind a uniform
// request/response client. Every call returns an explicit error instead of
// leaking transport failures; errors are normalized to *RemoteCallError.
package ledger

import (
	"context"

	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/principal"
)

// TokenListing is one entry of the get_token_list response. Total supply
// is fetched separately per token.
type TokenListing struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	ImageURL string `json:"imageUrl"`
}

// Client is the uniform interface to the remote ledger service.
type Client interface {
	// GetTokenList returns all tokens known to the ledger.
	GetTokenList(ctx context.Context) ([]TokenListing, error)

	// TotalSupply returns the total supply for a symbol.
	TotalSupply(ctx context.Context, symbol string) (uint64, error)

	// BalanceOf returns one principal's balance for a symbol.
	BalanceOf(ctx context.Context, symbol string, p principal.Principal) (uint64, error)

	// GetTransactions returns the transactions involving a principal for a symbol.
	GetTransactions(ctx context.Context, symbol string, p principal.Principal) ([]domain.Transaction, error)

	// CreateToken registers a new token with the full supply credited to the creator.
	CreateToken(ctx context.Context, creator principal.Principal, name, symbol, imageURL string, totalSupply uint64) (bool, error)

	// Transfer moves amount of symbol from one principal to another.
	Transfer(ctx context.Context, symbol string, to, from principal.Principal, amount uint64) (bool, error)
}
