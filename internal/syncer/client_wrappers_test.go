package syncer

import (
	"context"
	"sync"

	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/ledger/stub"
	"token-ledger-client/internal/principal"
)

// gatedClient blocks BalanceOf until released, to hold a refresh in flight
// while a test triggers concurrent refreshes.
type gatedClient struct {
	*stub.Client
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClient) BalanceOf(ctx context.Context, symbol string, p principal.Principal) (uint64, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Client.BalanceOf(ctx, symbol, p)
}

// orderRecordingClient records the sequence of read operations.
type orderRecordingClient struct {
	*stub.Client
	mu  sync.Mutex
	ops []string
}

func (c *orderRecordingClient) record(op string) {
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()
}

func (c *orderRecordingClient) operations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ops))
	copy(out, c.ops)
	return out
}

func (c *orderRecordingClient) GetTokenList(ctx context.Context) ([]ledger.TokenListing, error) {
	c.record("get_token_list")
	return c.Client.GetTokenList(ctx)
}

func (c *orderRecordingClient) TotalSupply(ctx context.Context, symbol string) (uint64, error) {
	c.record("total_supply")
	return c.Client.TotalSupply(ctx, symbol)
}

func (c *orderRecordingClient) BalanceOf(ctx context.Context, symbol string, p principal.Principal) (uint64, error) {
	c.record("balance_of")
	return c.Client.BalanceOf(ctx, symbol, p)
}

func (c *orderRecordingClient) GetTransactions(ctx context.Context, symbol string, p principal.Principal) ([]domain.Transaction, error) {
	c.record("get_transactions")
	return c.Client.GetTransactions(ctx, symbol, p)
}
