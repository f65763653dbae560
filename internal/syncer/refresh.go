package syncer

import (
	"context"
	"time"

	"token-ledger-client/internal/domain"
)

// RefreshTokens fetches the token list, then the total supply of each token
// independently. A per-token supply failure degrades that token's supply to
// zero without failing the refresh. The collection and its cache entry are
// replaced atomically; readers never observe a partial collection.
func (e *Engine) RefreshTokens(ctx context.Context) error {
	client, err := e.currentClient()
	if err != nil {
		return err
	}
	if !e.tryBegin(domain.CollectionTokens) {
		return nil
	}
	defer e.end(domain.CollectionTokens)
	start := time.Now()

	listings, err := client.GetTokenList(ctx)
	if err != nil {
		// Whole-refresh failure: the previous snapshot stays in place.
		e.logger.Printf("[syncer] refresh tokens: %v", err)
		if e.metrics != nil {
			e.metrics.RefreshesFailed.WithLabelValues(string(domain.CollectionTokens)).Inc()
		}
		e.notify("Failed to load tokens", domain.SeverityError)
		return err
	}

	tokens := make([]domain.Token, 0, len(listings))
	for _, l := range listings {
		supply, err := client.TotalSupply(ctx, l.Symbol)
		if err != nil {
			e.logger.Printf("[syncer] supply for %s degraded to 0: %v", l.Symbol, err)
			if e.metrics != nil {
				e.metrics.ItemFetchDegraded.WithLabelValues(string(domain.CollectionTokens)).Inc()
			}
			supply = 0
		}
		tokens = append(tokens, domain.Token{
			Symbol:      l.Symbol,
			Name:        l.Name,
			ImageURL:    l.ImageURL,
			TotalSupply: supply,
		})
	}

	e.setTokens(ctx, tokens, true)
	e.observeRefresh(domain.CollectionTokens, start)
	return nil
}

// RefreshBalances fetches the authenticated principal's balance for every
// known token, degrading failed items to zero, and replaces the whole
// balance table.
func (e *Engine) RefreshBalances(ctx context.Context) error {
	client, err := e.currentClient()
	if err != nil {
		return err
	}
	p, ok := e.sessionPrincipal()
	if !ok {
		return ErrNotAuthenticated
	}
	if !e.tryBegin(domain.CollectionBalances) {
		return nil
	}
	defer e.end(domain.CollectionBalances)
	start := time.Now()

	balances := make(domain.BalanceTable)
	for _, t := range e.Tokens() {
		amount, err := client.BalanceOf(ctx, t.Symbol, p)
		if err != nil {
			e.logger.Printf("[syncer] balance for %s degraded to 0: %v", t.Symbol, err)
			if e.metrics != nil {
				e.metrics.ItemFetchDegraded.WithLabelValues(string(domain.CollectionBalances)).Inc()
			}
			amount = 0
		}
		balances[t.Symbol] = amount
	}

	e.setBalances(ctx, balances, true)
	e.observeRefresh(domain.CollectionBalances, start)
	return nil
}

// RefreshBalance fetches a single symbol's balance and patches only that
// entry. Used when the user focuses one token.
func (e *Engine) RefreshBalance(ctx context.Context, symbol string) error {
	client, err := e.currentClient()
	if err != nil {
		return err
	}
	p, ok := e.sessionPrincipal()
	if !ok {
		return ErrNotAuthenticated
	}

	amount, err := client.BalanceOf(ctx, symbol, p)
	if err != nil {
		e.logger.Printf("[syncer] refresh balance %s: %v", symbol, err)
		return err
	}
	e.patchBalance(ctx, symbol, amount)
	return nil
}

// RefreshTransactions fetches transactions for the selected token, or for
// all known tokens when symbol is empty, flattens, sorts by timestamp
// descending and replaces the transaction collection. Per-token fetch
// failures are isolated; that token contributes no entries.
func (e *Engine) RefreshTransactions(ctx context.Context, symbol string) error {
	client, err := e.currentClient()
	if err != nil {
		return err
	}
	p, ok := e.sessionPrincipal()
	if !ok {
		return ErrNotAuthenticated
	}
	if !e.tryBegin(domain.CollectionTransactions) {
		return nil
	}
	defer e.end(domain.CollectionTransactions)
	start := time.Now()

	symbols := []string{symbol}
	if symbol == "" {
		symbols = symbols[:0]
		for _, t := range e.Tokens() {
			symbols = append(symbols, t.Symbol)
		}
	}

	var all []domain.Transaction
	for _, s := range symbols {
		txs, err := client.GetTransactions(ctx, s, p)
		if err != nil {
			e.logger.Printf("[syncer] transactions for %s skipped: %v", s, err)
			if e.metrics != nil {
				e.metrics.ItemFetchDegraded.WithLabelValues(string(domain.CollectionTransactions)).Inc()
			}
			continue
		}
		all = append(all, txs...)
	}

	domain.SortTransactions(all)
	e.setTransactions(ctx, all, true)
	e.archiveTransactions(ctx, p.Text(), all)
	e.observeRefresh(domain.CollectionTransactions, start)
	return nil
}

// RefreshAll runs tokens → balances → transactions in that fixed order;
// balance and transaction refreshes depend on the token list. Concurrent
// triggers collapse into the one in-flight execution and return nil.
func (e *Engine) RefreshAll(ctx context.Context) error {
	e.mu.Lock()
	if e.allInFlight {
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.RefreshesCoalesced.WithLabelValues("all").Inc()
		}
		return nil
	}
	e.allInFlight = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.allInFlight = false
		e.mu.Unlock()
	}()

	if err := e.RefreshTokens(ctx); err != nil {
		return err
	}
	if err := e.RefreshBalances(ctx); err != nil {
		return err
	}
	return e.RefreshTransactions(ctx, "")
}

func (e *Engine) archiveTransactions(ctx context.Context, principalText string, txs []domain.Transaction) {
	if e.archive == nil || len(txs) == 0 {
		return
	}
	if err := e.archive.Append(ctx, principalText, time.Now().UnixMilli(), txs); err != nil {
		e.logger.Printf("[syncer] archive transactions: %v", err)
	}
}

func (e *Engine) observeRefresh(col domain.Collection, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.RefreshesCompleted.WithLabelValues(string(col)).Inc()
	e.metrics.RefreshDuration.WithLabelValues(string(col)).Observe(time.Since(start).Seconds())
}
