package syncer

import (
	"context"
	"errors"
	"fmt"

	"token-ledger-client/internal/domain"
	"token-ledger-client/internal/ledger"
	"token-ledger-client/internal/principal"
)

// ApplyOptimisticTransfer decrements the sender's cached balance for symbol
// by amount, clamped at zero, and writes through to the cache store before
// any authoritative re-fetch. The acting user reads their own write with no
// visible latency; a later reconciling refresh corrects any discrepancy.
func (e *Engine) ApplyOptimisticTransfer(ctx context.Context, symbol string, amount uint64) {
	e.mu.Lock()
	current := e.balances[symbol]
	e.mu.Unlock()

	updated := uint64(0)
	if current > amount {
		updated = current - amount
	}
	e.patchBalance(ctx, symbol, updated)

	if e.metrics != nil {
		e.metrics.OptimisticPatches.Inc()
	}
}

// CreateToken validates inputs, registers the token with the ledger and on
// success chains a token refresh and a forced balance reconciliation.
func (e *Engine) CreateToken(ctx context.Context, name, symbol, imageURL string, totalSupply uint64) error {
	const op = "create_token"

	if symbol == "" {
		return e.reject(op, "symbol", "token symbol is required")
	}
	if name == "" {
		return e.reject(op, "name", "token name is required")
	}
	if totalSupply == 0 {
		return e.reject(op, "supply", "total supply must be a positive integer")
	}

	client, err := e.currentClient()
	if err != nil {
		return err
	}
	p, ok := e.sessionPrincipal()
	if !ok {
		return ErrNotAuthenticated
	}

	okCreated, err := client.CreateToken(ctx, p, name, symbol, imageURL, totalSupply)
	if err != nil {
		e.countMutation(op, "error")
		e.notify(err.Error(), domain.SeverityError)
		return err
	}
	if !okCreated {
		e.countMutation(op, "rejected")
		rejectErr := &ledger.RemoteCallError{Op: op, Err: fmt.Errorf("token %s rejected by ledger", symbol)}
		e.notify(rejectErr.Error(), domain.SeverityError)
		return rejectErr
	}

	e.countMutation(op, "ok")
	e.notify(fmt.Sprintf("Token %s created successfully", symbol), domain.SeveritySuccess)

	// Reconcile: new token first, then the creator's credited balance.
	if err := e.RefreshTokens(ctx); err != nil {
		return nil // already surfaced by the refresh
	}
	if err := e.RefreshBalances(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) {
		e.logger.Printf("[syncer] reconcile balances after create: %v", err)
	}
	return nil
}

// Transfer validates the request locally, performs the remote transfer and
// on success chains: optimistic patch → settled balance reconciliation →
// targeted transaction refresh for the token. On failure no optimistic
// patch is applied and the error is surfaced unchanged.
func (e *Engine) Transfer(ctx context.Context, symbol, to string, amount uint64) error {
	const op = "transfer"

	client, err := e.currentClient()
	if err != nil {
		return err
	}
	from, ok := e.sessionPrincipal()
	if !ok {
		return ErrNotAuthenticated
	}

	if amount == 0 {
		return e.reject(op, "amount", "transfer amount must be a positive integer")
	}

	toPrincipal, err := principal.Parse(to)
	if err != nil {
		return e.reject(op, "recipient", "invalid recipient principal address")
	}
	if from.Equal(toPrincipal) {
		return e.reject(op, "recipient", "cannot transfer tokens to yourself")
	}

	// Pessimistic pre-check against the last-known cached balance; the
	// remote service stays authoritative.
	e.mu.Lock()
	cached := e.balances[symbol]
	e.mu.Unlock()
	if amount > cached {
		return e.reject(op, "amount", "insufficient balance: have %d %s, transferring %d", cached, symbol, amount)
	}

	okTransferred, err := client.Transfer(ctx, symbol, toPrincipal, from, amount)
	if err != nil {
		e.countMutation(op, "error")
		e.notify(err.Error(), domain.SeverityError)
		return err
	}
	if !okTransferred {
		e.countMutation(op, "rejected")
		rejectErr := &ledger.RemoteCallError{Op: op, Err: fmt.Errorf("transfer of %d %s rejected by ledger", amount, symbol)}
		e.notify(rejectErr.Error(), domain.SeverityError)
		return rejectErr
	}

	e.countMutation(op, "ok")
	e.notify(fmt.Sprintf("Successfully transferred %d %s", amount, symbol), domain.SeveritySuccess)

	e.ApplyOptimisticTransfer(ctx, symbol, amount)
	e.reconcileAfterMutation(ctx, symbol)
	return nil
}

// Mint credits the acting principal with amount of symbol. The ledger has
// no dedicated mint operation; it is expressed as a self-transfer, which
// bypasses the self-transfer rejection applied to ordinary transfers. The
// net balance change is zero, so no optimistic patch is applied.
func (e *Engine) Mint(ctx context.Context, symbol string, amount uint64) error {
	const op = "mint"

	client, err := e.currentClient()
	if err != nil {
		return err
	}
	p, ok := e.sessionPrincipal()
	if !ok {
		return ErrNotAuthenticated
	}

	if amount == 0 {
		return e.reject(op, "amount", "mint amount must be a positive integer")
	}

	okMinted, err := client.Transfer(ctx, symbol, p, p, amount)
	if err != nil {
		e.countMutation(op, "error")
		e.notify(err.Error(), domain.SeverityError)
		return err
	}
	if !okMinted {
		e.countMutation(op, "rejected")
		rejectErr := &ledger.RemoteCallError{Op: op, Err: fmt.Errorf("mint of %d %s rejected by ledger", amount, symbol)}
		e.notify(rejectErr.Error(), domain.SeverityError)
		return rejectErr
	}

	e.countMutation(op, "ok")
	e.notify(fmt.Sprintf("Successfully minted %d %s", amount, symbol), domain.SeveritySuccess)

	e.reconcileAfterMutation(ctx, symbol)
	return nil
}

// reconcileAfterMutation waits out the settling delay, force-refreshes the
// balance table from the ledger and reloads the affected token's
// transactions. The authoritative result wins on completion order.
func (e *Engine) reconcileAfterMutation(ctx context.Context, symbol string) {
	e.mu.Lock()
	optimistic := e.balances[symbol]
	e.mu.Unlock()

	if err := e.settle(ctx); err != nil {
		return
	}
	if err := e.RefreshBalances(ctx); err != nil {
		e.logger.Printf("[syncer] reconcile balances for %s: %v", symbol, err)
	}

	e.mu.Lock()
	authoritative := e.balances[symbol]
	e.mu.Unlock()
	if authoritative != optimistic && e.metrics != nil {
		e.metrics.ReconcileCorrected.Inc()
	}

	if err := e.RefreshTransactions(ctx, symbol); err != nil {
		e.logger.Printf("[syncer] reconcile transactions for %s: %v", symbol, err)
	}
}

func (e *Engine) reject(op, reason, format string, args ...interface{}) error {
	if e.metrics != nil {
		e.metrics.ValidationRejects.WithLabelValues(op, reason).Inc()
	}
	err := validationErr(op, format, args...)
	e.notify(err.Error(), domain.SeverityError)
	return err
}

func (e *Engine) countMutation(op, result string) {
	if e.metrics != nil {
		e.metrics.MutationsTotal.WithLabelValues(op, result).Inc()
	}
}
