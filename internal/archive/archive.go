// Package archive records reconciled transaction snapshots for later
// analysis. Appends are best-effort: the sync engine logs failures and
// keeps going.
package archive

import (
	"context"

	"token-ledger-client/internal/domain"
)

// TransactionArchive is an append-only sink for reconciled transactions.
type TransactionArchive interface {
	// Append records a batch of transactions observed by a principal at
	// reconciliation time (Unix milliseconds).
	Append(ctx context.Context, principal string, reconciledAt int64, txs []domain.Transaction) error
}
