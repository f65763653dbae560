package archive

import (
	"context"
	"sync"

	"token-ledger-client/internal/domain"
)

// Record is one archived batch.
type Record struct {
	Principal    string
	ReconciledAt int64
	Transactions []domain.Transaction
}

// MemoryArchive is an in-memory TransactionArchive.
type MemoryArchive struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryArchive creates an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

var _ TransactionArchive = (*MemoryArchive)(nil)

// Append records a batch.
func (a *MemoryArchive) Append(_ context.Context, principal string, reconciledAt int64, txs []domain.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := make([]domain.Transaction, len(txs))
	copy(batch, txs)
	a.records = append(a.records, Record{
		Principal:    principal,
		ReconciledAt: reconciledAt,
		Transactions: batch,
	})
	return nil
}

// Records returns all archived batches in append order.
func (a *MemoryArchive) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}
