package archive

import (
	"context"
	"testing"

	"token-ledger-client/internal/domain"
)

func TestMemoryArchiveAppend(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive()

	txs := []domain.Transaction{{To: "alice", Amount: 10, Timestamp: 1000, Symbol: "BTC"}}
	if err := a.Append(ctx, "alice", 2000, txs); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Mutating the caller's slice must not leak into the archive.
	txs[0].Amount = 999

	records := a.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Principal != "alice" || rec.ReconciledAt != 2000 {
		t.Errorf("Unexpected record header: %+v", rec)
	}
	if len(rec.Transactions) != 1 || rec.Transactions[0].Amount != 10 {
		t.Errorf("Archived batch should be an independent copy: %+v", rec.Transactions)
	}
}

func TestMemoryArchiveAppendOrder(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive()

	for i := int64(1); i <= 3; i++ {
		if err := a.Append(ctx, "p", i, []domain.Transaction{{Timestamp: i}}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records := a.Records()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.ReconciledAt != int64(i+1) {
			t.Errorf("Record %d out of order: %+v", i, rec)
		}
	}
}
