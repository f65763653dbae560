package domain

import "sort"

// TxTypeTransfer is the only transaction type the ledger currently records.
// Mint-style transactions appear as transfers with an empty From principal.
const TxTypeTransfer = "transfer"

// Transaction is one immutable ledger entry for a token.
type Transaction struct {
	Type      string `json:"type"`
	From      string `json:"from,omitempty"` // empty for mint-style origin
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Symbol    string `json:"symbol"`
}

// SortTransactions orders transactions by timestamp descending.
// Ties keep their existing relative order (insertion order).
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp > txs[j].Timestamp
	})
}
