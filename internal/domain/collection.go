package domain

// Collection identifies one cached ledger collection.
type Collection string

// Cached collections. Each is replaced wholesale on a successful refresh,
// never merged entry-by-entry.
const (
	CollectionTokens       Collection = "tokens"
	CollectionBalances     Collection = "balances"
	CollectionTransactions Collection = "transactions"
)

// Collections lists all cached collections in refresh dependency order:
// balances and transactions key off the token list.
func Collections() []Collection {
	return []Collection{CollectionTokens, CollectionBalances, CollectionTransactions}
}
