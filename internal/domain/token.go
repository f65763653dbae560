package domain

// Token represents a fungible token known to the ledger service.
// Identity is the symbol; symbols are case-sensitive and immutable once created.
type Token struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	ImageURL    string `json:"imageUrl"`
	TotalSupply uint64 `json:"totalSupply"`
}

// BalanceTable maps token symbol to the current principal's balance.
// A missing entry means the balance is unknown, not zero, until the
// first successful fetch for that symbol.
type BalanceTable map[string]uint64

// Clone returns an independent copy of the table.
func (b BalanceTable) Clone() BalanceTable {
	if b == nil {
		return nil
	}
	out := make(BalanceTable, len(b))
	for symbol, amount := range b {
		out[symbol] = amount
	}
	return out
}
