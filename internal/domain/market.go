// Package domain defines the core types shared across the engine: markets,
// quotes, depth books, loops, profit estimates, and the ledger.
package domain

// Market is an immutable snapshot of one tradable pair, fetched from the
// exchange once per graph rebuild.
type Market struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Tradable   bool   `json:"tradable"`
}

// MarketSet indexes markets by symbol for hop resolution.
type MarketSet map[string]Market

// NewMarketSet builds a MarketSet from a market list. Non-tradable markets
// are excluded.
func NewMarketSet(markets []Market) MarketSet {
	set := make(MarketSet, len(markets))
	for _, m := range markets {
		if m.Tradable {
			set[m.Symbol] = m
		}
	}
	return set
}

// Has reports whether the symbol exists in the set.
func (s MarketSet) Has(symbol string) bool {
	_, ok := s[symbol]
	return ok
}

// Symbols returns all symbols in the set in unspecified order.
func (s MarketSet) Symbols() []string {
	out := make([]string, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	return out
}
