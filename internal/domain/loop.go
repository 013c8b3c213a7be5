package domain

import "fmt"

// Loop is an ordered sequence of currency hops that starts and ends at the
// same anchor currency, or spans a declared anchor pair. Pairs holds one
// market symbol per hop. Loops are immutable once built and are rebuilt
// wholesale when the market graph is refreshed.
type Loop struct {
	Path  []string `json:"path"`
	Pairs []string `json:"pairs"`
}

// Leg is one resolved trade within a loop. SellBase records the hop
// direction implied by the pair's symbol naming: true means the hop sells
// the base asset for quote (executes at bid), false means it buys base with
// quote (executes at ask).
type Leg struct {
	Symbol   string
	From     string
	To       string
	SellBase bool
}

// ID returns a stable human-readable identifier, e.g. "USDT>BTC>ETH>USDT".
func (l Loop) ID() string {
	id := ""
	for i, c := range l.Path {
		if i > 0 {
			id += ">"
		}
		id += c
	}
	return id
}

// Start returns the loop's starting currency.
func (l Loop) Start() string {
	if len(l.Path) == 0 {
		return ""
	}
	return l.Path[0]
}

// End returns the loop's final currency.
func (l Loop) End() string {
	if len(l.Path) == 0 {
		return ""
	}
	return l.Path[len(l.Path)-1]
}

// Symbols returns the distinct market symbols the loop trades through.
func (l Loop) Symbols() []string {
	seen := make(map[string]bool, len(l.Pairs))
	out := make([]string, 0, len(l.Pairs))
	for _, p := range l.Pairs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Legs resolves every hop into a directed Leg. The direction is implicit in
// the pair's symbol naming: a hop from X to Y covered by symbol "XY" sells
// base X for quote Y, while symbol "YX" buys base Y with quote X. An error
// is returned when a pair covers neither orientation of its hop.
func (l Loop) Legs() ([]Leg, error) {
	if len(l.Pairs) != len(l.Path)-1 {
		return nil, fmt.Errorf("loop %s: %d pairs for %d hops: %w",
			l.ID(), len(l.Pairs), len(l.Path)-1, ErrInvalidLoop)
	}
	legs := make([]Leg, 0, len(l.Pairs))
	for i, pair := range l.Pairs {
		from, to := l.Path[i], l.Path[i+1]
		switch pair {
		case from + to:
			legs = append(legs, Leg{Symbol: pair, From: from, To: to, SellBase: true})
		case to + from:
			legs = append(legs, Leg{Symbol: pair, From: from, To: to, SellBase: false})
		default:
			return nil, fmt.Errorf("loop %s: pair %s does not connect %s-%s: %w",
				l.ID(), pair, from, to, ErrInvalidLoop)
		}
	}
	return legs, nil
}

// Validate checks the structural invariants: every hop resolves to a leg and
// every pair exists in the market set.
func (l Loop) Validate(markets MarketSet) error {
	if len(l.Path) < 3 {
		return fmt.Errorf("loop %s: path too short: %w", l.ID(), ErrInvalidLoop)
	}
	legs, err := l.Legs()
	if err != nil {
		return err
	}
	for _, leg := range legs {
		if !markets.Has(leg.Symbol) {
			return fmt.Errorf("loop %s: pair %s not in market set: %w",
				l.ID(), leg.Symbol, ErrInvalidLoop)
		}
	}
	return nil
}
