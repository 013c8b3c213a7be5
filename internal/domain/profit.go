package domain

// FillMethod tags how a leg's price was resolved.
type FillMethod int

const (
	// FillTOB means the leg was priced against the top of book.
	FillTOB FillMethod = iota
	// FillVWAP means the leg was priced by walking the depth ladder.
	FillVWAP
)

// String implements fmt.Stringer.
func (m FillMethod) String() string {
	switch m {
	case FillTOB:
		return "tob"
	case FillVWAP:
		return "vwap"
	default:
		return "unknown"
	}
}

// FallbackReason records why a VWAP leg fell back to top-of-book.
type FallbackReason int

const (
	// FallbackNone means no fallback occurred.
	FallbackNone FallbackReason = iota
	// FallbackNoBook means no depth book was available for the symbol.
	FallbackNoBook
	// FallbackInsufficientDepth means the book could not absorb the
	// requested amount.
	FallbackInsufficientDepth
	// FallbackStaleBook means the book existed but was older than the
	// configured maximum age.
	FallbackStaleBook
)

// String implements fmt.Stringer.
func (r FallbackReason) String() string {
	switch r {
	case FallbackNone:
		return "none"
	case FallbackNoBook:
		return "no_book"
	case FallbackInsufficientDepth:
		return "insufficient_depth"
	case FallbackStaleBook:
		return "stale_book"
	default:
		return "unknown"
	}
}

// LegFill is the resolved execution of one leg within a loop evaluation.
type LegFill struct {
	Symbol   string         `json:"symbol"`
	SellBase bool           `json:"sell_base"`
	Method   FillMethod     `json:"method"`
	Fallback FallbackReason `json:"fallback"`
	Price    float64        `json:"price"`
	AmountIn float64        `json:"amount_in"`
	// AmountOut is the post-fee proceeds in the leg's destination currency.
	AmountOut float64 `json:"amount_out"`
}

// EstimateMode describes which resolution a full loop evaluation used.
type EstimateMode int

const (
	// ModeTOB means every leg was priced at top of book.
	ModeTOB EstimateMode = iota
	// ModeVWAP means every leg was priced against depth.
	ModeVWAP
	// ModeMixed means some legs fell back from VWAP to top of book.
	ModeMixed
)

// String implements fmt.Stringer.
func (m EstimateMode) String() string {
	switch m {
	case ModeTOB:
		return "tob"
	case ModeVWAP:
		return "vwap"
	case ModeMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// ProfitEstimate is the transient per-tick result of simulating one loop.
// It is recomputed every tick and never persisted.
type ProfitEstimate struct {
	Loop         Loop         `json:"loop"`
	Mode         EstimateMode `json:"mode"`
	Legs         []LegFill    `json:"legs"`
	StartAmount  float64      `json:"start_amount"`
	FinalAmount  float64      `json:"final_amount"`
	NetProfit    float64      `json:"net_profit"`
	ProfitPct    float64      `json:"profit_pct"`
	IsProfitable bool         `json:"is_profitable"`
}
