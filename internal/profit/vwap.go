package profit

import (
	"github.com/alanyoungcy/triarb/internal/domain"
)

// sellBaseVWAP walks the bid ladder selling baseQty of the base asset. It
// returns the volume-weighted average price and the gross quote proceeds,
// or ErrInsufficientDepth when the ladder cannot absorb the full quantity.
// Given a fixed book the result is deterministic, and as baseQty shrinks it
// converges to the top-of-book bid.
func sellBaseVWAP(bids []domain.PriceLevel, baseQty float64) (avgPrice, quoteOut float64, err error) {
	if baseQty <= 0 || len(bids) == 0 {
		return 0, 0, domain.ErrInsufficientDepth
	}

	remaining := baseQty
	for _, lvl := range bids {
		fill := lvl.Qty
		if fill > remaining {
			fill = remaining
		}
		quoteOut += fill * lvl.Price
		remaining -= fill
		if remaining <= 0 {
			return quoteOut / baseQty, quoteOut, nil
		}
	}
	return 0, 0, domain.ErrInsufficientDepth
}

// buyBaseVWAP walks the ask ladder spending quoteAmount of the quote asset.
// It returns the volume-weighted average price and the gross base quantity
// acquired, or ErrInsufficientDepth when the ladder's notional is smaller
// than the requested spend.
func buyBaseVWAP(asks []domain.PriceLevel, quoteAmount float64) (avgPrice, baseOut float64, err error) {
	if quoteAmount <= 0 || len(asks) == 0 {
		return 0, 0, domain.ErrInsufficientDepth
	}

	remaining := quoteAmount
	for _, lvl := range asks {
		levelNotional := lvl.Price * lvl.Qty
		spend := levelNotional
		if spend > remaining {
			spend = remaining
		}
		baseOut += spend / lvl.Price
		remaining -= spend
		if remaining <= 0 {
			return quoteAmount / baseOut, baseOut, nil
		}
	}
	return 0, 0, domain.ErrInsufficientDepth
}
