package domain

import "time"

// PriceLevel is a single price+quantity entry in a depth book.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// DepthBook is a full order-book snapshot for one symbol: bids ordered by
// price descending, asks ascending. Each depth message replaces the book
// wholesale.
type DepthBook struct {
	Symbol     string
	Bids       []PriceLevel
	Asks       []PriceLevel
	LastUpdate time.Time
}

// BestBid returns the top bid, or zero when the book is empty.
func (b DepthBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask, or zero when the book is empty.
func (b DepthBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// TotalBidQty returns the summed base quantity across all bid levels.
func (b DepthBook) TotalBidQty() float64 {
	var total float64
	for _, lvl := range b.Bids {
		total += lvl.Qty
	}
	return total
}

// TotalAskQty returns the summed base quantity across all ask levels.
func (b DepthBook) TotalAskQty() float64 {
	var total float64
	for _, lvl := range b.Asks {
		total += lvl.Qty
	}
	return total
}
