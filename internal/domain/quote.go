package domain

import "time"

// Quote is the best bid/ask for one symbol. Each update supersedes the
// previous one; quotes are never merged.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	EventTime time.Time
}

// Valid reports whether the quote satisfies the feed invariant: both sides
// positive and ask strictly above bid. Invalid quotes are dropped at the
// wire, never recorded.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask > q.Bid
}

// Fresh reports whether the quote's event time is within maxAge of now.
func (q Quote) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.EventTime) <= maxAge
}
