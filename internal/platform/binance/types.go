package binance

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// exchangeInfoResponse is the wire shape of GET /api/v3/exchangeInfo.
type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

// symbolInfo is one tradable-pair record within exchangeInfo.
type symbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// toDomainMarket converts a symbolInfo to a domain.Market. A symbol is
// tradable only while its status is TRADING.
func (s symbolInfo) toDomainMarket() domain.Market {
	return domain.Market{
		Symbol:     s.Symbol,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
		Tradable:   s.Status == "TRADING",
	}
}

// tickerMsg is one record from the all-market ticker array stream
// (!ticker@arr). Prices arrive as strings.
type tickerMsg struct {
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	AskPrice  string `json:"a"`
	EventTime int64  `json:"E"`
}

// bookTickerMsg is the payload of a per-symbol <sym>@bookTicker stream.
// It carries no event time; receivers stamp it on arrival.
type bookTickerMsg struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// combinedEnvelope wraps messages from a /stream?streams= connection.
type combinedEnvelope struct {
	Stream string        `json:"stream"`
	Data   bookTickerMsg `json:"data"`
}

// toDomainQuote parses a tickerMsg into a domain.Quote. The second return
// value is false when the record is malformed or violates the quote
// invariant (non-positive price, bid >= ask); such records are dropped.
func (t tickerMsg) toDomainQuote() (domain.Quote, bool) {
	bid, err := strconv.ParseFloat(t.BidPrice, 64)
	if err != nil {
		return domain.Quote{}, false
	}
	ask, err := strconv.ParseFloat(t.AskPrice, 64)
	if err != nil {
		return domain.Quote{}, false
	}
	q := domain.Quote{
		Symbol:    t.Symbol,
		Bid:       bid,
		Ask:       ask,
		EventTime: time.UnixMilli(t.EventTime),
	}
	if t.Symbol == "" || !q.Valid() {
		return domain.Quote{}, false
	}
	return q, true
}

// toDomainQuote parses a bookTickerMsg, stamping now as the event time.
func (b bookTickerMsg) toDomainQuote(now time.Time) (domain.Quote, bool) {
	bid, err := strconv.ParseFloat(b.BidPrice, 64)
	if err != nil {
		return domain.Quote{}, false
	}
	ask, err := strconv.ParseFloat(b.AskPrice, 64)
	if err != nil {
		return domain.Quote{}, false
	}
	q := domain.Quote{Symbol: b.Symbol, Bid: bid, Ask: ask, EventTime: now}
	if b.Symbol == "" || !q.Valid() {
		return domain.Quote{}, false
	}
	return q, true
}

// depthMsg is a full replacement snapshot from a <sym>@depth<N> stream.
// Levels arrive as [price, qty] string pairs.
type depthMsg struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// toDomainBook converts a depthMsg into a domain.DepthBook. Malformed
// levels are skipped; an entirely empty book is reported as malformed.
func (d depthMsg) toDomainBook(symbol string, now time.Time) (domain.DepthBook, bool) {
	book := domain.DepthBook{
		Symbol:     symbol,
		Bids:       parseLevels(d.Bids),
		Asks:       parseLevels(d.Asks),
		LastUpdate: now,
	}
	if len(book.Bids) == 0 && len(book.Asks) == 0 {
		return domain.DepthBook{}, false
	}
	return book, true
}

// parseLevels converts [price, qty] string pairs into price levels,
// dropping entries that fail to parse or have non-positive values.
func parseLevels(raw [][]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil || price <= 0 {
			continue
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil || qty <= 0 {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Qty: qty})
	}
	return levels
}
