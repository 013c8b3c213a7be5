// Package feed maintains the live market-data state the scan loop reads:
// a quote table fed by one multiplexed ticker stream, and a bounded pool of
// per-symbol depth subscriptions with LRU eviction.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// QuoteStream is the transport the quote feed consumes. The platform layer
// provides the real WebSocket implementation; tests inject fakes.
type QuoteStream interface {
	// Connect opens the stream and begins delivering batches on Updates.
	Connect(ctx context.Context) error
	// Updates yields parsed, validated quote batches. The channel closes
	// when the connection drops or the stream is closed.
	Updates() <-chan []domain.Quote
	// Dropped reports how many malformed records were discarded.
	Dropped() uint64
	// Close shuts the stream down; no updates are delivered afterward.
	Close() error
}

// FeedStats is a snapshot of the feed's counters.
type FeedStats struct {
	Symbols   int
	Applied   uint64
	Dropped   uint64
	Connected bool
}

// QuoteFeed owns the best-bid/ask table for every live symbol. One
// aggregator goroutine drains the stream's update channel and applies each
// batch under a single write lock; readers take the read lock and never
// observe a partially applied entry. Quotes are superseded in place, never
// merged.
//
// The feed does not reconnect by itself: when the stream drops it flips to
// disconnected and the caller is expected to detect staleness and dial a
// fresh stream with backoff.
type QuoteFeed struct {
	stream QuoteStream
	logger *slog.Logger

	mu        sync.RWMutex
	quotes    map[string]domain.Quote
	connected bool
	applied   uint64

	// lastUpdate is the arrival time of the most recent applied batch,
	// used for whole-feed staleness independent of per-quote event times.
	lastUpdate time.Time

	wg sync.WaitGroup
}

// NewQuoteFeed creates a feed over the given stream.
func NewQuoteFeed(stream QuoteStream, logger *slog.Logger) *QuoteFeed {
	return &QuoteFeed{
		stream: stream,
		logger: logger.With(slog.String("component", "quote_feed")),
		quotes: make(map[string]domain.Quote),
	}
}

// Connect opens the underlying stream and starts the aggregator goroutine.
func (f *QuoteFeed) Connect(ctx context.Context) error {
	if err := f.stream.Connect(ctx); err != nil {
		return fmt.Errorf("feed: connect quote stream: %w", err)
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	f.wg.Add(1)
	go f.applyLoop()

	f.logger.Info("quote feed connected")
	return nil
}

// applyLoop drains the stream and applies batches under the write lock.
// When the stream's channel closes the feed flips to disconnected.
func (f *QuoteFeed) applyLoop() {
	defer f.wg.Done()

	for batch := range f.stream.Updates() {
		now := time.Now()
		f.mu.Lock()
		for _, q := range batch {
			f.quotes[q.Symbol] = q
			f.applied++
		}
		f.lastUpdate = now
		f.mu.Unlock()
	}

	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.logger.Warn("quote stream closed, feed disconnected")
}

// Quote returns the latest quote for symbol.
func (f *QuoteFeed) Quote(symbol string) (domain.Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[symbol]
	return q, ok
}

// AllQuotes returns a copy of the quote table.
func (f *QuoteFeed) AllQuotes() map[string]domain.Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]domain.Quote, len(f.quotes))
	for sym, q := range f.quotes {
		out[sym] = q
	}
	return out
}

// FreshQuotes returns the subset of required symbols whose quote event time
// is within maxAge of now.
func (f *QuoteFeed) FreshQuotes(required []string, maxAge time.Duration) map[string]domain.Quote {
	now := time.Now()
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]domain.Quote, len(required))
	for _, sym := range required {
		if q, ok := f.quotes[sym]; ok && q.Fresh(now, maxAge) {
			out[sym] = q
		}
	}
	return out
}

// Coverage returns the exact fraction of required symbols holding a fresh
// quote: |required ∩ fresh| / |required|. An empty required set counts as
// fully covered.
func (f *QuoteFeed) Coverage(required []string, maxAge time.Duration) float64 {
	if len(required) == 0 {
		return 1.0
	}
	now := time.Now()
	f.mu.RLock()
	defer f.mu.RUnlock()

	fresh := 0
	for _, sym := range required {
		if q, ok := f.quotes[sym]; ok && q.Fresh(now, maxAge) {
			fresh++
		}
	}
	return float64(fresh) / float64(len(required))
}

// IsStale reports whether the feed is disconnected or has not applied a
// batch within maxAge.
func (f *QuoteFeed) IsStale(maxAge time.Duration) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.connected {
		return true
	}
	if f.lastUpdate.IsZero() {
		return true
	}
	return time.Since(f.lastUpdate) > maxAge
}

// Connected reports the current connection state.
func (f *QuoteFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Stats returns a snapshot of the feed's counters.
func (f *QuoteFeed) Stats() FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedStats{
		Symbols:   len(f.quotes),
		Applied:   f.applied,
		Dropped:   f.stream.Dropped(),
		Connected: f.connected,
	}
}

// Disconnect performs a scoped close of the stream and waits for the
// aggregator to drain; no updates are applied after it returns. The quote
// table is retained so callers can still read (stale) state.
func (f *QuoteFeed) Disconnect() {
	_ = f.stream.Close()
	f.wg.Wait()
}
