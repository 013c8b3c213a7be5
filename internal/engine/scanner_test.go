package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/executor"
	"github.com/alanyoungcy/triarb/internal/feed"
	"github.com/alanyoungcy/triarb/internal/profit"
	"github.com/alanyoungcy/triarb/internal/rank"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Loops through BTC and ETH bridging USDT to USDC. Buying at the ask and
// selling at the bid gives the BTC loop a 10% edge, the ETH loop 5%, and the
// SOL loop a loss.
var scanLoops = []domain.Loop{
	{Path: []string{"USDT", "BTC", "USDC"}, Pairs: []string{"BTCUSDT", "BTCUSDC"}},
	{Path: []string{"USDT", "ETH", "USDC"}, Pairs: []string{"ETHUSDT", "ETHUSDC"}},
	{Path: []string{"USDT", "SOL", "USDC"}, Pairs: []string{"SOLUSDT", "SOLUSDC"}},
}

func scanQuotes() []domain.Quote {
	now := time.Now()
	q := func(sym string, bid, ask float64) domain.Quote {
		return domain.Quote{Symbol: sym, Bid: bid, Ask: ask, EventTime: now}
	}
	return []domain.Quote{
		q("BTCUSDT", 99, 100), q("BTCUSDC", 110, 111),
		q("ETHUSDT", 99, 100), q("ETHUSDC", 105, 106),
		q("SOLUSDT", 99, 100), q("SOLUSDC", 90, 91),
	}
}

func quoteMap(quotes []domain.Quote) map[string]domain.Quote {
	out := make(map[string]domain.Quote, len(quotes))
	for _, q := range quotes {
		out[q.Symbol] = q
	}
	return out
}

// fakeQuoteStream delivers one preloaded batch and then idles until closed.
type fakeQuoteStream struct {
	updates chan []domain.Quote
	mu      sync.Mutex
	closed  bool
}

func newFakeQuoteStream(batch []domain.Quote) *fakeQuoteStream {
	s := &fakeQuoteStream{updates: make(chan []domain.Quote, 1)}
	s.updates <- batch
	return s
}

func (s *fakeQuoteStream) Connect(ctx context.Context) error { return nil }

func (s *fakeQuoteStream) Updates() <-chan []domain.Quote { return s.updates }

func (s *fakeQuoteStream) Dropped() uint64 { return 0 }

func (s *fakeQuoteStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	return nil
}

// failingQuoteStream refuses every connection attempt.
type failingQuoteStream struct{}

func (failingQuoteStream) Connect(ctx context.Context) error {
	return errors.New("dial refused")
}

func (failingQuoteStream) Updates() <-chan []domain.Quote { return nil }

func (failingQuoteStream) Dropped() uint64 { return 0 }

func (failingQuoteStream) Close() error { return nil }

// fakeDepthStream never delivers a book, so confirmation falls back to TOB.
type fakeDepthStream struct{ books chan domain.DepthBook }

func (s *fakeDepthStream) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeDepthStream) Books() <-chan domain.DepthBook { return s.books }

func (s *fakeDepthStream) Close() {}

func emptyDial(symbol string) feed.DepthStream {
	return &fakeDepthStream{books: make(chan domain.DepthBook)}
}

// fakeBus records published payloads per channel.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

func newTestScanner(params Params, bus domain.SignalBus) (*Scanner, *executor.Ledger) {
	logger := testLogger()
	pool := feed.NewDepthPool(emptyDial, 4, logger)
	calc := profit.NewCalculator(profit.Params{})
	prio := rank.NewPrioritizer([]string{"USDT", "USDC"}, nil, nil)
	ledger := executor.NewLedger(logger)
	exec := executor.NewVirtualExecutor(ledger, 0, logger)
	newFeed := func() *feed.QuoteFeed {
		return feed.NewQuoteFeed(newFakeQuoteStream(scanQuotes()), logger)
	}
	s := NewScanner(params, scanLoops, newFeed, pool, calc, prio, exec, ledger, bus, nil, logger)
	return s, ledger
}

func TestScreenOrdersAndCapsCandidates(t *testing.T) {
	s, _ := newTestScanner(Params{
		StartAmount:   100,
		RoughEdgePct:  0.0002,
		MaxCandidates: 10,
	}, nil)

	candidates := s.screen(quoteMap(scanQuotes()))

	// The losing SOL loop never passes the screen; the rest order best first.
	require.Len(t, candidates, 2)
	assert.Equal(t, "USDT>BTC>USDC", candidates[0].Loop.ID())
	assert.Equal(t, "USDT>ETH>USDC", candidates[1].Loop.ID())
	assert.Greater(t, candidates[0].ProfitPct, candidates[1].ProfitPct)
}

func TestScreenAppliesCandidateCap(t *testing.T) {
	s, _ := newTestScanner(Params{
		StartAmount:   100,
		RoughEdgePct:  0.0002,
		MaxCandidates: 1,
	}, nil)

	candidates := s.screen(quoteMap(scanQuotes()))
	require.Len(t, candidates, 1)
	assert.Equal(t, "USDT>BTC>USDC", candidates[0].Loop.ID())
}

func TestScreenSkipsLoopsMissingQuotes(t *testing.T) {
	s, _ := newTestScanner(Params{
		StartAmount:   100,
		MaxCandidates: 10,
	}, nil)

	quotes := quoteMap(scanQuotes())
	delete(quotes, "BTCUSDC")

	candidates := s.screen(quotes)
	require.Len(t, candidates, 1)
	assert.Equal(t, "USDT>ETH>USDC", candidates[0].Loop.ID())
}

func TestRunRecordsAndPublishesTrades(t *testing.T) {
	bus := newFakeBus()
	s, ledger := newTestScanner(Params{
		TickInterval:  10 * time.Millisecond,
		StartAmount:   100,
		RoughEdgePct:  0.0002,
		MaxCandidates: 10,
		QuoteMaxAge:   time.Minute,
		RecordTrades:  true,
	}, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	summary := ledger.Summary()
	assert.Greater(t, summary.Trades, 0)
	assert.Equal(t, bus.count(TradesChannel), summary.Trades)

	// No depth books ever arrived, so every record is a TOB fill.
	for _, entry := range ledger.Entries() {
		assert.Equal(t, domain.ModeTOB, entry.Mode)
	}
}

func TestRunMonitorModeNeverRecords(t *testing.T) {
	bus := newFakeBus()
	s, ledger := newTestScanner(Params{
		TickInterval:  10 * time.Millisecond,
		StartAmount:   100,
		RoughEdgePct:  0.0002,
		MaxCandidates: 10,
		QuoteMaxAge:   time.Minute,
		RecordTrades:  false,
	}, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)

	assert.Equal(t, 0, ledger.Summary().Trades)
	assert.Equal(t, 0, bus.count(TradesChannel))
	assert.Greater(t, s.opportunities, uint64(0))
	// Confirmed estimates are still published for observers.
	assert.Greater(t, bus.count(OpportunitiesChannel), 0)
}

func TestTickWithoutFeedReconnectsInsteadOfPanicking(t *testing.T) {
	logger := testLogger()
	pool := feed.NewDepthPool(emptyDial, 4, logger)
	ledger := executor.NewLedger(logger)
	newFeed := func() *feed.QuoteFeed {
		return feed.NewQuoteFeed(failingQuoteStream{}, logger)
	}
	s := NewScanner(Params{StartAmount: 100, QuoteMaxAge: time.Minute},
		scanLoops, newFeed, pool,
		profit.NewCalculator(profit.Params{}),
		rank.NewPrioritizer([]string{"USDT", "USDC"}, nil, nil),
		executor.NewVirtualExecutor(ledger, 0, logger), ledger, nil, nil, logger)

	// A cancelled reconnect leaves the scanner with no feed. A tick that
	// slipped in before shutdown was observed must skip evaluation and
	// retry the connect, not dereference the missing feed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.tick(ctx)
	assert.Nil(t, s.feed)

	// The periodic summary tolerates the missing feed too.
	s.logSummary()
}

func TestRunSurvivesFailedReconnectAtShutdown(t *testing.T) {
	logger := testLogger()
	pool := feed.NewDepthPool(emptyDial, 4, logger)
	ledger := executor.NewLedger(logger)

	var mu sync.Mutex
	dials := 0
	newFeed := func() *feed.QuoteFeed {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			// Connects but never delivers a batch, so the first tick sees
			// a stale feed and starts reconnecting.
			return feed.NewQuoteFeed(
				&fakeQuoteStream{updates: make(chan []domain.Quote, 1)}, logger)
		}
		return feed.NewQuoteFeed(failingQuoteStream{}, logger)
	}

	s := NewScanner(Params{
		TickInterval:  10 * time.Millisecond,
		StartAmount:   100,
		MaxCandidates: 10,
		QuoteMaxAge:   time.Millisecond,
	}, scanLoops, newFeed, pool,
		profit.NewCalculator(profit.Params{}),
		rank.NewPrioritizer([]string{"USDT", "USDC"}, nil, nil),
		executor.NewVirtualExecutor(ledger, 0, logger), ledger, nil, nil, logger)

	// Cancellation lands during the reconnect backoff; Run must unwind
	// cleanly even when a pending tick beats ctx.Done in the select.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpdateLoopsSwapsSet(t *testing.T) {
	s, _ := newTestScanner(Params{StartAmount: 100, MaxCandidates: 10}, nil)

	s.UpdateLoops(scanLoops[:1])

	candidates := s.screen(quoteMap(scanQuotes()))
	require.Len(t, candidates, 1)
	assert.Equal(t, "USDT>BTC>USDC", candidates[0].Loop.ID())
}
