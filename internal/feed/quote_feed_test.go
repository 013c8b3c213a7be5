package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuoteStream delivers scripted batches and closes its channel on Close.
type fakeQuoteStream struct {
	updates chan []domain.Quote
	dropped uint64

	mu     sync.Mutex
	closed bool
}

func newFakeQuoteStream() *fakeQuoteStream {
	return &fakeQuoteStream{updates: make(chan []domain.Quote, 16)}
}

func (s *fakeQuoteStream) Connect(ctx context.Context) error { return nil }

func (s *fakeQuoteStream) Updates() <-chan []domain.Quote { return s.updates }

func (s *fakeQuoteStream) Dropped() uint64 { return s.dropped }

func (s *fakeQuoteStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	return nil
}

func (s *fakeQuoteStream) send(quotes ...domain.Quote) {
	s.updates <- quotes
}

func TestQuoteFeedAppliesBatches(t *testing.T) {
	stream := newFakeQuoteStream()
	f := NewQuoteFeed(stream, testLogger())
	require.NoError(t, f.Connect(context.Background()))

	now := time.Now()
	stream.send(
		domain.Quote{Symbol: "BTCUSDT", Bid: 49990, Ask: 50000, EventTime: now},
		domain.Quote{Symbol: "ETHUSDT", Bid: 3000, Ask: 3001, EventTime: now},
	)
	// A later quote supersedes the earlier one wholesale.
	stream.send(domain.Quote{Symbol: "BTCUSDT", Bid: 50010, Ask: 50020, EventTime: now})

	// Disconnect drains the stream before returning.
	f.Disconnect()

	q, ok := f.Quote("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 50010.0, q.Bid)
	assert.Equal(t, 50020.0, q.Ask)

	stats := f.Stats()
	assert.Equal(t, 2, stats.Symbols)
	assert.Equal(t, uint64(3), stats.Applied)
}

func TestQuoteFeedCoverage(t *testing.T) {
	stream := newFakeQuoteStream()
	f := NewQuoteFeed(stream, testLogger())
	require.NoError(t, f.Connect(context.Background()))

	now := time.Now()
	stream.send(
		domain.Quote{Symbol: "A", Bid: 1, Ask: 2, EventTime: now},
		domain.Quote{Symbol: "B", Bid: 1, Ask: 2, EventTime: now.Add(-time.Minute)},
		domain.Quote{Symbol: "C", Bid: 1, Ask: 2, EventTime: now},
	)
	f.Disconnect()

	// B is stale and D is absent: 2 of 4 required symbols are covered.
	cov := f.Coverage([]string{"A", "B", "C", "D"}, 5*time.Second)
	assert.InDelta(t, 0.5, cov, 1e-9)

	fresh := f.FreshQuotes([]string{"A", "B", "C", "D"}, 5*time.Second)
	assert.Len(t, fresh, 2)
	assert.Contains(t, fresh, "A")
	assert.Contains(t, fresh, "C")

	assert.Equal(t, 1.0, f.Coverage(nil, time.Second))
}

func TestQuoteFeedStaleness(t *testing.T) {
	stream := newFakeQuoteStream()
	f := NewQuoteFeed(stream, testLogger())

	// Never connected: stale.
	assert.True(t, f.IsStale(time.Minute))

	require.NoError(t, f.Connect(context.Background()))
	assert.True(t, f.IsStale(time.Minute), "no batch applied yet")

	stream.send(domain.Quote{Symbol: "A", Bid: 1, Ask: 2, EventTime: time.Now()})
	require.Eventually(t, func() bool {
		return !f.IsStale(time.Minute)
	}, time.Second, 5*time.Millisecond)

	// Stream drop flips the feed to disconnected, which is always stale.
	f.Disconnect()
	assert.False(t, f.Connected())
	assert.True(t, f.IsStale(time.Minute))
}

func TestQuoteFeedRetainsTableAfterDisconnect(t *testing.T) {
	stream := newFakeQuoteStream()
	f := NewQuoteFeed(stream, testLogger())
	require.NoError(t, f.Connect(context.Background()))

	stream.send(domain.Quote{Symbol: "A", Bid: 1, Ask: 2, EventTime: time.Now()})
	f.Disconnect()

	_, ok := f.Quote("A")
	assert.True(t, ok)
	assert.Len(t, f.AllQuotes(), 1)
}
