package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// fakeDepthStream blocks in Run until cancelled and lets tests push books.
type fakeDepthStream struct {
	symbol string
	books  chan domain.DepthBook

	mu     sync.Mutex
	closed bool
}

func (s *fakeDepthStream) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeDepthStream) Books() <-chan domain.DepthBook { return s.books }

func (s *fakeDepthStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeDepthStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer hands out fakeDepthStreams and remembers them by symbol.
type fakeDialer struct {
	mu      sync.Mutex
	streams map[string]*fakeDepthStream
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{streams: make(map[string]*fakeDepthStream)}
}

func (d *fakeDialer) dial(symbol string) DepthStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeDepthStream{symbol: symbol, books: make(chan domain.DepthBook, 4)}
	d.streams[symbol] = s
	return s
}

func (d *fakeDialer) stream(symbol string) *fakeDepthStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[symbol]
}

func TestDepthPoolCapacityBound(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 2, testLogger())
	defer pool.Close()

	// All three are in the requested set, so nothing is evictable and the
	// overflow symbol is skipped.
	pool.Ensure(context.Background(), []string{"A", "B", "C"})

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Tracked)
	assert.Equal(t, 2, stats.MaxCapacity)
	assert.ElementsMatch(t, []string{"A", "B"}, pool.Tracked())
}

func TestDepthPoolEvictsLeastRecentlyUsed(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 2, testLogger())
	defer pool.Close()

	pool.Ensure(context.Background(), []string{"A"})
	time.Sleep(2 * time.Millisecond)
	pool.Ensure(context.Background(), []string{"B"})
	time.Sleep(2 * time.Millisecond)

	// Reading A refreshes its LRU stamp, making B the victim.
	pool.Orderbook("A")
	time.Sleep(2 * time.Millisecond)

	pool.Ensure(context.Background(), []string{"C"})

	assert.ElementsMatch(t, []string{"A", "C"}, pool.Tracked())
	assert.True(t, dialer.stream("B").isClosed())
	assert.False(t, dialer.stream("A").isClosed())
}

func TestDepthPoolNeverEvictsRequestedSymbols(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 2, testLogger())
	defer pool.Close()

	pool.Ensure(context.Background(), []string{"A", "B"})
	time.Sleep(2 * time.Millisecond)

	// A and B are both in the request, so C cannot push either one out.
	pool.Ensure(context.Background(), []string{"A", "B", "C"})

	assert.ElementsMatch(t, []string{"A", "B"}, pool.Tracked())
}

func TestDepthPoolDeliversBooks(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 2, testLogger())
	defer pool.Close()

	pool.Ensure(context.Background(), []string{"BTCUSDT"})

	_, ok := pool.Orderbook("BTCUSDT")
	assert.False(t, ok, "no snapshot before the stream delivers one")

	dialer.stream("BTCUSDT").books <- domain.DepthBook{
		Symbol:     "BTCUSDT",
		Bids:       []domain.PriceLevel{{Price: 49990, Qty: 1}},
		Asks:       []domain.PriceLevel{{Price: 50000, Qty: 1}},
		LastUpdate: time.Now(),
	}

	require.Eventually(t, func() bool {
		_, ok := pool.Orderbook("BTCUSDT")
		return ok
	}, time.Second, 5*time.Millisecond)

	book, ok := pool.Orderbook("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 49990.0, book.BestBid())
	assert.Equal(t, 50000.0, book.BestAsk())

	stats := pool.Stats()
	assert.Equal(t, 1, stats.ActiveConns)
}

func TestDepthPoolEvict(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 4, testLogger())
	defer pool.Close()

	pool.Ensure(context.Background(), []string{"A", "B"})
	pool.Evict([]string{"A", "unknown"})

	assert.Equal(t, []string{"B"}, pool.Tracked())
	assert.True(t, dialer.stream("A").isClosed())
}

func TestDepthPoolCloseIsIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 4, testLogger())

	pool.Ensure(context.Background(), []string{"A", "B"})
	pool.Close()
	pool.Close()

	assert.Empty(t, pool.Tracked())
	assert.True(t, dialer.stream("A").isClosed())
	assert.True(t, dialer.stream("B").isClosed())

	// Ensure after Close is a no-op.
	pool.Ensure(context.Background(), []string{"C"})
	assert.Empty(t, pool.Tracked())
}

func TestDepthPoolKeepsLastBookWhenStreamChannelCloses(t *testing.T) {
	dialer := newFakeDialer()
	pool := NewDepthPool(dialer.dial, 2, testLogger())
	defer pool.Close()

	pool.Ensure(context.Background(), []string{"A"})
	stream := dialer.stream("A")
	stream.books <- domain.DepthBook{
		Symbol: "A",
		Bids:   []domain.PriceLevel{{Price: 100, Qty: 1}},
	}
	require.Eventually(t, func() bool {
		_, ok := pool.Orderbook("A")
		return ok
	}, time.Second, 5*time.Millisecond)

	close(stream.books)
	time.Sleep(10 * time.Millisecond)

	// The reader stopped instead of applying zero-value receives; the last
	// snapshot stays readable.
	book, ok := pool.Orderbook("A")
	require.True(t, ok)
	require.Len(t, book.Bids, 1)
	assert.InDelta(t, 100.0, book.Bids[0].Price, 1e-9)
}

func TestDepthPoolOrderbookUntracked(t *testing.T) {
	pool := NewDepthPool(newFakeDialer().dial, 2, testLogger())
	defer pool.Close()

	_, ok := pool.Orderbook("NOPE")
	assert.False(t, ok)
}
