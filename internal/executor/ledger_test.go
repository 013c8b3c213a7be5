package executor

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
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink captures appended entries and optionally fails.
type recordingSink struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	fail    error
}

func (s *recordingSink) Append(ctx context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func entryWithProfit(id string, net float64) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Loop:      domain.Loop{Path: []string{"USDT", "BTC", "ETH", "USDT"}},
		NetProfit: net,
	}
}

func TestLedgerAggregates(t *testing.T) {
	l := NewLedger(testLogger())
	ctx := context.Background()

	l.Record(ctx, entryWithProfit("1", 5))
	l.Record(ctx, entryWithProfit("2", -2))
	l.Record(ctx, entryWithProfit("3", 10))

	s := l.Summary()
	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 13.0, s.CumProfit, 1e-9)
	assert.InDelta(t, 10.0, s.MaxProfit, 1e-9)
	assert.InDelta(t, 2.0/3, s.WinRate, 1e-9)
	assert.False(t, s.LastTradeTime.IsZero())

	assert.Len(t, l.Entries(), 3)
}

func TestLedgerZeroProfitCountsAsWin(t *testing.T) {
	l := NewLedger(testLogger())
	l.Record(context.Background(), entryWithProfit("1", 0))

	s := l.Summary()
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 0, s.Losses)
}

func TestLedgerDrawdownIsPeakToTrough(t *testing.T) {
	l := NewLedger(testLogger())
	ctx := context.Background()

	// Curve: 10, 16, 9, 4, 12. Peak 16, trough 4, drawdown 12.
	for _, net := range []float64{10, 6, -7, -5, 8} {
		l.Record(ctx, entryWithProfit("x", net))
	}

	s := l.Summary()
	assert.InDelta(t, 12.0, s.MaxDrawdown, 1e-9)
	assert.InDelta(t, 12.0, s.CumProfit, 1e-9)
}

func TestLedgerEmptySummary(t *testing.T) {
	s := NewLedger(testLogger()).Summary()
	assert.Equal(t, 0, s.Trades)
	assert.Equal(t, 0.0, s.WinRate)
	assert.True(t, s.LastTradeTime.IsZero())
}

func TestLedgerFansOutToSinks(t *testing.T) {
	good := &recordingSink{}
	bad := &recordingSink{fail: errors.New("disk full")}
	l := NewLedger(testLogger(), bad, good)
	ctx := context.Background()

	// The failing sink never blocks recording or the other sinks.
	l.Record(ctx, entryWithProfit("1", 1))
	l.Record(ctx, entryWithProfit("2", 2))

	assert.Equal(t, 2, good.count())
	assert.Equal(t, 2, l.Summary().Trades)
}

func TestLedgerEntriesReturnsCopy(t *testing.T) {
	l := NewLedger(testLogger())
	l.Record(context.Background(), entryWithProfit("1", 1))

	entries := l.Entries()
	require.Len(t, entries, 1)
	entries[0].ID = "mutated"

	assert.Equal(t, "1", l.Entries()[0].ID)
}
