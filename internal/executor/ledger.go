package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Ledger is the append-only record of virtually executed trades. It keeps
// the running aggregates in memory and fans each entry out to the attached
// sinks. A sink failure is logged and never aborts recording; the in-memory
// aggregates are the source of truth for the session.
type Ledger struct {
	logger *slog.Logger

	mu          sync.Mutex
	entries     []domain.LedgerEntry
	trades      int
	wins        int
	losses      int
	cumProfit   float64
	peakProfit  float64
	maxProfit   float64
	maxDrawdown float64
	lastEntry   domain.LedgerEntry

	sinks []domain.LedgerSink
}

// NewLedger creates an empty ledger with the given sinks.
func NewLedger(logger *slog.Logger, sinks ...domain.LedgerSink) *Ledger {
	return &Ledger{
		logger: logger.With(slog.String("component", "ledger")),
		sinks:  sinks,
	}
}

// Record appends one executed trade, updates the aggregates, and forwards
// the entry to every sink.
func (l *Ledger) Record(ctx context.Context, entry domain.LedgerEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.trades++
	if entry.NetProfit >= 0 {
		l.wins++
	} else {
		l.losses++
	}
	l.cumProfit += entry.NetProfit
	if l.cumProfit > l.peakProfit {
		l.peakProfit = l.cumProfit
	}
	if dd := l.peakProfit - l.cumProfit; dd > l.maxDrawdown {
		l.maxDrawdown = dd
	}
	if entry.NetProfit > l.maxProfit {
		l.maxProfit = entry.NetProfit
	}
	l.lastEntry = entry
	sinks := l.sinks
	l.mu.Unlock()

	l.logger.Info("trade recorded",
		slog.String("trade_id", entry.ID),
		slog.String("loop", entry.Loop.ID()),
		slog.String("mode", entry.Mode.String()),
		slog.Float64("net_profit", entry.NetProfit),
		slog.Float64("profit_pct", entry.ProfitPct),
	)

	for _, sink := range sinks {
		if err := sink.Append(ctx, entry); err != nil {
			l.logger.Warn("ledger sink append failed",
				slog.String("sink", sink.Name()),
				slog.String("trade_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Summary returns the running aggregates. Drawdown is measured peak to
// trough on the cumulative profit curve.
func (l *Ledger) Summary() domain.LedgerSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := domain.LedgerSummary{
		Trades:      l.trades,
		Wins:        l.wins,
		Losses:      l.losses,
		CumProfit:   l.cumProfit,
		MaxProfit:   l.maxProfit,
		MaxDrawdown: l.maxDrawdown,
	}
	if l.trades > 0 {
		s.WinRate = float64(l.wins) / float64(l.trades)
		s.LastTradeTime = l.lastEntry.Timestamp
	}
	return s
}

// Entries returns a copy of the recorded entries, newest last.
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
