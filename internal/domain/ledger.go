package domain

import (
	"context"
	"time"
)

// LedgerEntry records one virtually executed loop. Entries are created only
// for loops that remain profitable under execution-time fills and are
// append-only once recorded.
type LedgerEntry struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Loop        Loop         `json:"loop"`
	Mode        EstimateMode `json:"mode"`
	Legs        []LegFill    `json:"legs"`
	StartAmount float64      `json:"start_amount"`
	FinalAmount float64      `json:"final_amount"`
	NetProfit   float64      `json:"net_profit"`
	ProfitPct   float64      `json:"profit_pct"`
}

// LedgerSummary is a pure read of the ledger's running aggregates.
type LedgerSummary struct {
	Trades        int       `json:"trades"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	CumProfit     float64   `json:"cum_profit"`
	MaxProfit     float64   `json:"max_profit"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	WinRate       float64   `json:"win_rate"`
	LastTradeTime time.Time `json:"last_trade_time"`
}

// LedgerSink is an append-only external destination for ledger entries
// (Postgres, CSV, object storage). Sink failures are logged by the ledger
// and never abort recording.
type LedgerSink interface {
	Append(ctx context.Context, entry LedgerEntry) error
	Name() string
}

// LedgerStore is the persistence interface for executed trades.
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) error
	ListRecent(ctx context.Context, limit int) ([]LedgerEntry, error)
	Totals(ctx context.Context) (trades int, cumProfit float64, err error)
}

// SignalBus publishes engine events (opportunities, recorded trades) to
// interested consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
