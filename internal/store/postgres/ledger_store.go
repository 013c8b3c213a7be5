package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// LedgerStore implements domain.LedgerStore and domain.LedgerSink using
// PostgreSQL. Entries are append-only; there is no update path.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.LedgerStore = (*LedgerStore)(nil)
	_ domain.LedgerSink  = (*LedgerStore)(nil)
)

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Name implements domain.LedgerSink.
func (s *LedgerStore) Name() string { return "postgres" }

// Append inserts one ledger entry. Re-appending an existing ID is a no-op.
func (s *LedgerStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	legs, err := json.Marshal(entry.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs: %w", err)
	}
	path, err := json.Marshal(entry.Loop.Path)
	if err != nil {
		return fmt.Errorf("postgres: marshal path: %w", err)
	}
	pairs, err := json.Marshal(entry.Loop.Pairs)
	if err != nil {
		return fmt.Errorf("postgres: marshal pairs: %w", err)
	}

	const query = `
		INSERT INTO ledger_entries (
			id, recorded_at, loop_id, mode, legs, path, pairs,
			start_amount, final_amount, net_profit, profit_pct
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		entry.ID, entry.Timestamp, entry.Loop.ID(), entry.Mode.String(),
		legs, path, pairs,
		entry.StartAmount, entry.FinalAmount, entry.NetProfit, entry.ProfitPct,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert ledger entry: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first, up to limit.
func (s *LedgerStore) ListRecent(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, recorded_at, mode, legs, path, pairs,
		       start_amount, final_amount, net_profit, profit_pct
		FROM ledger_entries
		ORDER BY recorded_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent ledger entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedgerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ledger entries: %w", err)
	}
	return entries, nil
}

// Totals returns the trade count and cumulative net profit across all
// recorded entries.
func (s *LedgerStore) Totals(ctx context.Context) (int, float64, error) {
	var trades int
	var cumProfit float64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(SUM(net_profit), 0) FROM ledger_entries",
	).Scan(&trades, &cumProfit)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: ledger totals: %w", err)
	}
	return trades, cumProfit, nil
}

func scanLedgerRows(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e                 domain.LedgerEntry
			mode              string
			legs, path, pairs []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &mode, &legs, &path, &pairs,
			&e.StartAmount, &e.FinalAmount, &e.NetProfit, &e.ProfitPct,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(legs, &e.Legs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(path, &e.Loop.Path); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pairs, &e.Loop.Pairs); err != nil {
			return nil, err
		}
		e.Mode = parseMode(mode)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseMode(s string) domain.EstimateMode {
	switch s {
	case "vwap":
		return domain.ModeVWAP
	case "mixed":
		return domain.ModeMixed
	default:
		return domain.ModeTOB
	}
}
