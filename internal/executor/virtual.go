// Package executor turns profitable estimates into ledger entries. No real
// orders are ever placed; fills replay the estimate's prices.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// VirtualExecutor records profitable loops on paper. The engine hands it the
// estimate computed at execution time; the executor re-checks profitability,
// applies the per-loop cooldown, and appends a ledger entry. Stale estimates
// from earlier in the tick must not be passed in.
type VirtualExecutor struct {
	ledger   *Ledger
	cooldown *Cooldown
	logger   *slog.Logger
}

// NewVirtualExecutor creates an executor recording into ledger. cooldownTTL
// suppresses repeat entries for a loop whose opportunity persists across
// ticks; zero disables suppression.
func NewVirtualExecutor(ledger *Ledger, cooldownTTL time.Duration, logger *slog.Logger) *VirtualExecutor {
	e := &VirtualExecutor{
		ledger: ledger,
		logger: logger.With(slog.String("component", "virtual_executor")),
	}
	if cooldownTTL > 0 {
		e.cooldown = NewCooldown(cooldownTTL)
	}
	return e
}

// Execute records the estimate as an executed trade. It returns
// ErrNotProfitable when the execution-time estimate no longer clears the
// threshold, in which case nothing is recorded. A loop still in cooldown is
// skipped silently with a zero entry and nil error.
func (e *VirtualExecutor) Execute(ctx context.Context, est domain.ProfitEstimate) (domain.LedgerEntry, error) {
	if !est.IsProfitable {
		e.logger.Debug("opportunity vanished at execution",
			slog.String("loop", est.Loop.ID()),
			slog.Float64("profit_pct", est.ProfitPct),
		)
		return domain.LedgerEntry{}, fmt.Errorf("executor: loop %s: %w",
			est.Loop.ID(), domain.ErrNotProfitable)
	}

	if e.cooldown != nil && e.cooldown.Suppressed(est.Loop.ID()) {
		e.logger.Debug("loop in cooldown, not recording",
			slog.String("loop", est.Loop.ID()),
		)
		return domain.LedgerEntry{}, nil
	}

	entry := domain.LedgerEntry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		Loop:        est.Loop,
		Mode:        est.Mode,
		Legs:        est.Legs,
		StartAmount: est.StartAmount,
		FinalAmount: est.FinalAmount,
		NetProfit:   est.NetProfit,
		ProfitPct:   est.ProfitPct,
	}
	e.ledger.Record(ctx, entry)
	return entry, nil
}

// Cleanup expires old cooldown state. Call periodically from the engine.
func (e *VirtualExecutor) Cleanup() {
	if e.cooldown != nil {
		e.cooldown.Cleanup()
	}
}
