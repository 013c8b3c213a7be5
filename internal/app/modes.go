package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/engine"
	"github.com/alanyoungcy/triarb/internal/feed"
	"github.com/alanyoungcy/triarb/internal/graph"
	"github.com/alanyoungcy/triarb/internal/server"
)

const (
	scanLockKey = "scan"
	scanLockTTL = 1 * time.Hour

	summaryPublishEvery = 30 * time.Second
	summaryTTL          = 2 * time.Minute
)

// ScanMode runs the full pipeline: quote feed, scan loop, depth
// confirmation, and virtual execution, plus the optional archiver and
// summary publisher.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, scanLockKey, scanLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another scan instance is already recording: %w", err)
			}
			return fmt.Errorf("app: acquire scan lock: %w", err)
		}
		defer unlock()
	}

	loops, err := a.loadOrBuildLoops(ctx, deps)
	if err != nil {
		return err
	}

	scanner := a.buildScanner(deps, loops, true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scanner.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	if deps.SummaryCache != nil {
		g.Go(func() error {
			return a.publishSummaries(ctx, deps)
		})
	}

	if a.cfg.Graph.RebuildInterval.Duration > 0 {
		g.Go(func() error {
			return a.rebuildLoops(ctx, deps, scanner)
		})
	}

	if a.cfg.Server.Enabled {
		g.Go(func() error {
			return a.statusServer(deps).Run(ctx)
		})
	}

	return g.Wait()
}

// MonitorMode evaluates and logs opportunities without recording trades.
// When a signal bus is wired it also tails trades recorded by a concurrent
// scan instance.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	loops, err := a.loadOrBuildLoops(ctx, deps)
	if err != nil {
		return err
	}

	scanner := a.buildScanner(deps, loops, false)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scanner.Run(ctx)
	})

	if deps.SignalBus != nil {
		g.Go(func() error {
			return a.tailTrades(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		g.Go(func() error {
			return a.statusServer(deps).Run(ctx)
		})
	}

	return g.Wait()
}

// BuildLoopsMode fetches the market graph, enumerates loops, writes the
// loop file, and reports how much of the loop set the depth-pool budget can
// cover. It exits when done.
func (a *App) BuildLoopsMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting build-loops mode")

	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, "build-loops", time.Minute)
		if err != nil {
			return fmt.Errorf("app: acquire build-loops lock: %w", err)
		}
		defer unlock()
	}

	markets, err := deps.Exchange.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("app: fetch exchange info: %w", err)
	}

	loops := deps.Builder.BuildLoops(markets, a.cfg.Graph.Anchors)
	loops = deps.Builder.FilterValid(loops, markets)
	if err := graph.SaveLoops(a.cfg.Engine.LoopFile, loops); err != nil {
		return fmt.Errorf("app: save loop file: %w", err)
	}

	// How many loops fit inside the depth budget, and which missing
	// symbols would unlock the most.
	symbols := loopSymbols(loops)
	budget := deps.Prio.Prioritize(symbols, a.cfg.Depth.MaxSymbols)
	report := deps.Prio.AnalyzeCoverage(loops, budget)

	a.logger.InfoContext(ctx, "loop file written",
		slog.String("path", a.cfg.Engine.LoopFile),
		slog.Int("markets", len(markets)),
		slog.Int("loops", report.TotalLoops),
		slog.Int("depth_covered", report.CoveredLoops),
		slog.Float64("depth_coverage", report.CoveredFraction),
	)
	for i, mi := range report.MissingImpact {
		if i >= 10 {
			break
		}
		a.logger.InfoContext(ctx, "uncovered symbol",
			slog.String("symbol", mi.Symbol),
			slog.Int("blocked_loops", mi.BlockedLoops),
		)
	}
	return nil
}

// buildScanner assembles a scanner over the loop set. The feed subscribes
// to exactly the symbols the loops trade through.
func (a *App) buildScanner(deps *Dependencies, loops []domain.Loop, record bool) *engine.Scanner {
	symbols := loopSymbols(loops)
	newFeed := func() *feed.QuoteFeed {
		return deps.NewFeed(symbols)
	}
	return engine.NewScanner(
		engine.Params{
			TickInterval:  a.cfg.Engine.TickInterval.Duration,
			StartAmount:   a.cfg.Engine.StartAmount,
			RoughEdgePct:  a.cfg.Engine.RoughEdgePct,
			MaxCandidates: a.cfg.Engine.MaxCandidates,
			QuoteMaxAge:   a.cfg.Engine.QuoteMaxAge.Duration,
			RecordTrades:  record,
		},
		loops,
		newFeed,
		deps.Pool,
		deps.Calc,
		deps.Prio,
		deps.Exec,
		deps.Ledger,
		deps.SignalBus,
		deps.Notifier,
		a.logger,
	)
}

// loadOrBuildLoops loads the loop file and validates it against the live
// market set, rebuilding from scratch when the file is missing.
func (a *App) loadOrBuildLoops(ctx context.Context, deps *Dependencies) ([]domain.Loop, error) {
	markets, err := deps.Exchange.ExchangeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: fetch exchange info: %w", err)
	}

	loops, err := graph.LoadLoops(a.cfg.Engine.LoopFile)
	switch {
	case err == nil:
		loops = deps.Builder.FilterValid(loops, markets)
		a.logger.InfoContext(ctx, "loop file loaded",
			slog.String("path", a.cfg.Engine.LoopFile),
			slog.Int("loops", len(loops)),
		)
	case errors.Is(err, os.ErrNotExist):
		a.logger.InfoContext(ctx, "loop file missing, building",
			slog.String("path", a.cfg.Engine.LoopFile),
		)
		loops = deps.Builder.BuildLoops(markets, a.cfg.Graph.Anchors)
		loops = deps.Builder.FilterValid(loops, markets)
		if err := graph.SaveLoops(a.cfg.Engine.LoopFile, loops); err != nil {
			return nil, fmt.Errorf("app: save loop file: %w", err)
		}
	default:
		return nil, fmt.Errorf("app: load loop file: %w", err)
	}

	if len(loops) == 0 {
		return nil, fmt.Errorf("app: no valid loops for anchors %v", a.cfg.Graph.Anchors)
	}
	return loops, nil
}

// rebuildLoops periodically refreshes the market graph and swaps the
// scanner's loop set in place.
func (a *App) rebuildLoops(ctx context.Context, deps *Dependencies, scanner *engine.Scanner) error {
	ticker := time.NewTicker(a.cfg.Graph.RebuildInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			markets, err := deps.Exchange.ExchangeInfo(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "graph rebuild failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			loops := deps.Builder.BuildLoops(markets, a.cfg.Graph.Anchors)
			loops = deps.Builder.FilterValid(loops, markets)
			if len(loops) == 0 {
				a.logger.WarnContext(ctx, "graph rebuild produced no loops, keeping current set")
				continue
			}
			scanner.UpdateLoops(loops)
			if err := graph.SaveLoops(a.cfg.Engine.LoopFile, loops); err != nil {
				a.logger.WarnContext(ctx, "loop file update failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// publishSummaries pushes the running ledger summary into Redis so external
// dashboards can read session state.
func (a *App) publishSummaries(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(summaryPublishEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := deps.SummaryCache.SetSummary(ctx, deps.Ledger.Summary(), summaryTTL); err != nil {
				a.logger.WarnContext(ctx, "summary publish failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// tailTrades subscribes to the trades channel and logs entries recorded by
// other instances.
func (a *App) tailTrades(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.SignalBus.Subscribe(ctx, engine.TradesChannel)
	if err != nil {
		return fmt.Errorf("app: subscribe trades: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var entry domain.LedgerEntry
			if err := json.Unmarshal(payload, &entry); err != nil {
				a.logger.WarnContext(ctx, "malformed trade event",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "trade recorded elsewhere",
				slog.String("trade_id", entry.ID),
				slog.String("loop", entry.Loop.ID()),
				slog.Float64("net_profit", entry.NetProfit),
			)
		}
	}
}

// statusServer builds the read-only status API over the session ledger.
func (a *App) statusServer(deps *Dependencies) *server.Server {
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, deps.Ledger, a.logger)
}

// loopSymbols returns the distinct market symbols across a loop set.
func loopSymbols(loops []domain.Loop) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range loops {
		for _, sym := range l.Symbols() {
			if !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
			}
		}
	}
	return out
}
