// Package engine runs the scan loop: rough top-of-book screening of every
// loop, depth promotion for the best candidates, VWAP confirmation, and
// virtual execution of opportunities that survive.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/executor"
	"github.com/alanyoungcy/triarb/internal/feed"
	"github.com/alanyoungcy/triarb/internal/profit"
	"github.com/alanyoungcy/triarb/internal/rank"
)

const (
	// TradesChannel is the bus channel recorded trades are published on.
	TradesChannel = "triarb:trades"
	// OpportunitiesChannel carries every confirmed estimate, recorded or not.
	OpportunitiesChannel = "triarb:opportunities"

	cleanupInterval   = 30 * time.Second
	summaryInterval   = 1 * time.Minute
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// Notifier is the subset of the notification layer the scanner uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// FeedFactory builds a fresh quote feed over a new stream. The scanner dials
// a new feed whenever the current one goes stale.
type FeedFactory func() *feed.QuoteFeed

// Params are the scan-loop knobs.
type Params struct {
	TickInterval time.Duration
	StartAmount  float64
	// RoughEdgePct is the minimum top-of-book profit fraction for a loop
	// to be promoted to depth confirmation.
	RoughEdgePct float64
	// MaxCandidates bounds VWAP confirmations per tick.
	MaxCandidates int
	QuoteMaxAge   time.Duration
	// RecordTrades controls whether confirmed opportunities are virtually
	// executed. Monitor mode sets it false and only logs.
	RecordTrades bool
}

// Scanner drives the per-tick evaluation pipeline over a fixed loop set.
type Scanner struct {
	params Params

	loopsMu sync.RWMutex
	loops   []domain.Loop

	newFeed  FeedFactory
	feed     *feed.QuoteFeed
	pool     *feed.DepthPool
	calc     *profit.Calculator
	prio     *rank.Prioritizer
	exec     *executor.VirtualExecutor
	ledger   *executor.Ledger
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger

	ticks         uint64
	opportunities uint64
}

// NewScanner assembles a scanner. bus and notifier may be nil.
func NewScanner(
	params Params,
	loops []domain.Loop,
	newFeed FeedFactory,
	pool *feed.DepthPool,
	calc *profit.Calculator,
	prio *rank.Prioritizer,
	exec *executor.VirtualExecutor,
	ledger *executor.Ledger,
	bus domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		params:   params,
		loops:    loops,
		newFeed:  newFeed,
		pool:     pool,
		calc:     calc,
		prio:     prio,
		exec:     exec,
		ledger:   ledger,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// UpdateLoops swaps the loop set in place. Used by the periodic graph
// rebuild; the next tick evaluates the new set.
func (s *Scanner) UpdateLoops(loops []domain.Loop) {
	s.loopsMu.Lock()
	s.loops = loops
	s.loopsMu.Unlock()
	s.logger.Info("loop set updated", slog.Int("loops", len(loops)))
}

// Run executes the scan loop until the context is cancelled. It owns the
// quote feed's lifecycle, reconnecting with backoff when the feed stales.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started",
		slog.Int("loops", len(s.loops)),
		slog.Duration("tick_interval", s.params.TickInterval),
		slog.Bool("record_trades", s.params.RecordTrades),
	)
	defer s.logger.Info("scanner stopped")

	if err := s.connectFeed(ctx); err != nil {
		return err
	}
	defer func() {
		if s.feed != nil {
			s.feed.Disconnect()
		}
		s.pool.Close()
	}()

	ticker := time.NewTicker(s.params.TickInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()
	summary := time.NewTicker(summaryInterval)
	defer summary.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		case <-cleanup.C:
			s.exec.Cleanup()
		case <-summary.C:
			s.logSummary()
		}
	}
}

// tick runs one full evaluation pass. A missing or stale feed skips
// evaluation for the tick and triggers a reconnect; stale state must never
// produce a trade. The feed is nil when a previous reconnect was interrupted
// by shutdown, so a pending tick that fires before ctx.Done is observed must
// not touch it.
func (s *Scanner) tick(ctx context.Context) {
	s.ticks++

	if s.feed == nil || s.feed.IsStale(s.params.QuoteMaxAge) {
		s.logger.Warn("quote feed stale, reconnecting")
		s.notifyEvent(ctx, "feed_disconnected", "Feed disconnected",
			"quote feed went stale, reconnecting")
		if err := s.connectFeed(ctx); err != nil {
			s.logger.Error("feed reconnect failed", slog.String("error", err.Error()))
		}
		return
	}

	quotes := s.feed.AllQuotes()
	candidates := s.screen(quotes)
	if len(candidates) == 0 {
		return
	}

	s.promote(ctx, candidates)
	s.confirm(ctx, candidates, quotes)
}

// screen runs the cheap top-of-book pass over every loop and returns the
// candidates whose rough edge clears the promotion threshold, best first,
// capped at MaxCandidates. Loops missing a quote are skipped for the tick.
func (s *Scanner) screen(quotes map[string]domain.Quote) []domain.ProfitEstimate {
	s.loopsMu.RLock()
	loops := s.loops
	s.loopsMu.RUnlock()

	var candidates []domain.ProfitEstimate
	for _, loop := range loops {
		est, err := s.calc.EvaluateTOB(loop, quotes, s.params.StartAmount)
		if err != nil {
			continue
		}
		if est.ProfitPct >= s.params.RoughEdgePct {
			candidates = append(candidates, est)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ProfitPct > candidates[j].ProfitPct
	})
	if len(candidates) > s.params.MaxCandidates {
		candidates = candidates[:s.params.MaxCandidates]
	}
	return candidates
}

// promote asks the depth pool to track the candidate symbols, ranked so the
// highest-value symbols win the pool's capacity.
func (s *Scanner) promote(ctx context.Context, candidates []domain.ProfitEstimate) {
	seen := make(map[string]bool)
	var symbols []string
	for _, c := range candidates {
		for _, sym := range c.Loop.Symbols() {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	s.pool.Ensure(ctx, s.prio.Prioritize(symbols, 0))
}

// confirm re-prices each candidate against depth and virtually executes the
// ones that stay profitable. Legs without a tracked book fall back to top of
// book inside the calculator.
func (s *Scanner) confirm(ctx context.Context, candidates []domain.ProfitEstimate, quotes map[string]domain.Quote) {
	for _, cand := range candidates {
		books := make(map[string]domain.DepthBook)
		for _, sym := range cand.Loop.Symbols() {
			if book, ok := s.pool.Orderbook(sym); ok {
				books[sym] = book
			}
		}

		est, err := s.calc.EvaluateDepth(cand.Loop, quotes, books, s.params.StartAmount)
		if err != nil || !est.IsProfitable {
			continue
		}

		s.opportunities++
		s.logger.Info("opportunity confirmed",
			slog.String("loop", est.Loop.ID()),
			slog.String("mode", est.Mode.String()),
			slog.Float64("profit_pct", est.ProfitPct),
			slog.Float64("net_profit", est.NetProfit),
		)
		s.publishOpportunity(ctx, est)

		if !s.params.RecordTrades {
			continue
		}
		entry, err := s.exec.Execute(ctx, est)
		if err != nil || entry.ID == "" {
			continue
		}
		s.publishTrade(ctx, entry)
		s.notifyEvent(ctx, "trade_recorded", "Trade recorded",
			fmt.Sprintf("%s %s net %.4f (%.4f%%)",
				entry.Loop.ID(), entry.Mode, entry.NetProfit, entry.ProfitPct*100))
	}
}

// connectFeed dials a fresh quote feed, retrying with exponential backoff
// and jitter until connected or the context is cancelled. Any previous feed
// is disconnected first.
func (s *Scanner) connectFeed(ctx context.Context) error {
	if s.feed != nil {
		s.feed.Disconnect()
		s.feed = nil
	}

	delay := reconnectDelay
	for attempt := 1; ; attempt++ {
		f := s.newFeed()
		err := f.Connect(ctx)
		if err == nil {
			s.feed = f
			return nil
		}
		s.logger.Warn("feed connect failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		jitter := time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// publishOpportunity emits a confirmed estimate on the signal bus when one
// is wired. Monitor mode publishes these without ever recording a trade.
func (s *Scanner) publishOpportunity(ctx context.Context, est domain.ProfitEstimate) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(est)
	if err != nil {
		s.logger.Warn("marshal opportunity event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, OpportunitiesChannel, payload); err != nil {
		s.logger.Warn("publish opportunity event failed",
			slog.String("loop", est.Loop.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// publishTrade emits the recorded entry on the signal bus when one is wired.
func (s *Scanner) publishTrade(ctx context.Context, entry domain.LedgerEntry) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("marshal trade event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, TradesChannel, payload); err != nil {
		s.logger.Warn("publish trade event failed",
			slog.String("trade_id", entry.ID),
			slog.String("error", err.Error()),
		)
	}
}

// notifyEvent forwards an event to the notifier when one is wired.
func (s *Scanner) notifyEvent(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.Warn("notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// logSummary writes the periodic health line with feed, pool, and ledger
// state.
func (s *Scanner) logSummary() {
	var fs feed.FeedStats
	if s.feed != nil {
		fs = s.feed.Stats()
	}
	ps := s.pool.Stats()
	ls := s.ledger.Summary()
	s.logger.Info("scan summary",
		slog.Uint64("ticks", s.ticks),
		slog.Uint64("opportunities", s.opportunities),
		slog.Int("feed_symbols", fs.Symbols),
		slog.Bool("feed_connected", fs.Connected),
		slog.Int("depth_tracked", ps.Tracked),
		slog.Int("trades", ls.Trades),
		slog.Float64("cum_profit", ls.CumProfit),
	)
}
