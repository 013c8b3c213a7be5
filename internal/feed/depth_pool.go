package feed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// DepthStream is one live order-book subscription. The platform layer
// provides the real WebSocket implementation; tests inject fakes.
type DepthStream interface {
	// Run delivers replacement snapshots on Books until the context is
	// cancelled, reconnecting internally as needed.
	Run(ctx context.Context) error
	// Books yields full replacement snapshots; only the latest matters.
	// Implementations may close the channel when the stream ends.
	Books() <-chan domain.DepthBook
	// Close stops the stream.
	Close()
}

// DepthDialFunc creates a depth stream for a symbol.
type DepthDialFunc func(symbol string) DepthStream

// PoolStats is a snapshot of the depth pool's occupancy.
type PoolStats struct {
	Tracked     int
	MaxCapacity int
	// ActiveConns counts tracked symbols that have received at least one
	// book snapshot.
	ActiveConns int
}

// poolEntry is the tracked state for one subscribed symbol. The book and
// the LRU timestamp live behind the entry's own mutex so reads never block
// inclusion or eviction of other symbols.
type poolEntry struct {
	symbol string
	stream DepthStream
	cancel context.CancelFunc

	mu       sync.Mutex
	book     domain.DepthBook
	hasBook  bool
	lastUsed time.Time
}

// touch refreshes the LRU timestamp.
func (e *poolEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastUsed = now
	e.mu.Unlock()
}

// snapshot returns the current book and whether one has arrived yet,
// refreshing the LRU timestamp as a side effect.
func (e *poolEntry) snapshot(now time.Time) (domain.DepthBook, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = now
	return e.book, e.hasBook
}

// DepthPool is the bounded set of symbols with live order-book depth.
// Ensure admits symbols up to MaxSymbols, evicting the least-recently-used
// tracked symbols to make room; reads count as use. Each entry's
// subscription reconnects independently and replaces its book wholesale on
// every message.
type DepthPool struct {
	dial   DepthDialFunc
	max    int
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*poolEntry
	closed  bool

	wg sync.WaitGroup
}

// NewDepthPool creates a pool bounded to maxSymbols subscriptions.
func NewDepthPool(dial DepthDialFunc, maxSymbols int, logger *slog.Logger) *DepthPool {
	return &DepthPool{
		dial:    dial,
		max:     maxSymbols,
		entries: make(map[string]*poolEntry, maxSymbols),
		logger:  logger.With(slog.String("component", "depth_pool")),
	}
}

// Ensure makes the given symbols tracked where capacity allows. Symbols
// already tracked have their LRU timestamp refreshed. For new symbols the
// pool evicts the least-recently-used tracked symbols (never ones in the
// requested set) to make room; requests that still cannot fit are silently
// skipped and callers fall back to top-of-book for those symbols.
func (p *DepthPool) Ensure(ctx context.Context, symbols []string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	requested := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		requested[sym] = true
	}

	var missing []string
	for _, sym := range symbols {
		if e, ok := p.entries[sym]; ok {
			e.touch(now)
			continue
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		return
	}

	for _, sym := range missing {
		if len(p.entries) >= p.max {
			if !p.evictOldestLocked(requested) {
				p.logger.Debug("depth pool full, skipping symbol",
					slog.String("symbol", sym),
				)
				continue
			}
		}
		p.addLocked(sym, now)
	}
}

// addLocked creates the subscription for sym. Caller must hold p.mu.
func (p *DepthPool) addLocked(sym string, now time.Time) {
	stream := p.dial(sym)
	// Subscriptions outlive the caller's context; their lifetime is bound
	// to the entry and ends at eviction or Close.
	entryCtx, cancel := context.WithCancel(context.Background())
	entry := &poolEntry{
		symbol:   sym,
		stream:   stream,
		cancel:   cancel,
		lastUsed: now,
	}
	p.entries[sym] = entry

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		_ = stream.Run(entryCtx)
	}()
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-entryCtx.Done():
				return
			case book, ok := <-stream.Books():
				// A closed channel means the stream is finished; keep the
				// last book and stop rather than applying zero values.
				if !ok {
					return
				}
				entry.mu.Lock()
				entry.book = book
				entry.hasBook = true
				entry.mu.Unlock()
			}
		}
	}()

	p.logger.Debug("depth subscription opened", slog.String("symbol", sym))
}

// evictOldestLocked removes the tracked symbol with the oldest lastUsed
// timestamp, skipping protected symbols. Returns false when nothing was
// evictable. Caller must hold p.mu.
func (p *DepthPool) evictOldestLocked(protected map[string]bool) bool {
	var victim *poolEntry
	var victimAt time.Time
	for sym, e := range p.entries {
		if protected[sym] {
			continue
		}
		e.mu.Lock()
		at := e.lastUsed
		e.mu.Unlock()
		if victim == nil || at.Before(victimAt) {
			victim = e
			victimAt = at
		}
	}
	if victim == nil {
		return false
	}
	p.removeLocked(victim)
	return true
}

// removeLocked tears one entry down. Caller must hold p.mu.
func (p *DepthPool) removeLocked(e *poolEntry) {
	e.cancel()
	e.stream.Close()
	delete(p.entries, e.symbol)
	p.logger.Debug("depth subscription evicted", slog.String("symbol", e.symbol))
}

// Evict removes specific symbols immediately, closing their subscriptions.
// Unknown symbols are ignored.
func (p *DepthPool) Evict(symbols []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sym := range symbols {
		if e, ok := p.entries[sym]; ok {
			p.removeLocked(e)
		}
	}
}

// Orderbook returns the current book for symbol, or false when the symbol
// is untracked or no snapshot has arrived yet. Reading refreshes the
// symbol's LRU timestamp; read access counts as use.
func (p *DepthPool) Orderbook(symbol string) (domain.DepthBook, bool) {
	p.mu.RLock()
	e, ok := p.entries[symbol]
	p.mu.RUnlock()
	if !ok {
		return domain.DepthBook{}, false
	}
	return e.snapshot(time.Now())
}

// Tracked returns the tracked symbols ordered most-recently-used first.
func (p *DepthPool) Tracked() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type used struct {
		sym string
		at  time.Time
	}
	all := make([]used, 0, len(p.entries))
	for sym, e := range p.entries {
		e.mu.Lock()
		all = append(all, used{sym, e.lastUsed})
		e.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })

	out := make([]string, len(all))
	for i, u := range all {
		out[i] = u.sym
	}
	return out
}

// Stats reports the pool's occupancy.
func (p *DepthPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := 0
	for _, e := range p.entries {
		e.mu.Lock()
		if e.hasBook {
			active++
		}
		e.mu.Unlock()
	}
	return PoolStats{
		Tracked:     len(p.entries),
		MaxCapacity: p.max,
		ActiveConns: active,
	}
}

// Close tears down every subscription and clears the pool. Idempotent; no
// book updates are applied after it returns.
func (p *DepthPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, e := range p.entries {
		e.cancel()
		e.stream.Close()
	}
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("depth pool closed")
}
