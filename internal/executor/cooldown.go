package executor

import (
	"sync"
	"time"
)

// Cooldown prevents the same loop from being recorded more than once within
// a configurable window. An opportunity often persists across several ticks;
// without the cooldown every tick would append a near-identical entry. It is
// safe for concurrent use.
type Cooldown struct {
	seen map[string]time.Time // loop ID -> last recorded time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewCooldown creates a Cooldown that suppresses a loop for ttl after it was
// last recorded.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Suppressed returns true when loopID was recorded within the TTL window.
// Otherwise the loop is marked as recorded now and false is returned.
func (c *Cooldown) Suppressed(loopID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.seen[loopID]; ok {
		if now.Sub(last) < c.ttl {
			return true
		}
	}

	c.seen[loopID] = now
	return false
}

// Cleanup removes entries older than the TTL. Call periodically to prevent
// unbounded memory growth.
func (c *Cooldown) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, id)
		}
	}
}
