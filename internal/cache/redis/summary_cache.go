package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// summaryKey is where the live ledger summary is published for external
// dashboards.
const summaryKey = "triarb:summary"

// SummaryCache exposes the scanner's running ledger summary through Redis so
// operators can read session state without attaching to the process.
type SummaryCache struct {
	rdb *redis.Client
}

// NewSummaryCache creates a SummaryCache backed by the given Client.
func NewSummaryCache(c *Client) *SummaryCache {
	return &SummaryCache{rdb: c.Underlying()}
}

// SetSummary stores the summary as JSON with the given TTL. A zero TTL keeps
// the key until the next write.
func (sc *SummaryCache) SetSummary(ctx context.Context, s domain.LedgerSummary, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal summary: %w", err)
	}
	if err := sc.rdb.Set(ctx, summaryKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set summary: %w", err)
	}
	return nil
}

// GetSummary retrieves the last published summary. It returns
// domain.ErrNotFound when none has been published.
func (sc *SummaryCache) GetSummary(ctx context.Context) (domain.LedgerSummary, error) {
	data, err := sc.rdb.Get(ctx, summaryKey).Bytes()
	if err == redis.Nil {
		return domain.LedgerSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("redis: get summary: %w", err)
	}

	var s domain.LedgerSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("redis: parse summary: %w", err)
	}
	return s, nil
}
