// Package binance implements the exchange REST and streaming clients the
// engine consumes: the tradable-symbol list, the multiplexed best-bid/ask
// quote stream, and per-symbol order-book depth streams.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Client is a minimal REST client for the exchange's public market-data
// endpoints. Requests pass through a shared rate limiter so graph rebuilds
// cannot trip the exchange's IP weight limits.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a REST client for the given base URL with a sustained
// request budget of rps requests per second.
func NewClient(baseURL string, rps float64) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// ExchangeInfo fetches the full tradable-symbol list. Symbols whose status
// is not TRADING are returned with Tradable=false so the graph builder can
// exclude them.
func (c *Client) ExchangeInfo(ctx context.Context) ([]domain.Market, error) {
	var resp exchangeInfoResponse
	if err := c.getJSON(ctx, "/api/v3/exchangeInfo", &resp); err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		markets = append(markets, s.toDomainMarket())
	}
	return markets, nil
}

// getJSON performs a rate-limited GET and decodes the JSON response body.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
