package pricing

// Client fetches current pool mark prices over HTTP. Prices feed only the
// unrealized-PnL estimate — never settlement — so a failed fetch is
// survivable and reported upward as an error.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBase = "https://dlmm-api.meteora.ag"

	// Well under the documented public limit; the bot only prices a
	// handful of pools per reconciliation pass.
	priceRatePerSec = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the HTTP price client with rate limiting and retries.
// Implements ports.PriceProvider.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient creates a Client. An empty base falls back to the production
// API.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(priceRatePerSec, 5),
	}
}

type pairResponse struct {
	CurrentPrice float64 `json:"current_price"`
}

// PoolPrice returns the current price for a pool address.
func (c *Client) PoolPrice(ctx context.Context, pool string) (float64, error) {
	var out pairResponse
	url := fmt.Sprintf("%s/pair/%s", c.base, pool)
	if err := c.getWithRetry(ctx, url, &out); err != nil {
		return 0, fmt.Errorf("pricing.PoolPrice: %s: %w", pool, err)
	}
	if out.CurrentPrice <= 0 {
		return 0, fmt.Errorf("pricing.PoolPrice: %s: non-positive price %f", pool, out.CurrentPrice)
	}
	return out.CurrentPrice, nil
}

// getWithRetry does a GET with rate limiting, exponential backoff, and
// JSON decoding.
func (c *Client) getWithRetry(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("pricing: retryable status", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
