// Package pricefeed fetches token prices from a CoinGecko-compatible API.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrThrottled is returned when the feed answers 429 or while a previous
// throttle is still in effect.
var ErrThrottled = errors.New("price feed throttled")

const defaultThrottleBackoff = 60 * time.Second

// Client implements FetchPrice against GET {base}/simple/price.
type Client struct {
	endpoint   string
	assetID    string
	httpClient *http.Client

	mu             sync.RWMutex
	throttledUntil time.Time
	now            func() time.Time
}

// NewClient creates a client for assetID quoted in USD.
func NewClient(endpoint, assetID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		assetID:  assetID,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

// AssetID returns the asset this client quotes.
func (c *Client) AssetID() string { return c.assetID }

// FetchPrice returns the current USD price. A missing or non-positive price
// field is an error.
func (c *Client) FetchPrice(ctx context.Context) (float64, error) {
	if wait := c.retryAfter(); wait > 0 {
		return 0, fmt.Errorf("%w, retry after: %v", ErrThrottled, wait)
	}

	q := url.Values{}
	q.Set("ids", c.assetID)
	q.Set("vs_currencies", "usd")
	reqURL := c.endpoint + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		c.recordThrottle(resp.Header.Get("Retry-After"))
		return 0, fmt.Errorf("%w (429)", ErrThrottled)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}

	price, ok := prices[c.assetID]["usd"]
	if !ok {
		return 0, fmt.Errorf("price for %s missing from response", c.assetID)
	}
	if price <= 0 {
		return 0, fmt.Errorf("invalid price for %s: %v", c.assetID, price)
	}
	return price, nil
}

func (c *Client) recordThrottle(retryAfter string) {
	wait := defaultThrottleBackoff
	if secs, err := time.ParseDuration(strings.TrimSpace(retryAfter) + "s"); err == nil && secs > 0 {
		wait = secs
	}

	c.mu.Lock()
	c.throttledUntil = c.now().Add(wait)
	c.mu.Unlock()
}

func (c *Client) retryAfter() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.throttledUntil.Sub(c.now())
}
