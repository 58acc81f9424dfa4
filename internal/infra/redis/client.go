package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/somicard/internal/core/domain"
)

// Client wraps Redis operations for the shared quote cache.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration. An empty URL disables Redis.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func quoteKey(assetID string) string {
	return fmt.Sprintf("quote:%s:usd", assetID)
}

// QuoteCache stores the last fetched quote for an asset in Redis so that
// replicas share one upstream fetch per interval.
type QuoteCache struct {
	client  *Client
	assetID string
}

// NewQuoteCache returns a cache bound to assetID.
func NewQuoteCache(client *Client, assetID string) *QuoteCache {
	return &QuoteCache{client: client, assetID: assetID}
}

// Get returns the cached quote, or found=false when absent.
func (q *QuoteCache) Get(ctx context.Context) (domain.Quote, bool, error) {
	val, err := q.client.rdb.Get(ctx, quoteKey(q.assetID)).Bytes()
	if err == redis.Nil {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, fmt.Errorf("get failed: %w", err)
	}

	var quote domain.Quote
	if err := json.Unmarshal(val, &quote); err != nil {
		return domain.Quote{}, false, fmt.Errorf("decode cached quote: %w", err)
	}
	return quote, true, nil
}

// Set stores quote with the given TTL.
func (q *QuoteCache) Set(ctx context.Context, quote domain.Quote, ttl time.Duration) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	if err := q.client.rdb.Set(ctx, quoteKey(q.assetID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}
