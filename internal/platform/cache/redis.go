// Package cache stores short-lived JSON snapshots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/food-passport/api/internal/platform/config"
)

const (
	defaultTTL     = 30 * time.Second
	defaultTimeout = 2 * time.Second
)

// Client wraps go-redis with JSON snapshot helpers.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to cfg.URL. It returns (nil, nil) when Redis is not configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	opts.DialTimeout = defaultTimeout
	opts.ReadTimeout = defaultTimeout
	opts.WriteTimeout = defaultTimeout

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Load decodes the snapshot under key into dst. A miss returns (false, nil).
func (c *Client) Load(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Store writes value under key with the configured TTL.
func (c *Client) Store(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes every key with the given prefix.
func (c *Client) Invalidate(ctx context.Context, prefix string) error {
	if c == nil {
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Ping checks connectivity for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("cache: redis not configured")
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
