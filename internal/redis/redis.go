package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"studyai/internal/config"
)

// Client wraps the go-redis client used for the summary cache.
type Client struct {
	inner *goredis.Client
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = goredis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// NewClient connects to the configured redis and verifies it with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis host not configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	inner := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := inner.Ping(pingCtx).Err(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Set stores a key with TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

// Get fetches the key as string. Missing keys return ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", errNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

// Del removes provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes the underlying go-redis client.
func (c *Client) Raw() *goredis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
