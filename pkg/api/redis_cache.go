package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares rendered layers between several server instances.
// Keys are namespaced by a generation counter; Purge bumps the counter so
// old entries simply age out instead of being scanned and deleted.
type RedisCache struct {
	rc     *redis.Client
	ttl    time.Duration
	prefix string
	logf   func(string, ...any)
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// NewRedisCache pings rc and wraps it. prefix separates deployments that
// share one Redis database.
func NewRedisCache(ctx context.Context, rc *redis.Client, ttl time.Duration, prefix string) (*RedisCache, error) {
	if rc == nil {
		return nil, errCacheDisabled
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if prefix == "" {
		prefix = "ncm"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rc: rc, ttl: ttl, prefix: prefix, logf: log.Printf}, nil
}

func (c *RedisCache) generationKey() string { return c.prefix + ":layers:gen" }

func (c *RedisCache) generation(ctx context.Context) (string, error) {
	gen, err := c.rc.Get(ctx, c.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// Get serves key from Redis or runs loader and stores its result. Redis
// failures are logged and degrade to an uncached load.
func (c *RedisCache) Get(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if loader == nil {
		return nil, errNoLoader
	}
	gen, err := c.generation(ctx)
	if err != nil {
		c.logf("redis cache generation: %v", err)
		return loader(ctx)
	}
	full := fmt.Sprintf("%s:layers:%s:%s", c.prefix, gen, key)

	data, err := c.rc.Get(ctx, full).Bytes()
	switch {
	case err == nil:
		return data, nil
	case !errors.Is(err, redis.Nil):
		c.logf("redis cache get: %v", err)
	}

	data, err = loader(ctx)
	if err != nil {
		return nil, err
	}
	if setErr := c.rc.Set(ctx, full, data, c.ttl).Err(); setErr != nil {
		c.logf("redis cache set: %v", setErr)
	}
	return data, nil
}

// Purge starts a new generation.
func (c *RedisCache) Purge(ctx context.Context) error {
	if err := c.rc.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis purge: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *RedisCache) Close() {
	if err := c.rc.Close(); err != nil {
		c.logf("redis close: %v", err)
	}
}
