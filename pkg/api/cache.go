package api

import (
	"context"
	"errors"
	"time"
)

var (
	errCacheDisabled = errors.New("cache disabled")
	errCacheStopped  = errors.New("cache stopped")
	errNoLoader      = errors.New("no loader")
)

// Cache stores rendered layer documents by selection key. Purge drops every
// entry; it runs whenever the data files are re-imported.
type Cache interface {
	Get(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error)
	Purge(ctx context.Context) error
	Close()
}

// cacheRequest models a single cache lookup, population attempt or purge.
// Using one struct keeps the channel signature compact so the goroutine that
// owns the cache reasons about a single message type.
type cacheRequest struct {
	ctx    context.Context
	key    string
	purge  bool
	loader func(context.Context) ([]byte, error)
	reply  chan cacheResponse
}

type cacheResponse struct {
	data []byte
	err  error
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// ResponseCache keeps rendered /api/layers bodies in memory so repeated
// sidebar states within the TTL skip the database. A dedicated goroutine
// owns the map; callers talk to it over channels.
type ResponseCache struct {
	ttl      time.Duration
	requests chan cacheRequest
	quit     chan struct{}
	now      func() time.Time
}

// NewResponseCache starts the caching goroutine immediately. A non-positive
// ttl disables caching and returns nil; a nil *ResponseCache is usable and
// reports errCacheDisabled.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		return nil
	}
	cache := &ResponseCache{
		ttl:      ttl,
		requests: make(chan cacheRequest),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
	go cache.loop()
	return cache
}

// Close stops the cache goroutine. Subsequent calls have no effect.
func (c *ResponseCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
		return
	default:
	}
	close(c.quit)
}

// Get returns cached bytes for key or invokes loader to produce them.
// Callers receive a private copy.
func (c *ResponseCache) Get(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	resp, err := c.send(ctx, cacheRequest{ctx: ctx, key: key, loader: loader})
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}
	if resp.data == nil {
		return nil, nil
	}
	copyBuf := make([]byte, len(resp.data))
	copy(copyBuf, resp.data)
	return copyBuf, nil
}

// Purge forgets every entry.
func (c *ResponseCache) Purge(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.send(ctx, cacheRequest{ctx: ctx, purge: true})
	return err
}

func (c *ResponseCache) send(ctx context.Context, req cacheRequest) (cacheResponse, error) {
	if c == nil {
		return cacheResponse{}, errCacheDisabled
	}
	req.reply = make(chan cacheResponse, 1)
	select {
	case <-ctx.Done():
		return cacheResponse{}, ctx.Err()
	case <-c.quit:
		return cacheResponse{}, errCacheStopped
	case c.requests <- req:
	}
	select {
	case <-ctx.Done():
		return cacheResponse{}, ctx.Err()
	case <-c.quit:
		return cacheResponse{}, errCacheStopped
	case resp := <-req.reply:
		return resp, nil
	}
}

// loop serialises all cache access inside a single goroutine so plain maps
// need no locking.
func (c *ResponseCache) loop() {
	store := make(map[string]cacheEntry)
	for {
		select {
		case <-c.quit:
			return
		case req := <-c.requests:
			if req.purge {
				store = make(map[string]cacheEntry)
				req.reply <- cacheResponse{}
				continue
			}
			now := c.now()
			if entry, ok := store[req.key]; ok && now.Before(entry.expires) {
				req.reply <- cacheResponse{data: entry.data}
				continue
			}
			if req.loader == nil {
				req.reply <- cacheResponse{err: errNoLoader}
				continue
			}
			data, err := req.loader(req.ctx)
			if err == nil && data != nil {
				buf := make([]byte, len(data))
				copy(buf, data)
				store[req.key] = cacheEntry{data: buf, expires: now.Add(c.ttl)}
			} else if err != nil {
				delete(store, req.key)
			}
			req.reply <- cacheResponse{data: data, err: err}
		}
	}
}
