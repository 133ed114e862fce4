package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResponseCacheHitsWithinTTL(t *testing.T) {
	c := NewResponseCache(time.Minute)
	defer c.Close()

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("layers"), nil
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "k", load)
		if err != nil || string(got) != "layers" {
			t.Fatalf("Get = %q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader ran %d times, want 1", calls)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "k", load); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expired entry not reloaded, calls=%d", calls)
	}
}

func TestResponseCachePurge(t *testing.T) {
	c := NewResponseCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte{byte(calls)}, nil
	}
	first, _ := c.Get(ctx, "k", load)
	if err := c.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	second, _ := c.Get(ctx, "k", load)
	if first[0] == second[0] || calls != 2 {
		t.Fatalf("purge kept the entry: %v %v calls=%d", first, second, calls)
	}
}

func TestResponseCacheErrorsAreNotStored(t *testing.T) {
	c := NewResponseCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	if _, err := c.Get(ctx, "k", func(context.Context) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	got, err := c.Get(ctx, "k", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	if err != nil || string(got) != "ok" {
		t.Fatalf("Get after error = %q, %v", got, err)
	}
}

func TestResponseCacheDisabledAndStopped(t *testing.T) {
	var disabled *ResponseCache
	if NewResponseCache(0) != nil {
		t.Fatal("zero ttl should disable the cache")
	}
	if _, err := disabled.Get(context.Background(), "k", nil); !errors.Is(err, errCacheDisabled) {
		t.Fatalf("err = %v", err)
	}

	c := NewResponseCache(time.Minute)
	c.Close()
	c.Close()
	if _, err := c.Get(context.Background(), "k", nil); !errors.Is(err, errCacheStopped) {
		t.Fatalf("err = %v", err)
	}
}

func TestResponseCacheReturnsCopies(t *testing.T) {
	c := NewResponseCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	load := func(context.Context) ([]byte, error) { return []byte("abc"), nil }
	got, _ := c.Get(ctx, "k", load)
	got[0] = 'X'
	again, _ := c.Get(ctx, "k", load)
	if string(again) != "abc" {
		t.Fatalf("cached bytes mutated: %q", again)
	}
}
