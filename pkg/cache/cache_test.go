package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(WithMaxSize(2), WithCleanupInterval(time.Minute))
	defer c.Close()
	ctx := context.Background()

	type payload struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	if err := c.Set(ctx, "a", payload{Name: "x", Value: 1.5}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got payload
	if err := c.Get(ctx, "a", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "x" || got.Value != 1.5 {
		t.Fatalf("got %+v", got)
	}

	if err := c.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("want ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var got string
	if err := c.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("want ErrCacheMiss after TTL, got %v", err)
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	c := NewMemoryCache(WithMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)
	time.Sleep(time.Millisecond)
	c.Set(ctx, "b", 2, time.Minute)
	time.Sleep(time.Millisecond)

	var n int
	if err := c.Get(ctx, "b", &n); err != nil {
		t.Fatalf("Get b: %v", err)
	}
	time.Sleep(time.Millisecond)

	c.Set(ctx, "c", 3, time.Minute)

	if err := c.Get(ctx, "a", &n); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("want a evicted, got %v", err)
	}
	if err := c.Get(ctx, "c", &n); err != nil || n != 3 {
		t.Fatalf("Get c: %v n=%d", err, n)
	}
}

func TestLayeredBackfillsLocal(t *testing.T) {
	local := NewMemoryCache()
	defer local.Close()
	remote := NewMemoryCache()
	defer remote.Close()

	l := NewLayered(local, remote, time.Minute)
	ctx := context.Background()

	// Seed only the remote layer, as another replica would have.
	if err := remote.Set(ctx, "k", 42, time.Minute); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	var n int
	if err := l.Get(ctx, "k", &n); err != nil || n != 42 {
		t.Fatalf("layered Get: %v n=%d", err, n)
	}

	// The read should have populated the local layer.
	if err := local.Get(ctx, "k", &n); err != nil || n != 42 {
		t.Fatalf("local after backfill: %v n=%d", err, n)
	}
}
