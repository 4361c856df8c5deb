package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestFixedWindowCeiling(t *testing.T) {
	store := NewMemoryStore()
	lim := NewFixedWindow(store, "sustained", 5, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := lim.Allow(ctx, "tenant:t1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be within the ceiling", i+1)
		}
	}

	allowed, err := lim.Allow(ctx, "tenant:t1")
	if err != nil {
		t.Fatalf("allow over ceiling: %v", err)
	}
	if allowed {
		t.Fatal("request beyond the ceiling must be rejected")
	}

	remaining, err := lim.Remaining(ctx, "tenant:t1")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
}

func TestFixedWindowResetsExactlyAtBoundary(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	now := func() time.Time { return current }

	store := NewMemoryStore()
	store.now = now

	lim := NewFixedWindow(store, "sustained", 2, time.Hour)
	lim.now = now

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if allowed, _ := lim.Allow(ctx, "tenant:t1"); !allowed {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if allowed, _ := lim.Allow(ctx, "tenant:t1"); allowed {
		t.Fatal("third request in the window must be rejected")
	}

	resetAt := lim.Reset()

	// One second before the boundary: still rejected.
	current = resetAt.Add(-time.Second)
	if allowed, _ := lim.Allow(ctx, "tenant:t1"); allowed {
		t.Fatal("request before the boundary must still be rejected")
	}

	// At the boundary the count starts over.
	current = resetAt
	if allowed, _ := lim.Allow(ctx, "tenant:t1"); !allowed {
		t.Fatal("request at the window boundary must pass")
	}
}

func TestFixedWindowKeysAreTierScoped(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	now := func() time.Time { return current }

	store := NewMemoryStore()
	store.now = now

	burst := NewFixedWindow(store, "burst", 1, time.Hour)
	burst.now = now
	sustained := NewFixedWindow(store, "sustained", 1, time.Hour)
	sustained.now = now

	ctx := context.Background()

	if allowed, _ := burst.Allow(ctx, "ip:10.0.0.1"); !allowed {
		t.Fatal("burst tier should start empty")
	}
	if allowed, _ := sustained.Allow(ctx, "ip:10.0.0.1"); !allowed {
		t.Fatal("sustained tier must not share the burst tier's count")
	}
}

func TestMemoryStoreExpiresBuckets(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if n, err := store.IncrWithTTL(ctx, "k", 10*time.Millisecond); err != nil || n != 1 {
		t.Fatalf("first incr: n=%d err=%v", n, err)
	}

	time.Sleep(20 * time.Millisecond)

	if n, _ := store.Count(ctx, "k"); n != 0 {
		t.Fatalf("expected expired bucket to read 0, got %d", n)
	}
	if n, _ := store.IncrWithTTL(ctx, "k", 10*time.Millisecond); n != 1 {
		t.Fatalf("expected a fresh bucket after expiry, got %d", n)
	}
}
