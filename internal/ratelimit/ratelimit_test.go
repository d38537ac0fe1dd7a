package ratelimit

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestLimiter_LocksAfterLimitWithinWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(NewMemoryStore(), 5, time.Minute, clock.Now)

	for i := 0; i < 5; i++ {
		locked, _, err := limiter.Check(ctx, "invite:abc|10.0.0.1")
		if err != nil {
			t.Fatalf("Check returned error: %v", err)
		}
		if locked {
			t.Fatalf("expected attempt %d to be allowed", i+1)
		}
		if err := limiter.Fail(ctx, "invite:abc|10.0.0.1"); err != nil {
			t.Fatalf("Fail returned error: %v", err)
		}
		clock.Advance(time.Second)
	}

	locked, retryAfter, err := limiter.Check(ctx, "invite:abc|10.0.0.1")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !locked {
		t.Fatalf("expected key to be locked after five failures")
	}
	if retryAfter != 55*time.Second {
		t.Fatalf("expected 55s until the oldest failure expires, got %v", retryAfter)
	}

	if locked, _, _ := limiter.Check(ctx, "invite:abc|10.0.0.2"); locked {
		t.Fatalf("expected other callers to be unaffected")
	}

	clock.Advance(56 * time.Second)
	if locked, _, _ := limiter.Check(ctx, "invite:abc|10.0.0.1"); locked {
		t.Fatalf("expected lock to lift once the window slides")
	}
}

func TestLimiter_ResetClearsFailures(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(nil, 2, time.Minute, clock.Now)

	_ = limiter.Fail(ctx, "k")
	_ = limiter.Fail(ctx, "k")
	if locked, _, _ := limiter.Check(ctx, "k"); !locked {
		t.Fatalf("expected lock after two failures with limit 2")
	}

	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if locked, _, _ := limiter.Check(ctx, "k"); locked {
		t.Fatalf("expected reset to clear the lock")
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = store.Append(ctx, "old", base)
	_ = store.Append(ctx, "mixed", base)
	_ = store.Append(ctx, "mixed", base.Add(2*time.Minute))

	removed, err := store.Prune(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one key removed, got %d", removed)
	}
	hits, _ := store.Since(ctx, "mixed", time.Time{})
	if len(hits) != 1 {
		t.Fatalf("expected one surviving hit, got %d", len(hits))
	}
}
