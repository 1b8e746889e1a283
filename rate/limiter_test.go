package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return limiter, mr
}

func TestWindowBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 60})
	ctx := context.Background()

	for i := 1; i <= 60; i++ {
		allowed, err := limiter.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("Allow %d error: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d unexpectedly rejected", i)
		}
	}

	allowed, err := limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if allowed {
		t.Fatal("61st request within the window must be rejected")
	}

	// Other keys are unaffected.
	allowed, err = limiter.Allow(ctx, "user-2")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if !allowed {
		t.Fatal("independent key should have its own budget")
	}
}

func TestWindowRollover(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if allowed, err := limiter.Allow(ctx, "user-1"); err != nil || !allowed {
			t.Fatalf("warmup request rejected: allowed=%v err=%v", allowed, err)
		}
	}
	if allowed, _ := limiter.Allow(ctx, "user-1"); allowed {
		t.Fatal("expected rejection at budget")
	}

	mr.FastForward(61 * time.Second)

	allowed, err := limiter.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow error after rollover: %v", err)
	}
	if !allowed {
		t.Fatal("expected fresh budget after window rollover")
	}
}

func TestRemaining(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 5})
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "user-1")
	if err != nil {
		t.Fatalf("Remaining error: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected full budget for unseen key, got %d", remaining)
	}

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "user-1"); err != nil {
			t.Fatalf("Allow error: %v", err)
		}
	}

	remaining, err = limiter.Remaining(ctx, "user-1")
	if err != nil {
		t.Fatalf("Remaining error: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining, got %d", remaining)
	}
}

func TestFailOpenWhenStoreDown(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 1})
	ctx := context.Background()

	mr.Close()

	allowed, err := limiter.Allow(ctx, "user-1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !allowed {
		t.Fatal("store failure must fail open")
	}
}

func TestNewValidation(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New(rdb, Config{Window: 0, MaxRequests: 10}); err == nil {
		t.Fatal("expected error for zero window")
	}
	if _, err := New(rdb, Config{Window: time.Minute, MaxRequests: 0}); err == nil {
		t.Fatal("expected error for zero max requests")
	}
}
