package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewRateLimiter(client, 2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	for i, want := range []bool{true, true, false} {
		allowed, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("allow failed: %v", err)
		}
		if allowed != want {
			t.Fatalf("hit %d: allowed=%v, want %v", i+1, allowed, want)
		}
	}

	other, err := limiter.Allow(ctx, "5.6.7.8")
	if err != nil || !other {
		t.Fatalf("expected other key to be independent, got %v err=%v", other, err)
	}

	now = now.Add(time.Minute)
	allowed, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil || !allowed {
		t.Fatalf("expected new window to allow, got %v err=%v", allowed, err)
	}
}

func TestRateLimiterReturnsErrorWhenServerDown(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer client.Close()
	mr.Close()

	if _, err := NewRateLimiter(client, 1, time.Second).Allow(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}
