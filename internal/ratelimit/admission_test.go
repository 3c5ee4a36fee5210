package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAdmissionLimiter(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewAdmissionLimiter(client, 2, 1, time.Minute)

	allowed, _, err := limiter.Allow(ctx, "forge_one")
	if err != nil || !allowed {
		t.Fatalf("expected first admission allowed, got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = limiter.Allow(ctx, "forge_one")
	if !allowed {
		t.Fatalf("expected second admission allowed")
	}
	allowed, _, _ = limiter.Allow(ctx, "forge_one")
	if allowed {
		t.Fatalf("expected third admission rejected")
	}

	// Buckets are per facility: another facility still has tokens.
	allowed, _, _ = limiter.Allow(ctx, "forge_two")
	if !allowed {
		t.Fatalf("expected fresh facility to be allowed")
	}

	// Note: cannot test refill with miniredis.FastForward() because the Lua
	// script receives time from Go's time.Now(), not Redis's internal clock.
}
