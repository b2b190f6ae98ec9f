package controlserver

import (
	"context"
	"testing"

	"github.com/ScopeCreep-zip/spiritstream/internal/testsupport/redisstub"
)

func TestTokenBucketAllowsBurstThenBlocks(t *testing.T) {
	tb := newTokenBucket(1, 2)
	if !tb.Allow() {
		t.Fatal("expected first request within burst to be allowed")
	}
	if !tb.Allow() {
		t.Fatal("expected second request within burst to be allowed")
	}
	if tb.Allow() {
		t.Fatal("expected third immediate request to exceed the burst")
	}
}

func TestRateLimiterNoopWithoutConfig(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	allowed, _, err := rl.Allow(nil, "client")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Fatal("expected an unconfigured rate limiter to allow everything")
	}
}

func TestRateLimiterGlobalBucketAppliesWithoutRedis(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	allowed, _, err := rl.Allow(nil, "client")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Fatal("expected first request to be allowed")
	}
	allowed, _, err = rl.Allow(nil, "client")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("expected second immediate request to be throttled by the global bucket")
	}
}

func TestRateLimiterRedisStoreThrottlesAcrossCalls(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("redisstub.Start: %v", err)
	}
	defer stub.Close()

	rl := newRateLimiter(RateLimitConfig{RedisAddr: stub.Addr()})
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		allowed, _, err := rl.Allow(ctx, "client")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d within the 60/min window to be allowed", i+1)
		}
	}

	allowed, retryAfter, err := rl.Allow(ctx, "client")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("expected the 61st request within the window to be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry-after duration, got %v", retryAfter)
	}
}
