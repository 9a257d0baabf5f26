package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  3,
		Window: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("allow %d: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied under the limit", i+1)
		}
	}

	res, err := limiter.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("request over the limit was allowed")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  1,
		Window: time.Minute,
	})
	ctx := context.Background()

	if res, _ := limiter.Allow(ctx, "10.0.0.1"); !res.Allowed {
		t.Fatal("first key denied")
	}
	if res, _ := limiter.Allow(ctx, "10.0.0.2"); !res.Allowed {
		t.Error("second key denied, limits must be per key")
	}
	if res, _ := limiter.Allow(ctx, "10.0.0.1"); res.Allowed {
		t.Error("first key allowed over its limit")
	}
}

func TestRateLimiterAllowN(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  5,
		Window: time.Minute,
	})
	ctx := context.Background()

	res, err := limiter.AllowN(ctx, "batch", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("AllowN(4) = allowed %v remaining %d, want allowed with 1 remaining", res.Allowed, res.Remaining)
	}

	res, err = limiter.AllowN(ctx, "batch", 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("AllowN(2) allowed with only 1 slot remaining")
	}
}
