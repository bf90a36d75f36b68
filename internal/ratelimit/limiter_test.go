package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter creates a Limiter connected to a local Redis instance and
// cleans up test keys. Tests that call this helper require a running Redis on
// localhost:6379 and are skipped otherwise.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	cleanup := func() {
		iter := client.Scan(ctx, 0, "rl:test:*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewLimiter(client)
}

func TestAllow_WithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "u1", rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestAllow_OverLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 2, Window: 10 * time.Second}

	for i := 0; i < 2; i++ {
		if allowed, _ := limiter.Allow(ctx, "u2", rule); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "u2", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if allowed {
		t.Error("third request should be rate limited")
	}
}

func TestAllow_IndependentIdentifiers(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	if allowed, _ := limiter.Allow(ctx, "u3", rule); !allowed {
		t.Fatal("first request for u3 should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "u3", rule); allowed {
		t.Fatal("second request for u3 should be limited")
	}
	if allowed, _ := limiter.Allow(ctx, "u4", rule); !allowed {
		t.Error("u4 should not be affected by u3's limit")
	}
}

func TestRemaining(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}

	remaining, err := limiter.Remaining(ctx, "u5", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != 5 {
		t.Errorf("fresh identifier should have full limit, got %d", remaining)
	}

	limiter.Allow(ctx, "u5", rule)
	limiter.Allow(ctx, "u5", rule)

	remaining, err = limiter.Remaining(ctx, "u5", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != 3 {
		t.Errorf("expected 3 remaining after 2 requests, got %d", remaining)
	}
}

func TestRuleModerate_Policy(t *testing.T) {
	if RuleModerate.Limit != 100 {
		t.Errorf("moderation policy should allow 100 requests, got %d", RuleModerate.Limit)
	}
	if RuleModerate.Window != time.Hour {
		t.Errorf("moderation policy window should be 1h, got %s", RuleModerate.Window)
	}
}
