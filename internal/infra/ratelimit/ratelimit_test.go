package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	lim := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := lim.Allow(ctx, "user:a", 2, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d should pass: %+v %v", i, d, err)
		}
	}
	d, _ := lim.Allow(ctx, "user:a", 2, time.Minute)
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("third request should be limited: %+v", d)
	}
	if d, _ := lim.Allow(ctx, "user:b", 2, time.Minute); !d.Allowed {
		t.Fatal("other keys are independent")
	}
	now = now.Add(2 * time.Minute)
	if d, _ := lim.Allow(ctx, "user:a", 2, time.Minute); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("window should reset: %+v", d)
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	lim := NewMemoryLimiter(MemoryLimiterConfig{Now: func() time.Time { return now }, MaxKeys: 1})
	ctx := context.Background()
	if _, err := lim.Allow(ctx, "a", 1, time.Minute); err != nil {
		t.Fatalf("first key: %v", err)
	}
	if _, err := lim.Allow(ctx, "b", 1, time.Minute); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := lim.Allow(ctx, "b", 1, time.Minute); err != nil {
		t.Fatalf("expired keys should be collected: %v", err)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	lim, err := NewRedisLimiter(client, nil)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := lim.Allow(ctx, "user:a", 3, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d should pass: %+v %v", i, d, err)
		}
	}
	d, err := lim.Allow(ctx, "user:a", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("fourth request should be limited: %+v", d)
	}
	if !mr.Exists("castgate:rl:user:a") {
		t.Fatal("expected prefixed counter key")
	}
}

func TestRedisLimiterRequiresClient(t *testing.T) {
	if _, err := NewRedisLimiter(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
