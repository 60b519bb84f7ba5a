package cachemem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := New(2, 0)
	_ = c.Put(ctx, "a", "1")
	_ = c.Put(ctx, "b", "2")
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatal("expected a")
	}
	_ = c.Put(ctx, "c", "3")
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if v, ok, _ := c.Get(ctx, "a"); !ok || v != "1" {
		t.Fatalf("expected a=1, got %q %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestCacheExpiresEntries(t *testing.T) {
	ctx := context.Background()
	c := New(10, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	_ = c.Put(ctx, "k", "v")
	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatal("expected expired entry to be removed")
	}
}

func TestCacheConcurrentAccessStaysBounded(t *testing.T) {
	ctx := context.Background()
	c := New(16, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("%d-%d", i, j)
				_ = c.Put(ctx, key, key)
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Fatalf("cache grew past bound: %d", c.Len())
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	if err := c.Put(context.Background(), "k", "v"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := c.Get(context.Background(), "k"); ok {
		t.Fatal("nil cache must miss")
	}
}
