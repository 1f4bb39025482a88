package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestMemorySaleIdempotencyLifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySaleIdempotency()

	_, reserved, err := c.Reserve(ctx, "k1", time.Minute)
	if err != nil || !reserved {
		t.Fatalf("expected first reserve to win, reserved=%t err=%v", reserved, err)
	}

	saleID, reserved, _ := c.Reserve(ctx, "k1", time.Minute)
	if reserved || saleID != "" {
		t.Fatalf("expected in-flight key to be reported pending, got %q reserved=%t", saleID, reserved)
	}

	if err := c.Complete(ctx, "k1", "sale-1", time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	saleID, reserved, _ = c.Reserve(ctx, "k1", time.Minute)
	if reserved || saleID != "sale-1" {
		t.Fatalf("expected completed key to return sale-1, got %q reserved=%t", saleID, reserved)
	}
}

func TestMemorySaleIdempotencyReleaseAndExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySaleIdempotency()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _, _ = c.Reserve(ctx, "k2", time.Minute)
	if err := c.Release(ctx, "k2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, reserved, _ := c.Reserve(ctx, "k2", time.Minute); !reserved {
		t.Fatalf("expected released key to be reservable again")
	}

	now = now.Add(2 * time.Minute)
	if _, reserved, _ := c.Reserve(ctx, "k2", time.Minute); !reserved {
		t.Fatalf("expected expired key to be reservable again")
	}
}

func TestRedisSaleIdempotency(t *testing.T) {
	addr := os.Getenv("KASIRPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set KASIRPOS_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	c := NewRedisSaleIdempotency(addr, os.Getenv("KASIRPOS_TEST_REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := "it-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() { _ = c.Release(ctx, key) })

	if _, reserved, err := c.Reserve(ctx, key, time.Minute); err != nil || !reserved {
		t.Fatalf("expected reserve, reserved=%t err=%v", reserved, err)
	}
	if _, reserved, _ := c.Reserve(ctx, key, time.Minute); reserved {
		t.Fatalf("expected second reserve to be refused")
	}
	if err := c.Complete(ctx, key, "sale-9", time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	saleID, _, err := c.Reserve(ctx, key, time.Minute)
	if err != nil || saleID != "sale-9" {
		t.Fatalf("expected sale-9, got %q err=%v", saleID, err)
	}
}
