package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockKey(t *testing.T) {
	if got := lockKey("octo", "hello"); got != "runpurge:lock:octo/hello" {
		t.Errorf("lockKey = %q", got)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "not-a-url"}); err == nil {
		t.Error("Expected parse error for invalid URL")
	}
}

func TestAcquireLock_Exclusive(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	lock, err := c.AcquireLock(ctx, "octo", "hello", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if ttl := mr.TTL(lockKey("octo", "hello")); ttl != time.Minute {
		t.Errorf("Expected 1m TTL, got %v", ttl)
	}

	if _, err := c.AcquireLock(ctx, "octo", "hello", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("Expected ErrLockHeld on second acquire, got %v", err)
	}

	// other repositories are independent
	other, err := c.AcquireLock(ctx, "octo", "world", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock for other repo failed: %v", err)
	}
	_ = other.Release(ctx)

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if mr.Exists(lockKey("octo", "hello")) {
		t.Error("Expected lock key deleted after release")
	}

	again, err := c.AcquireLock(ctx, "octo", "hello", time.Minute)
	if err != nil {
		t.Fatalf("Re-acquire after release failed: %v", err)
	}
	_ = again.Release(ctx)
}

func TestRelease_AfterExpiryKeepsNewOwner(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	key := lockKey("octo", "hello")

	stale, err := c.AcquireLock(ctx, "octo", "hello", time.Second)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	mr.FastForward(2 * time.Second)
	if mr.Exists(key) {
		t.Fatal("Expected lock to expire")
	}

	current, err := c.AcquireLock(ctx, "octo", "hello", time.Minute)
	if err != nil {
		t.Fatalf("Re-acquire after expiry failed: %v", err)
	}

	// the expired holder must not drop the new owner's lock
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("Stale release failed: %v", err)
	}
	got, err := mr.Get(key)
	if err != nil {
		t.Fatalf("Expected lock still held: %v", err)
	}
	if got != current.token {
		t.Errorf("Expected token %s, got %s", current.token, got)
	}

	if err := current.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if mr.Exists(key) {
		t.Error("Expected lock key deleted after owner release")
	}
}
