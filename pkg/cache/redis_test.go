package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisPutGet(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "bw:v1:topics:aaaa")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected miss on empty store")
	}

	if err := store.Put(ctx, "bw:v1:topics:aaaa", []byte(`{"topics":["go"]}`), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	val, found, err := store.Get(ctx, "bw:v1:topics:aaaa")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected hit after Put")
	}
	if string(val) != `{"topics":["go"]}` {
		t.Errorf("unexpected value: %s", val)
	}
}

func TestRedisExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "bw:v1:outline:bbbb", []byte("v"), 30*time.Second); err != nil {
		t.Fatal(err)
	}

	_, found, err := store.Get(ctx, "bw:v1:outline:bbbb")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected hit before expiry")
	}

	mr.FastForward(31 * time.Second)

	_, found, err = store.Get(ctx, "bw:v1:outline:bbbb")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expired entry must not be returned")
	}
}

func TestRedisClear(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "bw:v1:topics:aaaa", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "bw:v1:topics:cccc", []byte("2"), time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.Set("other:key", "untouched")

	removed, err := store.Clear(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	if mr.Exists("bw:v1:topics:aaaa") {
		t.Error("expected gateway key cleared")
	}
	if !mr.Exists("other:key") {
		t.Error("keys outside the gateway namespace must survive")
	}
}

func TestRedisClearExpiredOnlyIsNoop(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "bw:v1:topics:aaaa", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}

	// Redis expires entries natively; expired-only clear has nothing to do.
	removed, err := store.Clear(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}

	_, found, err := store.Get(ctx, "bw:v1:topics:aaaa")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("expected live entry to survive")
	}
}

func TestRedisStats(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "bw:v1:topics:aaaa", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "bw:v1:outline:bbbb", []byte("2"), time.Minute); err != nil {
		t.Fatal(err)
	}

	_, _, _ = store.Get(ctx, "bw:v1:topics:aaaa")
	_, _, _ = store.Get(ctx, "bw:v1:missing:0000")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Backend != "redis" {
		t.Errorf("expected redis backend, got %s", stats.Backend)
	}
	if stats.Entries != 2 {
		t.Errorf("expected 2 entries, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	if err := store.Put(ctx, "bw:v1:topics:aaaa", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.Close()

	// Errors surface to the caller, who treats them as misses.
	_, found, err := store.Get(ctx, "bw:v1:topics:aaaa")
	if err == nil {
		t.Error("expected error from unreachable store")
	}
	if found {
		t.Error("expected found=false on error")
	}

	if err := store.Put(ctx, "bw:v1:topics:aaaa", []byte("1"), time.Minute); err == nil {
		t.Error("expected Put error")
	}
	if err := store.Ping(ctx); err == nil {
		t.Error("expected Ping error")
	}

	stats, err := store.Stats(ctx)
	if err == nil {
		t.Error("expected Stats error")
	}
	if stats.Errors < 2 {
		t.Errorf("expected error counter >= 2, got %d", stats.Errors)
	}
}
