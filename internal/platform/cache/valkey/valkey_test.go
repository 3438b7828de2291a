package valkey_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache/valkey"
)

func newCache(t *testing.T) (*valkey.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := valkey.New(context.Background(), valkey.Config{Addr: mr.Addr(), DialTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestValkey_SetGetDelete(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "profile:u1", []byte(`{"status":"Ocupado"}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("dispoahora:profile:u1") {
		t.Error("expected key prefix to be applied")
	}

	got, err := c.Get(ctx, "profile:u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"status":"Ocupado"}` {
		t.Errorf("unexpected value %q", got)
	}

	if ok, _ := c.Exists(ctx, "profile:u1"); !ok {
		t.Error("expected key to exist")
	}
	if err := c.Delete(ctx, "profile:u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "profile:u1"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestValkey_Expiry(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 2*time.Second)
	mr.FastForward(3 * time.Second)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("expected key gone after expiry")
	}
}

func TestValkey_Counter(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	n, reset, err := c.Increment(ctx, "login:10.0.0.1", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if time.Until(reset) <= 0 || time.Until(reset) > time.Minute {
		t.Errorf("unexpected reset time %v", reset)
	}
	if ttl := mr.TTL("dispoahora:login:10.0.0.1"); ttl != time.Minute {
		t.Errorf("expected window TTL 1m, got %v", ttl)
	}

	n, _, _ = c.Increment(ctx, "login:10.0.0.1", 4, time.Minute)
	if n != 5 {
		t.Errorf("expected 5, got %d", n)
	}
	if got, _ := c.GetCount(ctx, "login:10.0.0.1"); got != 5 {
		t.Errorf("GetCount = %d, want 5", got)
	}

	mr.FastForward(time.Minute)
	if got, _ := c.GetCount(ctx, "login:10.0.0.1"); got != 0 {
		t.Errorf("expected 0 after window, got %d", got)
	}

	c.Increment(ctx, "login:10.0.0.1", 1, time.Minute)
	if err := c.Reset(ctx, "login:10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.GetCount(ctx, "login:10.0.0.1"); got != 0 {
		t.Errorf("expected 0 after reset, got %d", got)
	}
}

func TestValkey_UnreachableFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := valkey.New(context.Background(), valkey.Config{Addr: addr, DialTimeout: 200 * time.Millisecond}, nil); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestValkey_Registry(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := cache.NewFromConfig("valkey", map[string]any{
		"addr":       mr.Addr(),
		"key_prefix": "test:",
	}, nil)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	defer c.Close()

	c.Set(context.Background(), "x", []byte("1"), 0)
	if !mr.Exists("test:x") {
		t.Error("expected configured prefix")
	}
	if err := c.(*valkey.Cache).Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
