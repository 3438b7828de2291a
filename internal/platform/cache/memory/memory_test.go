package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCache(t *testing.T) (*memory.Cache, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := memory.New(time.Minute, 0)
	c.SetClock(clk.Now)
	t.Cleanup(func() { c.Close() })
	return c, clk
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "profile:u1", []byte(`{"status":"Libre"}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "profile:u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != `{"status":"Libre"}` {
		t.Errorf("unexpected value %q", val)
	}

	// Returned slices are copies.
	val[0] = 'X'
	again, _ := c.Get(ctx, "profile:u1")
	if again[0] != '{' {
		t.Error("cache value was mutated through returned slice")
	}
}

func TestCache_GetNotFound(t *testing.T) {
	c, _ := newCache(t)

	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCache_Expiration(t *testing.T) {
	c, clk := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Exists(ctx, "k"); !ok {
		t.Error("key should exist initially")
	}

	clk.Advance(10 * time.Second)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("key should not exist after expiry")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	c, clk := newCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	clk.Advance(59 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("expected value within default TTL, got %v", err)
	}
	clk.Advance(time.Second)
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected expiry at default TTL")
	}
}

func TestCache_Delete(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCounter_WindowResets(t *testing.T) {
	c, clk := newCache(t)
	ctx := context.Background()

	n, reset, err := c.Increment(ctx, "login:1.2.3.4", 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || !reset.Equal(clk.Now().Add(time.Minute)) {
		t.Errorf("unexpected first increment: %d %v", n, reset)
	}
	n, _, _ = c.Increment(ctx, "login:1.2.3.4", 2, time.Minute)
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if got, _ := c.GetCount(ctx, "login:1.2.3.4"); got != 3 {
		t.Errorf("GetCount = %d, want 3", got)
	}

	clk.Advance(time.Minute)
	if got, _ := c.GetCount(ctx, "login:1.2.3.4"); got != 0 {
		t.Errorf("expected expired counter to read 0, got %d", got)
	}
	if n, _, _ := c.Increment(ctx, "login:1.2.3.4", 1, time.Minute); n != 1 {
		t.Errorf("expected new window to start at 1, got %d", n)
	}

	c.Reset(ctx, "login:1.2.3.4")
	if got, _ := c.GetCount(ctx, "login:1.2.3.4"); got != 0 {
		t.Errorf("expected 0 after reset, got %d", got)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment(ctx, "n", 1, time.Minute)
		}()
	}
	wg.Wait()

	if got, _ := c.GetCount(ctx, "n"); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
}

func TestRegistry_Memory(t *testing.T) {
	c, err := cache.NewFromConfig("", map[string]any{"default_ttl": "2s"}, nil)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*memory.Cache); !ok {
		t.Errorf("expected memory driver, got %T", c)
	}

	if _, err := cache.NewFromConfig("memcached", nil, nil); err == nil {
		t.Error("expected unknown driver error")
	}
	if _, err := cache.NewFromConfig("memory", map[string]any{"default_ttl": "later"}, nil); err == nil {
		t.Error("expected decode error for bad duration")
	}
}
