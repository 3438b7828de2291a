// Package memory provides an in-process cache driver with TTL support.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(raw map[string]any, _ *slog.Logger) (cache.CacheWithCounter, error) {
		var c Config
		if err := cfg.Decode(raw, &c); err != nil {
			return nil, err
		}
		return New(c.DefaultTTL, c.CleanupInterval), nil
	})
}

// Config is the [cache.drivers.memory] table.
type Config struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = cache.TTLProfile
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
}

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

// Cache is an in-memory cache with TTL support.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*entry
	counters   map[string]*entry
	defaultTTL time.Duration
	now        func() time.Time

	stopOnce  sync.Once
	stopClean chan struct{}
}

// New creates a new in-memory cache.
// cleanupInterval specifies how often expired entries are swept (0 disables).
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*entry),
		counters:   make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopClean:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// SetClock replaces the time source. Test use only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.items {
		if !now.Before(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k, v := range c.counters {
		if !now.Before(v.expiresAt) {
			delete(c.counters, k)
		}
	}
}

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a copy of the value stored under key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if !c.now().Before(e.expiresAt) {
		return nil, cache.ErrExpired
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ttl = c.ttlOrDefault(ttl)
	v := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &entry{value: v, expiresAt: c.now().Add(ttl)}
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Exists checks if a key exists and is not expired.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return c.now().Before(e.expiresAt), nil
}

// Increment adds delta to a counter and returns the new value and reset time.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	ttl = c.ttlOrDefault(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.counters[key]
	if !ok || !now.Before(e.expiresAt) {
		e = &entry{count: delta, expiresAt: now.Add(ttl)}
		c.counters[key] = e
		return e.count, e.expiresAt, nil
	}
	e.count += delta
	return e.count, e.expiresAt, nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.counters[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

// Reset drops a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
