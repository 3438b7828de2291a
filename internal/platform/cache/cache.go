// Package cache provides TTL key-value caching and counters behind a driver
// registry. Drivers register themselves from init().
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Counter provides windowed counters for rate limiting.
type Counter interface {
	// Increment adds delta to the counter and returns the new value and the
	// time the window resets. A missing counter is created with ttl.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// GetCount returns the current counter value, 0 if absent.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset drops the counter.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter interfaces.
type CacheWithCounter interface {
	Cache
	Counter
}

// Default TTLs for different cache categories.
const (
	TTLProfile   = 30 * time.Second // profile rows
	TTLRateLimit = 1 * time.Minute  // login rate limit window
)

// Factory builds a driver from its raw [cache.drivers.<name>] table.
type Factory func(config map[string]any, log *slog.Logger) (CacheWithCounter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver registers a driver factory by name.
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// NewFromConfig builds the named driver. An empty name selects memory.
func NewFromConfig(driver string, config map[string]any, log *slog.Logger) (CacheWithCounter, error) {
	if driver == "" {
		driver = "memory"
	}
	driversMu.RLock()
	f, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (available: %v)", driver, AvailableDrivers())
	}
	c, err := f(config, log)
	if err != nil {
		return nil, fmt.Errorf("cache driver %s: %w", driver, err)
	}
	return c, nil
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
