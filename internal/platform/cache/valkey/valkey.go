// Package valkey provides a Valkey/Redis cache driver built on valkey-go.
package valkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

func init() {
	cache.RegisterDriver("valkey", func(raw map[string]any, log *slog.Logger) (cache.CacheWithCounter, error) {
		var c Config
		if err := cfg.Decode(raw, &c); err != nil {
			return nil, err
		}
		return New(context.Background(), c, log)
	})
}

// ErrUnavailable is returned by Ping when the server does not answer.
var ErrUnavailable = errors.New("valkey unavailable")

// Config is the [cache.drivers.valkey] table.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "dispoahora:"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = cache.TTLProfile
	}
}

// Cache is a cache.CacheWithCounter backed by a Valkey server.
type Cache struct {
	client     valkey.Client
	prefix     string
	defaultTTL time.Duration
	log        *slog.Logger
}

// New connects to the server and pings it. Construction fails if the server
// is unreachable.
func New(ctx context.Context, c Config, log *slog.Logger) (*Cache, error) {
	c.ApplyDefaults()
	log = logutil.NoopIfNil(log)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{c.Addr},
		Password:     c.Password,
		SelectDB:     c.DB,
		Dialer:       net.Dialer{Timeout: c.DialTimeout},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", c.Addr, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping failed: %w", err)
	}

	log.Info("valkey cache connected", "addr", c.Addr, "db", c.DB)
	return &Cache{client: client, prefix: c.KeyPrefix, defaultTTL: c.DefaultTTL, log: log}, nil
}

func (c *Cache) key(k string) string { return c.prefix + k }

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a value by key. Expired keys are gone server-side and report
// ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ms := c.ttlOrDefault(ttl).Milliseconds()
	cmd := c.client.B().Set().Key(c.key(key)).Value(valkey.BinaryString(value)).PxMilliseconds(ms).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(c.key(key)).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(c.key(key)).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to a counter. The window TTL is set when the counter
// is created and is not extended by later increments.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	k := c.key(key)
	ttl = c.ttlOrDefault(ttl)

	n, err := c.client.Do(ctx, c.client.B().Incrby().Key(k).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}

	pttl, err := c.client.Do(ctx, c.client.B().Pttl().Key(k).Build()).AsInt64()
	if err != nil {
		return 0, time.Time{}, err
	}
	if pttl < 0 {
		if err := c.client.Do(ctx, c.client.B().Pexpire().Key(k).Milliseconds(ttl.Milliseconds()).Build()).Error(); err != nil {
			return 0, time.Time{}, err
		}
		pttl = ttl.Milliseconds()
	}
	return n, time.Now().Add(time.Duration(pttl) * time.Millisecond), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsInt64()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Reset drops a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// Close closes the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
