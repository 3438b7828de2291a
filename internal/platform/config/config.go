// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// TrustedProxies lists proxy CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `toml:"trusted_proxies"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Store selects the profiles persistence driver.
	Store StoreConfig `toml:"store"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Auth holds session and login settings.
	Auth AuthConfig `toml:"auth"`

	// Status holds availability behaviour knobs.
	Status StatusConfig `toml:"status"`

	// Users is the seed list of accounts created at startup.
	Users []UserConfig `toml:"users"`

	// Services holds per-service tables, e.g. [services.api.ratelimit].
	// Each service decodes its own table.
	Services map[string]any `toml:"services"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, passwords).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the store driver name: sqlite, json or mirror.
	Driver string `toml:"driver"`

	// DataDir holds the sqlite database or the JSON data file.
	DataDir string `toml:"data_dir"`

	// Mirror configures the JSON export of the mirror driver.
	Mirror StoreMirrorConfig `toml:"mirror"`
}

// StoreMirrorConfig holds mirror driver settings.
type StoreMirrorConfig struct {
	// IncludeLocation keeps coordinates in the export. Default: false.
	IncludeLocation bool `toml:"include_location"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: memory (default) or valkey.
	Driver string `toml:"driver"`

	// ProfileTTLSeconds bounds how long a cached profile row is served.
	ProfileTTLSeconds int `toml:"profile_ttl_seconds"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.valkey] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTLSeconds is how long a login session stays valid.
	SessionTTLSeconds int `toml:"session_ttl_seconds"`

	// LoginAttemptsPerMinute limits login attempts per client address.
	// Zero disables the limit.
	LoginAttemptsPerMinute int `toml:"login_attempts_per_minute"`

	// SessionStore is memory (default) or cache. With cache, sessions live
	// in the configured cache driver and survive restarts when it is valkey.
	SessionStore string `toml:"session_store"`
}

// StatusConfig holds availability settings.
type StatusConfig struct {
	// RepairStale writes Busy back when an expired Free record is loaded.
	// Default: false (the stale row stays until the next toggle).
	RepairStale bool `toml:"repair_stale"`

	// WriteTimeoutMS bounds each status write. Zero means unbounded.
	WriteTimeoutMS int `toml:"write_timeout_ms"`

	// TickIntervalMS is the countdown stream cadence.
	TickIntervalMS int `toml:"tick_interval_ms"`
}

// UserConfig seeds one account.
type UserConfig struct {
	Username    string   `toml:"username"`
	Password    string   `toml:"password"`
	DisplayName string   `toml:"display_name"`
	AvatarURL   string   `toml:"avatar_url"`
	Latitude    *float64 `toml:"latitude"`
	Longitude   *float64 `toml:"longitude"`
}

// SessionTTL returns the session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLSeconds) * time.Second
}

// ProfileCacheTTL returns the profile cache lifetime.
func (c *Config) ProfileCacheTTL() time.Duration {
	return time.Duration(c.Cache.ProfileTTLSeconds) * time.Second
}

// WriteTimeout returns the status write bound.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Status.WriteTimeoutMS) * time.Millisecond
}

// TickInterval returns the countdown cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Status.TickIntervalMS) * time.Millisecond
}

// CacheDriverConfig returns the raw [cache.drivers.<name>] table for the
// selected driver, or nil.
func (c *Config) CacheDriverConfig() map[string]any {
	if c.Cache.Drivers == nil {
		return nil
	}
	raw, ok := c.Cache.Drivers[c.Cache.Driver].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// ServiceConfig returns the raw [services.<name>] table, or an empty map.
func (c *Config) ServiceConfig(name string) map[string]any {
	raw, ok := c.Services[name].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return raw
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	fmt.Fprintf(&sb, "  TrustedProxies: %q,\n", c.TrustedProxies)
	sb.WriteString("  Logging: {\n")
	fmt.Fprintf(&sb, "    Level: %q,\n", c.Logging.Level)
	fmt.Fprintf(&sb, "    AllowSensitive: %v,\n", c.Logging.AllowSensitive)
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	fmt.Fprintf(&sb, "    Driver: %q,\n", c.Store.Driver)
	fmt.Fprintf(&sb, "    DataDir: %q,\n", c.Store.DataDir)
	fmt.Fprintf(&sb, "    Mirror.IncludeLocation: %v,\n", c.Store.Mirror.IncludeLocation)
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	fmt.Fprintf(&sb, "    Driver: %q,\n", c.Cache.Driver)
	fmt.Fprintf(&sb, "    ProfileTTLSeconds: %d,\n", c.Cache.ProfileTTLSeconds)
	names := make([]string, 0, len(c.Cache.Drivers))
	for name := range c.Cache.Drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "    Drivers: %q,\n", names)
	sb.WriteString("  },\n")
	sb.WriteString("  Auth: {\n")
	fmt.Fprintf(&sb, "    SessionTTLSeconds: %d,\n", c.Auth.SessionTTLSeconds)
	fmt.Fprintf(&sb, "    LoginAttemptsPerMinute: %d,\n", c.Auth.LoginAttemptsPerMinute)
	fmt.Fprintf(&sb, "    SessionStore: %q,\n", c.Auth.SessionStore)
	sb.WriteString("  },\n")
	sb.WriteString("  Status: {\n")
	fmt.Fprintf(&sb, "    RepairStale: %v,\n", c.Status.RepairStale)
	fmt.Fprintf(&sb, "    WriteTimeoutMS: %d,\n", c.Status.WriteTimeoutMS)
	fmt.Fprintf(&sb, "    TickIntervalMS: %d,\n", c.Status.TickIntervalMS)
	sb.WriteString("  },\n")
	sb.WriteString("  Users: [")
	for i, u := range c.Users {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "{Username: %q, Password: [REDACTED]}", u.Username)
	}
	sb.WriteString("],\n")
	svcNames := make([]string, 0, len(c.Services))
	for name := range c.Services {
		svcNames = append(svcNames, name)
	}
	sort.Strings(svcNames)
	fmt.Fprintf(&sb, "  Services: %q,\n", svcNames)
	sb.WriteString("}")
	return sb.String()
}
