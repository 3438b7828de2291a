package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr            *string
	LoggingLevel          *string
	LoggingAllowSensitive *string // "true", "false", or "" (unset)
	StoreDriver           *string
	StoreDataDir          *string
	CacheDriver           *string
	RepairStale           *string // "true", "false", or "" (unset)
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode       string         `toml:"mode"`
	ListenAddr string         `toml:"listen_addr"`
	Proxies    []string       `toml:"trusted_proxies"`
	Logging    *loggingConfig `toml:"logging"`
	Store      *StoreConfig   `toml:"store"`
	Cache      *CacheConfig   `toml:"cache"`
	Auth       *authConfig    `toml:"auth"`
	Status     *statusConfig  `toml:"status"`
	Users      []UserConfig   `toml:"users"`
	Services   map[string]any `toml:"services"`
}

type loggingConfig struct {
	Level          string `toml:"level"`
	AllowSensitive bool   `toml:"allow_sensitive"`
}

type authConfig struct {
	SessionTTLSeconds      int    `toml:"session_ttl_seconds"`
	LoginAttemptsPerMinute *int   `toml:"login_attempts_per_minute"`
	SessionStore           string `toml:"session_store"`
}

type statusConfig struct {
	RepairStale    *bool `toml:"repair_stale"`
	WriteTimeoutMS *int  `toml:"write_timeout_ms"`
	TickIntervalMS int   `toml:"tick_interval_ms"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate
//
// A ConfigPath that is missing or not valid TOML fails the load. Unknown keys
// only produce a warning.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				// Driver tables are decoded later by the driver itself.
				if strings.HasPrefix(k.String(), "cache.drivers.") || strings.HasPrefix(k.String(), "services.") {
					continue
				}
				keys = append(keys, k.String())
			}
			if len(keys) > 0 {
				logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
			}
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:       string(ModeStrict),
		ListenAddr: ":8080",
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".dispoahora",
		},
		Cache: CacheConfig{
			Driver:            "memory",
			ProfileTTLSeconds: 30,
		},
		Auth: AuthConfig{
			SessionTTLSeconds:      86400, // 24 hours
			LoginAttemptsPerMinute: 10,
			SessionStore:           "memory",
		},
		Status: StatusConfig{
			WriteTimeoutMS: 10000,
			TickIntervalMS: 1000,
		},
	}
}

// DevConfig returns development defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Logging.Level = "debug"
	cfg.Store.Driver = "json"
	cfg.Auth.SessionTTLSeconds = 604800 // 7 days
	cfg.Auth.LoginAttemptsPerMinute = 0
	return cfg
}

func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if len(fc.Proxies) > 0 {
		cfg.TrustedProxies = fc.Proxies
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		// AllowSensitive is a bool, overlay when section present
		cfg.Logging.AllowSensitive = fc.Logging.AllowSensitive
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		cfg.Store.Mirror = fc.Store.Mirror
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.ProfileTTLSeconds > 0 {
			cfg.Cache.ProfileTTLSeconds = fc.Cache.ProfileTTLSeconds
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Auth != nil {
		if fc.Auth.SessionTTLSeconds > 0 {
			cfg.Auth.SessionTTLSeconds = fc.Auth.SessionTTLSeconds
		}
		if fc.Auth.LoginAttemptsPerMinute != nil {
			cfg.Auth.LoginAttemptsPerMinute = *fc.Auth.LoginAttemptsPerMinute
		}
		if fc.Auth.SessionStore != "" {
			cfg.Auth.SessionStore = fc.Auth.SessionStore
		}
	}

	if fc.Status != nil {
		if fc.Status.RepairStale != nil {
			cfg.Status.RepairStale = *fc.Status.RepairStale
		}
		if fc.Status.WriteTimeoutMS != nil {
			cfg.Status.WriteTimeoutMS = *fc.Status.WriteTimeoutMS
		}
		if fc.Status.TickIntervalMS > 0 {
			cfg.Status.TickIntervalMS = fc.Status.TickIntervalMS
		}
	}

	if len(fc.Users) > 0 {
		cfg.Users = fc.Users
	}

	if len(fc.Services) > 0 {
		cfg.Services = fc.Services
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.LoggingAllowSensitive != nil && *f.LoggingAllowSensitive != "" {
		cfg.Logging.AllowSensitive = *f.LoggingAllowSensitive == "true"
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.RepairStale != nil && *f.RepairStale != "" {
		cfg.Status.RepairStale = *f.RepairStale == "true"
	}
}

func validate(cfg *Config) error {
	if _, err := logutil.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	if _, err := realip.NewTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted_proxies: %w", err)
	}

	switch cfg.Store.Driver {
	case "sqlite", "json", "mirror":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of sqlite, json, mirror", cfg.Store.Driver)
	}
	if cfg.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}

	switch cfg.Cache.Driver {
	case "", "memory":
		cfg.Cache.Driver = "memory"
	case "valkey":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, valkey", cfg.Cache.Driver)
	}

	switch cfg.Auth.SessionStore {
	case "", "memory":
		cfg.Auth.SessionStore = "memory"
	case "cache":
	default:
		return fmt.Errorf("invalid auth.session_store %q: must be one of memory, cache", cfg.Auth.SessionStore)
	}

	if cfg.Auth.LoginAttemptsPerMinute < 0 {
		return fmt.Errorf("auth.login_attempts_per_minute must not be negative")
	}
	if cfg.Status.WriteTimeoutMS < 0 {
		return fmt.Errorf("status.write_timeout_ms must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		name := strings.TrimSpace(u.Username)
		if name == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if seen[name] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, name)
		}
		seen[name] = true
		if (u.Latitude == nil) != (u.Longitude == nil) {
			return fmt.Errorf("users[%d]: latitude and longitude must be set together", i)
		}
	}
	return nil
}
