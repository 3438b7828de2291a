package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// DriverConfig selects and configures a driver.
type DriverConfig struct {
	// Driver is json, sqlite or mirror.
	Driver string `json:"driver"`

	// DataDir holds the driver's files. Drivers create it on Init.
	DataDir string `json:"data_dir"`

	// Mirror is read by the mirror driver only.
	Mirror MirrorConfig `json:"mirror"`
}

// MirrorConfig configures the JSON export written by the mirror driver.
type MirrorConfig struct {
	// IncludeLocation keeps coordinates in the export (default false).
	IncludeLocation bool `json:"include_location"`
}

// DriverFactory builds an uninitialized driver.
type DriverFactory func(cfg *DriverConfig) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register makes a driver available by name. Like database/sql.Register it
// panics when called twice for the same name.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if factory == nil {
		panic("store: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("store: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// New builds the configured driver without initializing it.
func New(cfg *DriverConfig) (Driver, error) {
	if cfg == nil {
		return nil, errors.New("store: nil driver config")
	}
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (available: %v)", cfg.Driver, AvailableDrivers())
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("store driver %s: data dir is required", cfg.Driver)
	}
	return factory(cfg)
}

// Open builds and initializes the configured driver and returns it together
// with its ProfileStore view. On failure nothing is left open.
func Open(ctx context.Context, cfg *DriverConfig) (Driver, ProfileStore, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	ps, ok := d.(ProfileStore)
	if !ok {
		d.Close()
		return nil, nil, fmt.Errorf("store driver %s does not store profiles", cfg.Driver)
	}
	if err := d.Init(ctx); err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("init %s store: %w", cfg.Driver, err)
	}
	return d, ps, nil
}

// AvailableDrivers returns the registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	driversMu.RUnlock()

	slices.Sort(names)
	return names
}
