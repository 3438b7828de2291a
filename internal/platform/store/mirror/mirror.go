// Package mirror implements a SQLite + JSON mirror persistence driver.
// SQLite is the source of truth; the JSON file is a one-way export for
// operators and is never read back.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/sqlite"
)

// ExportFile is the mirror file name under <data_dir>/mirror.
const ExportFile = "profiles.json"

func init() {
	store.Register("mirror", NewDriver)
}

// Driver is the sqlite driver plus a JSON export after every write.
type Driver struct {
	*sqlite.Driver

	dataDir   string
	mirrorCfg store.MirrorConfig
	mu        sync.Mutex // serializes exports
}

// NewDriver creates a new mirror driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for mirror driver")
	}
	return &Driver{
		Driver:    sqlite.New(cfg.DataDir),
		dataDir:   cfg.DataDir,
		mirrorCfg: cfg.Mirror,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "mirror"
}

// Init opens the database and writes the initial export.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.mirrorDir(), 0700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	if err := d.Driver.Init(ctx); err != nil {
		return err
	}
	if err := d.export(ctx); err != nil {
		return fmt.Errorf("failed to export mirror: %w", err)
	}
	return nil
}

func (d *Driver) mirrorDir() string {
	return filepath.Join(d.dataDir, "mirror")
}

// CreateProfile inserts a row and refreshes the export.
func (d *Driver) CreateProfile(ctx context.Context, p *store.Profile) error {
	if err := d.Driver.CreateProfile(ctx, p); err != nil {
		return err
	}
	return d.export(ctx)
}

// UpdateStatus updates status and refreshes the export.
func (d *Driver) UpdateStatus(ctx context.Context, id, status string, expiresAt *string) error {
	if err := d.Driver.UpdateStatus(ctx, id, status, expiresAt); err != nil {
		return err
	}
	return d.export(ctx)
}

// UpdateActivity updates the activity and refreshes the export.
func (d *Driver) UpdateActivity(ctx context.Context, id, activity string) error {
	if err := d.Driver.UpdateActivity(ctx, id, activity); err != nil {
		return err
	}
	return d.export(ctx)
}

// UpdateLocation updates coordinates and refreshes the export.
func (d *Driver) UpdateLocation(ctx context.Context, id string, latitude, longitude float64) error {
	if err := d.Driver.UpdateLocation(ctx, id, latitude, longitude); err != nil {
		return err
	}
	return d.export(ctx)
}

// export writes every row to the mirror file. Coordinates are dropped unless
// IncludeLocation is set.
func (d *Driver) export(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	profiles, err := d.Driver.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if !d.mirrorCfg.IncludeLocation {
		for _, p := range profiles {
			p.Latitude = nil
			p.Longitude = nil
		}
	}
	return store.WriteJSONAtomic(filepath.Join(d.mirrorDir(), ExportFile), profiles)
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.ProfileStore = (*Driver)(nil)
