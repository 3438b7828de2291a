// Package json implements a JSON file-based persistence driver.
// All rows live in one file rewritten atomically on every change.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// DataFile is the file name inside the data dir.
const DataFile = "profiles.json"

func init() {
	store.Register("json", NewDriver)
}

// Driver implements store.Driver and store.ProfileStore using a JSON file.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	profiles   map[string]*store.Profile // keyed by id
	byUsername map[string]string         // username -> id
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:    cfg.DataDir,
		profiles:   make(map[string]*store.Profile),
		byUsername: make(map[string]string),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from the JSON file.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := os.ReadFile(d.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if err := json.Unmarshal(data, &d.profiles); err != nil {
		return fmt.Errorf("failed to parse %s: %w", DataFile, err)
	}
	if d.profiles == nil {
		d.profiles = make(map[string]*store.Profile)
	}

	d.byUsername = make(map[string]string, len(d.profiles))
	for id, p := range d.profiles {
		d.byUsername[p.Username] = id
	}
	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) path() string {
	return filepath.Join(d.dataDir, DataFile)
}

// CreateProfile inserts a new row.
func (d *Driver) CreateProfile(ctx context.Context, p *store.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	if _, ok := d.profiles[p.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := d.byUsername[p.Username]; ok {
		return store.ErrAlreadyExists
	}

	row := p.Clone()
	if row.UpdatedAt == 0 {
		row.UpdatedAt = time.Now().Unix()
	}
	d.profiles[row.ID] = row
	d.byUsername[row.Username] = row.ID

	if err := d.save(); err != nil {
		delete(d.profiles, row.ID)
		delete(d.byUsername, row.Username)
		return err
	}
	return nil
}

// GetProfile retrieves a row by id.
func (d *Driver) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	p, ok := d.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

// ListProfiles returns all rows ordered by username.
func (d *Driver) ListProfiles(ctx context.Context) ([]*store.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}
	out := make([]*store.Profile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// UpdateStatus replaces status and expiry together.
func (d *Driver) UpdateStatus(ctx context.Context, id, status string, expiresAt *string) error {
	return d.update(id, func(p *store.Profile) {
		p.Status = status
		p.StatusExpiresAt = nil
		if expiresAt != nil {
			v := *expiresAt
			p.StatusExpiresAt = &v
		}
	})
}

// UpdateActivity sets the announced activity.
func (d *Driver) UpdateActivity(ctx context.Context, id, activity string) error {
	return d.update(id, func(p *store.Profile) { p.Activity = activity })
}

// UpdateLocation sets the coordinates.
func (d *Driver) UpdateLocation(ctx context.Context, id string, latitude, longitude float64) error {
	return d.update(id, func(p *store.Profile) {
		p.Latitude = &latitude
		p.Longitude = &longitude
	})
}

// update applies fn to a copy and commits it only if the file write succeeds.
func (d *Driver) update(id string, fn func(p *store.Profile)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}
	cur, ok := d.profiles[id]
	if !ok {
		return store.ErrNotFound
	}

	next := cur.Clone()
	fn(next)
	next.UpdatedAt = time.Now().Unix()

	d.profiles[id] = next
	if err := d.save(); err != nil {
		d.profiles[id] = cur
		return err
	}
	return nil
}

// save must be called with mu held.
func (d *Driver) save() error {
	return store.WriteJSONAtomic(d.path(), d.profiles)
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.ProfileStore = (*Driver)(nil)
