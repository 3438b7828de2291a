// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// DBFile is the database file name inside the data dir.
const DBFile = "dispoahora.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Driver and store.ProfileStore using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return New(cfg.DataDir), nil
}

// New returns an uninitialized driver rooted at dataDir.
func New(dataDir string) *Driver {
	return &Driver{dataDir: dataDir}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(d.dataDir, DBFile)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db

	// One writer at a time avoids SQLITE_BUSY under concurrent toggles.
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(&store.Profile{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateProfile inserts a new row.
func (d *Driver) CreateProfile(ctx context.Context, p *store.Profile) error {
	row := p.Clone()
	if row.UpdatedAt == 0 {
		row.UpdatedAt = time.Now().Unix()
	}
	if err := d.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetProfile retrieves a row by id.
func (d *Driver) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	var p store.Profile
	if err := d.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns all rows ordered by username.
func (d *Driver) ListProfiles(ctx context.Context) ([]*store.Profile, error) {
	var profiles []*store.Profile
	if err := d.db.WithContext(ctx).Order("username").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateStatus replaces status and expiry in one statement.
func (d *Driver) UpdateStatus(ctx context.Context, id, status string, expiresAt *string) error {
	return d.update(ctx, id, map[string]any{
		"status":            status,
		"status_expires_at": expiresAt,
	})
}

// UpdateActivity sets the announced activity.
func (d *Driver) UpdateActivity(ctx context.Context, id, activity string) error {
	return d.update(ctx, id, map[string]any{"activity": activity})
}

// UpdateLocation sets the coordinates.
func (d *Driver) UpdateLocation(ctx context.Context, id string, latitude, longitude float64) error {
	return d.update(ctx, id, map[string]any{"latitude": latitude, "longitude": longitude})
}

func (d *Driver) update(ctx context.Context, id string, cols map[string]any) error {
	cols["updated_at"] = time.Now().Unix()
	result := d.db.WithContext(ctx).Model(&store.Profile{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DB exposes the underlying handle to drivers layered on this one.
func (d *Driver) DB() *gorm.DB { return d.db }

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.ProfileStore = (*Driver)(nil)
