// Package store provides persistence primitives and driver abstractions for
// profile rows.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (json, sqlite, mirror).
	Name() string
}

// ProfileStore persists profile rows.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]*Profile, error)

	// UpdateStatus replaces status and expiry together. A nil expiresAt
	// stores null.
	UpdateStatus(ctx context.Context, id, status string, expiresAt *string) error

	UpdateActivity(ctx context.Context, id, activity string) error
	UpdateLocation(ctx context.Context, id string, latitude, longitude float64) error
}

// Profile is one row of the profiles table. Status and StatusExpiresAt hold
// the wire values ("Libre"/"Ocupado", ISO-8601 or null).
type Profile struct {
	ID              string   `json:"id" gorm:"primaryKey"`
	Username        string   `json:"username" gorm:"uniqueIndex"`
	DisplayName     string   `json:"display_name"`
	AvatarURL       string   `json:"avatar_url"`
	Status          string   `json:"status"`
	StatusExpiresAt *string  `json:"status_expires_at"`
	Activity        string   `json:"activity"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	UpdatedAt       int64    `json:"updated_at"`
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.StatusExpiresAt != nil {
		v := *p.StatusExpiresAt
		c.StatusExpiresAt = &v
	}
	if p.Latitude != nil {
		v := *p.Latitude
		c.Latitude = &v
	}
	if p.Longitude != nil {
		v := *p.Longitude
		c.Longitude = &v
	}
	return &c
}
