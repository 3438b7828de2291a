// Package profiles owns the profile rows: a cached repository over the store
// and the availability adapter built on it.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// Seed describes the row created for a new account.
type Seed struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	Latitude    *float64
	Longitude   *float64
}

// Repo reads profiles through an optional cache. Every write goes to the
// store first and then drops the cached row.
type Repo struct {
	store store.ProfileStore
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewRepo creates a repo. c may be nil to disable caching; ttl <= 0 uses
// cache.TTLProfile.
func NewRepo(ps store.ProfileStore, c cache.Cache, ttl time.Duration, log *slog.Logger) *Repo {
	if ttl <= 0 {
		ttl = cache.TTLProfile
	}
	return &Repo{store: ps, cache: c, ttl: ttl, log: logutil.NoopIfNil(log)}
}

func cacheKey(id string) string { return "profile:" + id }

// Get returns a profile by id. Returns store.ErrNotFound for unknown ids.
func (r *Repo) Get(ctx context.Context, id string) (*store.Profile, error) {
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, cacheKey(id)); err == nil {
			var p store.Profile
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
			r.log.Warn("dropping undecodable cached profile", "user_id", id)
			r.invalidate(ctx, id)
		}
	}

	p, err := r.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := r.cache.Set(ctx, cacheKey(id), data, r.ttl); err != nil {
				r.log.Debug("profile cache set failed", "user_id", id, "error", err)
			}
		}
	}
	return p, nil
}

// List returns every profile ordered by username. Lists bypass the cache.
func (r *Repo) List(ctx context.Context) ([]*store.Profile, error) {
	return r.store.ListProfiles(ctx)
}

// UpdateStatus replaces status and expiry together.
func (r *Repo) UpdateStatus(ctx context.Context, id, status string, expiresAt *string) error {
	return r.write(ctx, id, func() error { return r.store.UpdateStatus(ctx, id, status, expiresAt) })
}

// UpdateActivity sets the announced activity.
func (r *Repo) UpdateActivity(ctx context.Context, id, activity string) error {
	return r.write(ctx, id, func() error { return r.store.UpdateActivity(ctx, id, activity) })
}

// UpdateLocation sets the coordinates.
func (r *Repo) UpdateLocation(ctx context.Context, id string, latitude, longitude float64) error {
	return r.write(ctx, id, func() error { return r.store.UpdateLocation(ctx, id, latitude, longitude) })
}

func (r *Repo) write(ctx context.Context, id string, fn func() error) error {
	err := fn()
	r.invalidate(ctx, id)
	return err
}

func (r *Repo) invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, cacheKey(id)); err != nil {
		r.log.Warn("profile cache invalidation failed", "user_id", id, "error", err)
	}
}

// EnsureProfile creates the default Busy row for s if none exists. The seed's
// location is applied only when the row is created.
func (r *Repo) EnsureProfile(ctx context.Context, s Seed) (bool, error) {
	p := &store.Profile{
		ID:          s.ID,
		Username:    s.Username,
		DisplayName: s.DisplayName,
		AvatarURL:   s.AvatarURL,
		Status:      "Ocupado",
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
	}
	err := r.store.CreateProfile(ctx, p)
	if errors.Is(err, store.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.log.Info("created profile", "user_id", s.ID, "username", s.Username)
	return true, nil
}
