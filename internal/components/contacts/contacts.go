// Package contacts lists the other users with their effective status and
// handles location updates.
package contacts

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

const (
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 50000
)

// ProfileSource is the subset of the profiles repo contacts needs.
type ProfileSource interface {
	Get(ctx context.Context, id string) (*store.Profile, error)
	List(ctx context.Context) ([]*store.Profile, error)
	UpdateLocation(ctx context.Context, id string, latitude, longitude float64) error
}

// Contact is another user as shown in the contacts list.
type Contact struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Status      string   `json:"status"`
	ExpiresAt   *string  `json:"expires_at"`
	Label       string   `json:"label,omitempty"`
	Activity    string   `json:"activity,omitempty"`
	DistanceM   *float64 `json:"distance_m,omitempty"`
}

// LocationRequest is the body of PUT /api/profile/location.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// Handler serves the contacts endpoints.
type Handler struct {
	profiles ProfileSource
	clock    availability.Clock
	log      *slog.Logger
}

// NewHandler creates a contacts handler.
func NewHandler(profiles ProfileSource, clock availability.Clock, log *slog.Logger) *Handler {
	return &Handler{profiles: profiles, clock: clock, log: logutil.NoopIfNil(log)}
}

func (h *Handler) toContact(p *store.Profile) Contact {
	now := h.clock.Now()
	eff := availability.Resolve(availability.Record{
		UserID:    p.ID,
		Status:    availability.ParseWireStatus(p.Status),
		ExpiresAt: availability.ExpiryFromPtr(p.StatusExpiresAt),
	}, now)

	c := Contact{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Status:      eff.Status.Wire(),
		ExpiresAt:   eff.ExpiresAt.Ptr(),
	}
	if eff.Status == availability.Free {
		c.Activity = p.Activity
		if eff.Countdown() {
			c.Label = availability.CountdownLabel(availability.Remaining(eff.ExpiresAt, now))
		} else {
			c.Label = availability.StaticLabel
		}
	}
	return c
}

func (h *Handler) others(ctx context.Context, selfID string) ([]*store.Profile, error) {
	all, err := h.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Profile, 0, len(all))
	for _, p := range all {
		if p.ID != selfID {
			out = append(out, p)
		}
	}
	return out, nil
}

// List handles GET /api/contacts. Free contacts come first, then by username.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	profiles, err := h.others(r.Context(), u.ID)
	if err != nil {
		api.WriteFailure(w, r, err, "failed to list contacts")
		return
	}

	contacts := make([]Contact, 0, len(profiles))
	for _, p := range profiles {
		contacts = append(contacts, h.toContact(p))
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		fi := contacts[i].Status == availability.WireFree
		fj := contacts[j].Status == availability.WireFree
		if fi != fj {
			return fi
		}
		return contacts[i].Username < contacts[j].Username
	})
	api.WriteJSON(w, http.StatusOK, contacts)
}

// Nearby handles GET /api/contacts/nearby?lat=&lon=&radius_m=. Without
// lat/lon the caller's stored location is used.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	q := r.URL.Query()
	radius := float64(DefaultRadiusMeters)
	if s := q.Get("radius_m"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 || v > MaxRadiusMeters || math.IsNaN(v) {
			api.WriteBadRequest(w, api.ReasonInvalidField, "radius_m must be between 0 and 50000")
			return
		}
		radius = v
	}

	lat, lon, err := h.origin(r, u.ID)
	if err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}

	profiles, err := h.others(r.Context(), u.ID)
	if err != nil {
		api.WriteFailure(w, r, err, "failed to list contacts")
		return
	}

	contacts := make([]Contact, 0)
	for _, p := range profiles {
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		d := DistanceMeters(lat, lon, *p.Latitude, *p.Longitude)
		if d > radius {
			continue
		}
		c := h.toContact(p)
		rounded := math.Round(d)
		c.DistanceM = &rounded
		contacts = append(contacts, c)
	}
	sort.SliceStable(contacts, func(i, j int) bool { return *contacts[i].DistanceM < *contacts[j].DistanceM })
	api.WriteJSON(w, http.StatusOK, contacts)
}

var errNoOrigin = errors.New("lat and lon are required when no location is stored")

func (h *Handler) origin(r *http.Request, userID string) (float64, float64, error) {
	q := r.URL.Query()
	latS, lonS := q.Get("lat"), q.Get("lon")
	if latS != "" || lonS != "" {
		lat, err1 := strconv.ParseFloat(latS, 64)
		lon, err2 := strconv.ParseFloat(lonS, 64)
		if err1 != nil || err2 != nil || math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return 0, 0, errors.New("lat and lon must be valid coordinates")
		}
		return lat, lon, nil
	}
	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil || p.Latitude == nil || p.Longitude == nil {
		return 0, 0, errNoOrigin
	}
	return *p.Latitude, *p.Longitude, nil
}

// UpdateLocation handles PUT /api/profile/location.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	var req LocationRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.profiles.UpdateLocation(r.Context(), u.ID, *req.Latitude, *req.Longitude); err != nil {
		api.WriteFailure(w, r, err, "failed to update location")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
