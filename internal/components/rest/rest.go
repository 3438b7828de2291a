// Package rest exposes the profiles table in the PostgREST dialect the
// status card speaks: horizontal filtering with eq., vertical filtering with
// select=, and PATCH with Prefer: return=minimal|representation.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// Columns lists the selectable columns of the profiles resource.
var Columns = []string{
	"id", "username", "display_name", "avatar_url", "status",
	"status_expires_at", "activity", "latitude", "longitude", "updated_at",
}

// filterable columns and the profile field each one compares against.
var filters = map[string]func(*store.Profile) string{
	"id":       func(p *store.Profile) string { return p.ID },
	"username": func(p *store.Profile) string { return p.Username },
	"status":   func(p *store.Profile) string { return p.Status },
}

// ProfileSource is the subset of the profiles repo the resource needs.
type ProfileSource interface {
	Get(ctx context.Context, id string) (*store.Profile, error)
	List(ctx context.Context) ([]*store.Profile, error)
	UpdateStatus(ctx context.Context, id, status string, expiresAt *string) error
}

// PatchRequest is the PATCH body. A missing or null status_expires_at
// clears the column.
type PatchRequest struct {
	Status          string  `json:"status" validate:"required,oneof=Libre Ocupado"`
	StatusExpiresAt *string `json:"status_expires_at"`
}

// Handler serves /rest/v1/profiles.
type Handler struct {
	profiles ProfileSource
	log      *slog.Logger
}

// NewHandler creates the profiles resource handler.
func NewHandler(profiles ProfileSource, log *slog.Logger) *Handler {
	return &Handler{profiles: profiles, log: logutil.NoopIfNil(log)}
}

type query struct {
	eq   map[string]string
	cols []string
}

func parseQuery(r *http.Request) (query, error) {
	q := query{eq: make(map[string]string)}
	for key, values := range r.URL.Query() {
		v := values[len(values)-1]
		if key == "select" {
			cols, err := parseSelect(v)
			if err != nil {
				return q, err
			}
			q.cols = cols
			continue
		}
		if _, ok := filters[key]; !ok {
			return q, fmt.Errorf("column %q cannot be filtered", key)
		}
		val, ok := strings.CutPrefix(v, "eq.")
		if !ok {
			return q, fmt.Errorf("unsupported operator in %s=%s", key, v)
		}
		q.eq[key] = val
	}
	return q, nil
}

func parseSelect(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return nil, nil
	}
	var cols []string
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if !isColumn(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func isColumn(c string) bool {
	for _, col := range Columns {
		if col == c {
			return true
		}
	}
	return false
}

func (q query) matches(p *store.Profile) bool {
	for col, want := range q.eq {
		if filters[col](p) != want {
			return false
		}
	}
	return true
}

// project renders p restricted to cols, or every column when cols is empty.
func project(p *store.Profile, cols []string) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return row, nil
	}
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c] = row[c]
	}
	return out, nil
}

func (h *Handler) rows(ctx context.Context, q query) ([]*store.Profile, error) {
	if id, ok := q.eq["id"]; ok {
		p, err := h.profiles.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !q.matches(p) {
			return nil, nil
		}
		return []*store.Profile{p}, nil
	}

	all, err := h.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if q.matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *Handler) render(w http.ResponseWriter, status int, rows []*store.Profile, cols []string) {
	body := make([]map[string]any, 0, len(rows))
	for _, p := range rows {
		row, err := project(p, cols)
		if err != nil {
			api.WriteInternalError(w, "failed to encode row")
			return
		}
		body = append(body, row)
	}
	api.WriteJSON(w, status, body)
}

// Get handles GET /rest/v1/profiles. The response is always a JSON array;
// an unmatched filter yields [].
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if appctx.UserFromContext(r.Context()) == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}
	rows, err := h.rows(r.Context(), q)
	if err != nil {
		api.WriteFailure(w, r, err, "profiles query failed")
		return
	}
	h.render(w, http.StatusOK, rows, q.cols)
}

// Patch handles PATCH /rest/v1/profiles?id=eq.<id>. Only the caller's own
// row can be written; status and expiry are replaced together.
func (h *Handler) Patch(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}
	id, ok := q.eq["id"]
	if !ok || len(q.eq) != 1 {
		api.WriteBadRequest(w, api.ReasonMissingField, "PATCH requires exactly one id=eq. filter")
		return
	}
	if id != u.ID {
		api.WriteForbidden(w, "profiles can only be updated by their owner")
		return
	}

	var req PatchRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	rec := availability.Record{
		UserID:    id,
		Status:    availability.ParseWireStatus(req.Status),
		ExpiresAt: availability.ExpiryFromPtr(req.StatusExpiresAt),
	}
	// Zero now: only the status/expiry pairing and the timestamp format are checked.
	if err := rec.Validate(time.Time{}); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}

	err = h.profiles.UpdateStatus(r.Context(), id, rec.Status.Wire(), rec.ExpiresAt.Ptr())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		api.WriteFailure(w, r, err, "profiles update failed")
		return
	}
	notFound := err != nil

	if !preferRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if notFound {
		h.render(w, http.StatusOK, nil, q.cols)
		return
	}
	p, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		api.WriteFailure(w, r, err, "failed to read updated row")
		return
	}
	h.render(w, http.StatusOK, []*store.Profile{p}, q.cols)
}

// preferRepresentation reports whether the client asked for the updated
// rows back. PostgREST defaults to return=minimal for PATCH.
func preferRepresentation(r *http.Request) bool {
	for _, v := range r.Header.Values("Prefer") {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "return=representation" {
				return true
			}
		}
	}
	return false
}
