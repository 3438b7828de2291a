package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/activities"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// Response is the status card as rendered for the caller.
type Response struct {
	Status    string  `json:"status"`
	ExpiresAt *string `json:"expires_at"`
	Countdown string  `json:"countdown,omitempty"`
	Label     string  `json:"label,omitempty"`
	Activity  string  `json:"activity,omitempty"`
	Pending   bool    `json:"pending"`
	Stale     bool    `json:"stale"`
}

// ToggleRequest optionally picks the activity announced when going Free.
type ToggleRequest struct {
	Activity string `json:"activity" validate:"omitempty,max=64"`
}

// Handler serves /api/status.
type Handler struct {
	reg *Registry
	log *slog.Logger
}

// NewHandler creates a status handler over reg.
func NewHandler(reg *Registry, log *slog.Logger) *Handler {
	return &Handler{reg: reg, log: logutil.NoopIfNil(log)}
}

func render(st availability.State, activity string, stale bool, now time.Time) Response {
	resp := Response{
		Status:    st.Status.Wire(),
		ExpiresAt: st.ExpiresAt.Ptr(),
		Pending:   st.Pending,
		Stale:     stale,
	}
	if st.Status == availability.Free {
		resp.Activity = activity
		if st.ExpiresAt.IsZero() {
			resp.Label = availability.StaticLabel
		} else {
			resp.Countdown = availability.Remaining(st.ExpiresAt, now)
			resp.Label = availability.CountdownLabel(resp.Countdown)
		}
	}
	return resp
}

// Get handles GET /api/status. Each call is a screen entry and reconciles
// against the store.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	view := h.reg.Enter(r.Context(), u.ID)
	api.WriteJSON(w, http.StatusOK, render(view.State, view.Activity, view.Stale, h.reg.Clock().Now()))
}

// Toggle handles POST /api/status/toggle. The write continues after the
// response; the returned state is the optimistic one.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req ToggleRequest
	if r.ContentLength != 0 {
		if !api.DecodeAndValidate(w, r, &req) {
			return
		}
	}

	m := h.reg.Machine(u.ID)
	if !m.State().Loaded {
		h.reg.Enter(r.Context(), u.ID)
	}
	if req.Activity != "" {
		name, err := activities.Normalize(req.Activity)
		if err != nil {
			api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
			return
		}
		m.SetActivity(name)
	}

	st := m.Toggle(r.Context())
	appctx.GetLogger(r.Context()).Info("status toggled", "status", st.Status.Wire())
	api.WriteJSON(w, http.StatusAccepted, render(st, m.Activity(), false, h.reg.Clock().Now()))
}

// Stream handles GET /api/status/countdown as Server-Sent Events. It sends a
// "state" event on every state change and a "tick" event per countdown step.
// Everything stops when the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	ctx := r.Context()
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	rc.SetWriteDeadline(time.Time{})

	m := h.reg.Machine(u.ID)
	if !m.State().Loaded {
		h.reg.Enter(ctx, u.ID)
	}
	states, unsubscribe := m.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	clock := h.reg.Clock()
	countdown := availability.NewCountdown(clock, h.reg.TickInterval())
	defer countdown.Stop()

	// counting is the expiry the countdown was started for, kept after the
	// countdown finishes so it is not replayed.
	var ticks <-chan string
	var counting availability.Expiry
	apply := func(st availability.State) error {
		if err := writeEvent(rc, w, "state", render(st, m.Activity(), false, clock.Now())); err != nil {
			return err
		}
		if st.Status == availability.Free && !st.ExpiresAt.IsZero() {
			if counting != st.ExpiresAt {
				counting = st.ExpiresAt
				ticks = countdown.Start(ctx, st.ExpiresAt)
			}
			return nil
		}
		countdown.Stop()
		ticks = nil
		counting = ""
		return nil
	}

	if err := apply(m.State()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := apply(st); err != nil {
				return
			}
		case text, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			if err := writeEvent(rc, w, "tick", map[string]string{
				"countdown": text,
				"label":     availability.CountdownLabel(text),
			}); err != nil {
				return
			}
		}
	}
}

func writeEvent(rc *http.ResponseController, w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
