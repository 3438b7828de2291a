// Package auth provides session authentication middleware for HTTP servers.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/identity"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// AuthGateConfig configures the session auth gate middleware.
type AuthGateConfig struct {
	// RequireAuth returns true if the given path requires session authentication.
	// Built by the server from its route groups and mounted services.
	RequireAuth func(path string) bool

	Log *slog.Logger

	// Sessions and Users may be nil only if RequireAuth always returns false.
	Sessions identity.SessionRepo
	Users    identity.UserRepo

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewAuthGate returns a middleware that enforces session authentication.
// If RequireAuth returns false for the request path, the request passes through
// without token parsing, session validation, or context enrichment.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := api.SessionToken(r)
			if token == "" {
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
				return
			}

			session, err := cfg.Sessions.Get(r.Context(), token)
			switch {
			case errors.Is(err, identity.ErrSessionNotFound):
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session not found or expired")
				return
			case errors.Is(err, identity.ErrSessionExpired):
				api.WriteUnauthorized(w, api.ReasonSessionExpired, "session has expired")
				return
			case err != nil:
				// The session store (e.g. valkey) is unreachable.
				appctx.GetLogger(r.Context()).Error("session lookup failed", "error", err)
				api.WriteError(w, http.StatusServiceUnavailable, api.ReasonUnavailable, "session store unavailable")
				return
			}
			// Repos may hand back a lapsed session between sweeps.
			if session.ExpiredAt(cfg.Now()) {
				api.WriteUnauthorized(w, api.ReasonSessionExpired, "session has expired")
				return
			}

			user, err := cfg.Users.Get(r.Context(), session.UserID)
			if err != nil {
				cfg.Log.Warn("session references unknown user", "user_id", session.UserID)
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session user not found")
				return
			}

			ctx := appctx.WithUser(r.Context(), &appctx.User{
				ID:          user.ID,
				Username:    user.Username,
				DisplayName: user.DisplayName,
			})

			// user_id goes to handler logs only; the access log runs outside this gate.
			ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("user_id", user.ID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
