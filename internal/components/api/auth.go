package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/identity"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "session"

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users    identity.UserRepo
	sessions identity.SessionRepo
	auth     *identity.UserAuth
	ttl      time.Duration
	log      *slog.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(users identity.UserRepo, sessions identity.SessionRepo, auth *identity.UserAuth, ttl time.Duration, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		auth:     auth,
		ttl:      ttl,
		log:      logutil.NoopIfNil(log),
	}
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

// UserResponse describes the caller.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// LoginResponse is the response for a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	user, err := h.auth.Authenticate(ctx, h.users, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) && !errors.Is(err, identity.ErrInvalidPassword) {
			log.Error("login failed", "error", err)
		} else {
			log.Info("login rejected", "username", req.Username)
		}
		WriteUnauthorized(w, ReasonInvalidCredentials, "invalid username or password")
		return
	}

	session, err := h.sessions.Create(ctx, user.ID, h.ttl)
	if err != nil {
		log.Error("failed to create session", "error", err)
		WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	log.Info("login succeeded", "user_id", user.ID)
	WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		User: UserResponse{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
		},
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := SessionToken(r)
	if token == "" {
		WriteUnauthorized(w, ReasonUnauthenticated, "no session token provided")
		return
	}

	h.sessions.Delete(r.Context(), token)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		MaxAge:   -1,
	})

	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := appctx.UserFromContext(r.Context())
	if u == nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}
	WriteJSON(w, http.StatusOK, UserResponse{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName})
}

// SessionToken gets the session token from the cookie or the Authorization
// header.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
