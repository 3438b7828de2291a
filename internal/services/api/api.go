// Package api provides the /api/* endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/dispoahora-go/internal/components/activities"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/contacts"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/status"
	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/dispoahora-go/internal/interceptors/ratelimit"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration ([services.api]).
type Config struct {
	// Ratelimit overrides the login limiter. When requests_per_window is
	// unset, [auth] login_attempts_per_minute applies.
	Ratelimit ratelimit.Config `mapstructure:"ratelimit"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.Ratelimit.Prefix == "" {
		c.Ratelimit.Prefix = "login"
	}
}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new API service.
func New(d *deps.Deps, m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	authHandler := api.NewAuthHandler(d.Users, d.Sessions, d.UserAuth, d.Config.SessionTTL(), log)
	statusHandler := status.NewHandler(d.Status, log)
	contactsHandler := contacts.NewHandler(d.Profiles, d.Clock, log)

	login := http.Handler(http.HandlerFunc(authHandler.Login))
	if limiter := loginLimiter(d, c.Ratelimit, log); limiter != nil {
		login = limiter.Wrap(login)
	}

	r := chi.NewRouter()

	// Health endpoint (public)
	r.Get("/healthz", api.HealthHandler(d.HealthChecks))

	r.Route("/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/login", login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/status", func(r chi.Router) {
		r.Get("/", statusHandler.Get)
		r.Post("/toggle", statusHandler.Toggle)
		r.Get("/countdown", statusHandler.Stream)
	})

	r.Get("/activities", activities.ListHandler)

	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", contactsHandler.List)
		r.Get("/nearby", contactsHandler.Nearby)
	})

	r.Put("/profile/location", contactsHandler.UpdateLocation)

	return &Service{router: r, conf: &c, log: log}, nil
}

// loginLimiter returns nil when login limiting is disabled or no counter
// is available.
func loginLimiter(d *deps.Deps, c ratelimit.Config, log *slog.Logger) *ratelimit.Limiter {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = int64(d.Config.Auth.LoginAttemptsPerMinute)
	}
	if c.RequestsPerWindow <= 0 {
		return nil
	}
	if d.Cache == nil {
		log.Warn("login rate limit configured but no cache available")
		return nil
	}
	limiter := ratelimit.New(d.Cache, c, log)
	if d.RealIP != nil {
		limiter = limiter.WithKeyFunc(d.RealIP.ClientIP)
	}
	return limiter
}

// Handler returns the router wrapped in httpwrap.Canonicalize.
func (s *Service) Handler() http.Handler {
	return httpwrap.Canonicalize(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require session authentication.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/auth/login"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
