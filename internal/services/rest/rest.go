// Package rest provides the /rest/v1/* endpoints.
package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/dispoahora-go/internal/components/rest"
	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("rest", New)
}

// Service serves the PostgREST-style profiles resource.
type Service struct {
	router chi.Router
}

// New creates the rest service. It takes no configuration.
func New(d *deps.Deps, m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var empty struct{}
	unused, err := svccfg.DecodeWithUnused(m, &empty)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "rest", "unused_keys", unused)
	}

	h := rest.NewHandler(d.Profiles, log)

	r := chi.NewRouter()
	r.Get("/profiles", h.Get)
	r.Patch("/profiles", h.Patch)

	return &Service{router: r}, nil
}

// Handler returns the router wrapped in httpwrap.Canonicalize.
func (s *Service) Handler() http.Handler {
	return httpwrap.Canonicalize(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "rest/v1"
}

// Unprotected returns nil: every row access needs a session.
func (s *Service) Unprotected() []string {
	return nil
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
