package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups is the single source of truth for gating decisions.
// Exceptions are declared per service via Service.Unprotected().
var routeGroups = []RouteGroup{
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},
	{Name: "rest", PathPrefix: "/rest/v1", RequiresAuth: true},
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired checks if a given path requires a session.
// Unknown paths require auth.
func IsAuthRequired(path string, mountedServices []service.Service) bool {
	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		svcBase := ""
		if prefix := svc.Prefix(); prefix != "" {
			svcBase = "/" + prefix
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, svcBase+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		if path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	prefix := svc.Prefix()
	if prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes creates the chi router with all services mounted.
func (s *Server) setupRoutes(order []string) chi.Router {
	r := chi.NewRouter()

	// RequestID must come first so GetReqID works in the request logger.
	// The access log wraps the response before Recoverer writes through it,
	// so panics are logged with their 500.
	r.Use(middleware.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger, s.deps.RealIP))
	r.Use(httpmw.AccessLogMiddleware(s.logger, s.deps.RealIP))
	r.Use(middleware.Recoverer)
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth: func(path string) bool {
			return IsAuthRequired(path, s.mountedServices)
		},
		Log:      s.logger,
		Sessions: s.deps.Sessions,
		Users:    s.deps.Users,
	}))

	for _, name := range order {
		s.mountService(r, s.services[name])
	}

	return r
}
