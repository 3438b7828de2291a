// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/config"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// ErrMissingDeps is returned when New is called without dependencies.
var ErrMissingDeps = errors.New("server dependencies not provided")

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	deps       *deps.Deps
	httpServer *http.Server
	logger     *slog.Logger
	services   map[string]service.Service

	// Stored in mount order; closed in reverse order during shutdown.
	mountedServices []service.Service
}

// New creates a Server that mounts every service in services. Services are
// mounted in name order.
func New(cfg *config.Config, d *deps.Deps, logger *slog.Logger, services map[string]service.Service) (*Server, error) {
	if d == nil {
		return nil, ErrMissingDeps
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		deps:     d,
		logger:   logutil.NoopIfNil(logger),
		services: services,
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	s.httpServer = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.setupRoutes(names),
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays unset: the countdown stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"mode", s.cfg.Mode,
		"services", len(s.mountedServices),
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and all mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	// Last mounted is first closed.
	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error", "service", svc.Prefix(), "error", err)
			continue
		}
		s.logger.Debug("service closed", "service", svc.Prefix())
	}

	return httpErr
}
