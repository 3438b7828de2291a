package service

import (
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
)

// Service represents an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
	Unprotected() []string
}

// NewService is the constructor function type for services. conf is the
// raw [services.<name>] table, empty when absent.
type NewService func(d *deps.Deps, conf map[string]any, log *slog.Logger) (Service, error)
