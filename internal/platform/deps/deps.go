// Package deps holds the dependencies shared by all HTTP services.
// main builds one Deps and passes it to every service constructor.
package deps

import (
	"errors"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/identity"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/profiles"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/status"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/config"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/realip"
)

// ErrIncomplete is returned by Validate when a required field is nil.
var ErrIncomplete = errors.New("deps: required dependency missing")

// Deps holds shared dependencies for all services.
type Deps struct {
	// Identity (for session-gated endpoints)
	Users    identity.UserRepo
	Sessions identity.SessionRepo
	UserAuth *identity.UserAuth

	// Profiles is the cached profiles repository.
	Profiles *profiles.Repo

	// Status owns the per-user availability machines.
	Status *status.Registry

	// Cache backs rate limiting counters.
	Cache cache.CacheWithCounter

	// RealIP resolves client addresses for logging and rate limiting.
	RealIP *realip.TrustedProxies

	// Clock is used by handlers that resolve status outside a machine.
	Clock availability.Clock

	// HealthChecks are reported by /api/healthz.
	HealthChecks map[string]api.HealthCheck

	Config *config.Config
}

// Validate reports the first missing required dependency.
func (d *Deps) Validate() error {
	switch {
	case d == nil:
		return ErrIncomplete
	case d.Users == nil:
		return errors.Join(ErrIncomplete, errors.New("users"))
	case d.Sessions == nil:
		return errors.Join(ErrIncomplete, errors.New("sessions"))
	case d.UserAuth == nil:
		return errors.Join(ErrIncomplete, errors.New("user auth"))
	case d.Profiles == nil:
		return errors.Join(ErrIncomplete, errors.New("profiles"))
	case d.Status == nil:
		return errors.Join(ErrIncomplete, errors.New("status registry"))
	case d.Config == nil:
		return errors.Join(ErrIncomplete, errors.New("config"))
	}
	return nil
}
