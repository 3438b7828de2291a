package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// CoreServices must be registered in every build; Instantiate fails when one
// is missing.
var CoreServices = []string{"api", "rest"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register adds a constructor under name. Registering a name twice is an
// error.
func Register(name string, newFunc NewService) error {
	if name == "" || newFunc == nil {
		return errors.New("service: empty name or nil constructor")
	}
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor for name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the registered names, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	registryMu.RUnlock()

	slices.Sort(names)
	return names
}

// Instantiate builds every registered service in name order. conf returns the
// raw table for a service. If a constructor fails, the services built so far
// are closed and the error names the failing service.
func Instantiate(d *deps.Deps, conf func(name string) map[string]any, log *slog.Logger) (map[string]Service, error) {
	log = logutil.NoopIfNil(log)
	names := RegisteredServices()
	for _, core := range CoreServices {
		if !slices.Contains(names, core) {
			return nil, fmt.Errorf("core service %q is not registered", core)
		}
	}

	built := make(map[string]Service, len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		var raw map[string]any
		if conf != nil {
			raw = conf(name)
		}
		if raw == nil {
			raw = map[string]any{}
		}

		svc, err := Get(name)(d, raw, log.With("service", name))
		if err != nil {
			for i := len(order) - 1; i >= 0; i-- {
				if cerr := built[order[i]].Close(); cerr != nil {
					log.Warn("close after failed start", "service", order[i], "error", cerr)
				}
			}
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		built[name] = svc
		order = append(order, name)
	}
	return built, nil
}
