package service

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
)

type stubService struct {
	name   string
	conf   map[string]any
	closed *[]string
}

func (s *stubService) Handler() http.Handler { return http.NotFoundHandler() }
func (s *stubService) Prefix() string        { return s.name }
func (s *stubService) Unprotected() []string { return nil }

func (s *stubService) Close() error {
	if s.closed != nil {
		*s.closed = append(*s.closed, s.name)
	}
	return nil
}

func stub(name string, closed *[]string) NewService {
	return func(d *deps.Deps, conf map[string]any, log *slog.Logger) (Service, error) {
		return &stubService{name: name, conf: conf, closed: closed}, nil
	}
}

func failing(d *deps.Deps, conf map[string]any, log *slog.Logger) (Service, error) {
	return nil, errors.New("bad window")
}

// withRegistry runs with an empty registry and restores it afterwards.
func withRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = make(map[string]NewService)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

func TestRegister(t *testing.T) {
	withRegistry(t)

	if err := Register("api", stub("api", nil)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if Get("api") == nil {
		t.Fatal("Get returned nil for a registered service")
	}
	if err := Register("api", stub("api", nil)); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if err := Register("", stub("x", nil)); err == nil {
		t.Error("expected error for empty name")
	}
	if err := Register("x", nil); err == nil {
		t.Error("expected error for nil constructor")
	}
	if Get("nonexistent") != nil {
		t.Error("expected nil for an unregistered service")
	}
}

func TestMustRegister_PanicsOnDuplicate(t *testing.T) {
	withRegistry(t)
	MustRegister("rest", stub("rest", nil))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate MustRegister")
		}
	}()
	MustRegister("rest", stub("rest", nil))
}

func TestRegisteredServices_Sorted(t *testing.T) {
	withRegistry(t)
	for _, n := range []string{"rest", "api", "metrics"} {
		MustRegister(n, stub(n, nil))
	}
	if got := RegisteredServices(); !slices.Equal(got, []string{"api", "metrics", "rest"}) {
		t.Errorf("RegisteredServices() = %v", got)
	}
}

func TestInstantiate(t *testing.T) {
	withRegistry(t)
	MustRegister("api", stub("api", nil))
	MustRegister("rest", stub("rest", nil))

	tables := map[string]map[string]any{"api": {"ratelimit": map[string]any{"requests_per_window": 5}}}
	svcs, err := Instantiate(&deps.Deps{}, func(name string) map[string]any { return tables[name] }, nil)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if len(svcs) != 2 {
		t.Fatalf("expected 2 services, got %d", len(svcs))
	}
	if got := svcs["api"].(*stubService).conf; got["ratelimit"] == nil {
		t.Errorf("api did not receive its table: %v", got)
	}
	if got := svcs["rest"].(*stubService).conf; got == nil || len(got) != 0 {
		t.Errorf("rest should get an empty table, got %v", got)
	}
}

func TestInstantiate_FailureClosesBuiltServices(t *testing.T) {
	withRegistry(t)
	var closed []string
	MustRegister("api", stub("api", &closed))
	MustRegister("metrics", stub("metrics", &closed))
	MustRegister("rest", failing)

	_, err := Instantiate(&deps.Deps{}, nil, nil)
	if err == nil || !strings.Contains(err.Error(), `service "rest"`) {
		t.Fatalf("expected error naming rest, got %v", err)
	}
	if !slices.Equal(closed, []string{"metrics", "api"}) {
		t.Errorf("closed = %v, want reverse build order", closed)
	}
}

func TestInstantiate_MissingCoreService(t *testing.T) {
	withRegistry(t)
	MustRegister("api", stub("api", nil))

	if _, err := Instantiate(&deps.Deps{}, nil, nil); err == nil || !strings.Contains(err.Error(), "rest") {
		t.Errorf("expected missing core service error, got %v", err)
	}
}

func TestCoreServices(t *testing.T) {
	if !slices.Equal(CoreServices, []string{"api", "rest"}) {
		t.Errorf("unexpected core services %v", CoreServices)
	}
}
