package store_test

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/sqlite"
)

func TestAvailableDrivers(t *testing.T) {
	if got := store.AvailableDrivers(); !slices.Equal(got, []string{"json", "mirror", "sqlite"}) {
		t.Errorf("AvailableDrivers() = %v", got)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for a second json registration")
		}
	}()
	store.Register("json", func(*store.DriverConfig) (store.Driver, error) { return nil, nil })
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     *store.DriverConfig
		wantErr string
	}{
		{"nil config", nil, "nil driver config"},
		{"unknown driver", &store.DriverConfig{Driver: "postgres", DataDir: t.TempDir()}, "available: [json mirror sqlite]"},
		{"missing data dir", &store.DriverConfig{Driver: "sqlite"}, "data dir is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.Open(ctx, tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpen_EachDriver(t *testing.T) {
	for _, name := range store.AvailableDrivers() {
		t.Run(name, func(t *testing.T) {
			d, ps, err := store.Open(context.Background(), &store.DriverConfig{Driver: name, DataDir: t.TempDir()})
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer d.Close()
			if d.Name() != name {
				t.Errorf("Name() = %q, want %q", d.Name(), name)
			}
			if ps == nil {
				t.Error("expected a ProfileStore")
			}
		})
	}
}

func TestProfileClone(t *testing.T) {
	exp := "2024-01-01T13:00:00Z"
	lat := 1.5
	p := &store.Profile{ID: "a", StatusExpiresAt: &exp, Latitude: &lat}
	c := p.Clone()
	*c.StatusExpiresAt = "changed"
	*c.Latitude = 9
	if *p.StatusExpiresAt != exp || *p.Latitude != 1.5 {
		t.Error("clone shares pointers with the original")
	}
}
