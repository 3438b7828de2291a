// Package storetest provides the conformance suite every ProfileStore driver
// runs.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"
)

// Profile returns a fresh Busy profile row.
func Profile(id, username string) *store.Profile {
	return &store.Profile{
		ID:          id,
		Username:    username,
		DisplayName: username,
		Status:      "Ocupado",
	}
}

func strPtr(s string) *string { return &s }

// RunDriverTests opens cfg and runs the suite against it.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	t.Helper()
	ctx := context.Background()

	driver, ps, err := store.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}

	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, ctx, ps) })
	t.Run("Duplicate", func(t *testing.T) { testDuplicate(t, ctx, ps) })
	t.Run("UpdateStatus", func(t *testing.T) { testUpdateStatus(t, ctx, ps) })
	t.Run("UpdateActivityAndLocation", func(t *testing.T) { testActivityLocation(t, ctx, ps) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, ctx, ps) })
	t.Run("List", func(t *testing.T) { testList(t, ctx, ps) })
}

func testCreateGet(t *testing.T, ctx context.Context, ps store.ProfileStore) {
	p := Profile("id-ana", "ana")
	p.AvatarURL = "https://example.com/ana.png"
	if err := ps.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	got, err := ps.GetProfile(ctx, "id-ana")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Username != "ana" || got.Status != "Ocupado" || got.AvatarURL != p.AvatarURL {
		t.Errorf("unexpected row: %+v", got)
	}
	if got.StatusExpiresAt != nil {
		t.Errorf("expected null expiry, got %q", *got.StatusExpiresAt)
	}
	if got.UpdatedAt == 0 {
		t.Error("expected updated_at to be set")
	}
}

func testDuplicate(t *testing.T, ctx context.Context, ps store.ProfileStore) {
	if err := ps.CreateProfile(ctx, Profile("id-dup", "dup")); err != nil {
		t.Fatal(err)
	}
	if err := ps.CreateProfile(ctx, Profile("id-dup", "dup2")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate id, got %v", err)
	}
	if err := ps.CreateProfile(ctx, Profile("id-dup-2", "dup")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate username, got %v", err)
	}
}

func testUpdateStatus(t *testing.T, ctx context.Context, ps store.ProfileStore) {
	if err := ps.CreateProfile(ctx, Profile("id-luis", "luis")); err != nil {
		t.Fatal(err)
	}

	expiry := "2024-01-01T13:00:00Z"
	if err := ps.UpdateStatus(ctx, "id-luis", "Libre", strPtr(expiry)); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ := ps.GetProfile(ctx, "id-luis")
	if got.Status != "Libre" || got.StatusExpiresAt == nil || *got.StatusExpiresAt != expiry {
		t.Errorf("unexpected row after going free: %+v", got)
	}

	if err := ps.UpdateStatus(ctx, "id-luis", "Ocupado", nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ = ps.GetProfile(ctx, "id-luis")
	if got.Status != "Ocupado" || got.StatusExpiresAt != nil {
		t.Errorf("expected busy with null expiry, got %+v", got)
	}
}

func testActivityLocation(t *testing.T, ctx context.Context, ps store.ProfileStore) {
	if err := ps.CreateProfile(ctx, Profile("id-eva", "eva")); err != nil {
		t.Fatal(err)
	}
	if err := ps.UpdateActivity(ctx, "id-eva", "Café"); err != nil {
		t.Fatal(err)
	}
	if err := ps.UpdateLocation(ctx, "id-eva", 40.4168, -3.7038); err != nil {
		t.Fatal(err)
	}

	got, _ := ps.GetProfile(ctx, "id-eva")
	if got.Activity != "Café" {
		t.Errorf("unexpected activity %q", got.Activity)
	}
	if got.Latitude == nil || got.Longitude == nil || *got.Latitude != 40.4168 || *got.Longitude != -3.7038 {
		t.Errorf("unexpected location: %v %v", got.Latitude, got.Longitude)
	}
}

func testNotFound(t *testing.T, ctx context.Context, ps store.ProfileStore) {
	if _, err := ps.GetProfile(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetProfile: expected ErrNotFound, got %v", err)
	}
	if err := ps.UpdateStatus(ctx, "ghost", "Libre", strPtr("2024-01-01T13:00:00Z")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateStatus: expected ErrNotFound, got %v", err)
	}
	if err := ps.UpdateActivity(ctx, "ghost", "Cena"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateActivity: expected ErrNotFound, got %v", err)
	}
	if err := ps.UpdateLocation(ctx, "ghost", 0, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateLocation: expected ErrNotFound, got %v", err)
	}
}

func testList(t *testing.T, ctx context.Context, ps store.ProfileStore) {
	list, err := ps.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(list) < 4 {
		t.Fatalf("expected rows from earlier subtests, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Username > list[i].Username {
			t.Errorf("list not ordered by username: %q before %q", list[i-1].Username, list[i].Username)
		}
	}
}
