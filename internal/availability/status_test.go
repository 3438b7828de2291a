package availability_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
)

func TestParseWireStatus(t *testing.T) {
	tests := []struct {
		wire string
		want availability.Status
	}{
		{"Libre", availability.Free},
		{" Libre ", availability.Free},
		{"Ocupado", availability.Busy},
		{"Desconectado", availability.Busy},
		{"", availability.Busy},
		{"libre", availability.Busy},
	}
	for _, tt := range tests {
		if got := availability.ParseWireStatus(tt.wire); got != tt.want {
			t.Errorf("ParseWireStatus(%q) = %q, want %q", tt.wire, got, tt.want)
		}
	}

	if availability.Free.Wire() != "Libre" || availability.Busy.Wire() != "Ocupado" {
		t.Errorf("unexpected wire values: %q %q", availability.Free.Wire(), availability.Busy.Wire())
	}
}

func TestExpiry_TimeAndPtr(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := availability.NewExpiry(at)
	if string(e) != "2024-01-01T12:00:00Z" {
		t.Errorf("NewExpiry = %q", e)
	}
	got, err := e.Time()
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("expected %v, got %v", at, got)
	}

	// Offsets as returned by Postgres parse too.
	pg := availability.Expiry("2024-01-01T13:00:00.123456+01:00")
	if _, err := pg.Time(); err != nil {
		t.Errorf("postgres offset form should parse: %v", err)
	}

	if _, err := availability.Expiry("mañana").Time(); !errors.Is(err, availability.ErrMalformedExpiry) {
		t.Errorf("expected ErrMalformedExpiry, got %v", err)
	}

	if availability.Expiry("").Ptr() != nil {
		t.Error("zero expiry should encode as nil")
	}
	if p := e.Ptr(); p == nil || *p != string(e) {
		t.Errorf("unexpected Ptr: %v", p)
	}
	if availability.ExpiryFromPtr(nil) != "" {
		t.Error("nil should decode to zero expiry")
	}
}

func TestRecord_Validate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rec     availability.Record
		wantErr bool
	}{
		{"free one hour", availability.FreeRecord("u1", now), false},
		{"busy", availability.BusyRecord("u1"), false},
		{"busy with expiry", availability.Record{UserID: "u1", Status: availability.Busy, ExpiresAt: availability.NewExpiry(now.Add(time.Minute))}, true},
		{"free without expiry", availability.Record{UserID: "u1", Status: availability.Free}, true},
		{"free in the past", availability.Record{UserID: "u1", Status: availability.Free, ExpiresAt: availability.NewExpiry(now)}, true},
		{"free malformed", availability.Record{UserID: "u1", Status: availability.Free, ExpiresAt: "soon"}, true},
		{"unknown status", availability.Record{UserID: "u1", Status: "away"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, availability.ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestFreeRecord_ExpiresInOneHour(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := availability.FreeRecord("u1", now)
	got, err := rec.ExpiresAt.Time()
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if !got.Equal(now.Add(time.Hour)) {
		t.Errorf("expected expiry %v, got %v", now.Add(time.Hour), got)
	}
}
