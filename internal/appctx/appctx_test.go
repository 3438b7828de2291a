package appctx_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
)

func TestLogger(t *testing.T) {
	ctx := context.Background()
	if _, ok := appctx.LoggerFromContext(ctx); ok {
		t.Fatal("empty context should have no logger")
	}
	if appctx.GetLogger(ctx) != slog.Default() {
		t.Error("expected default logger fallback")
	}

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx = appctx.WithLogger(ctx, l)
	if appctx.GetLogger(ctx) != l {
		t.Error("expected attached logger")
	}
}

func TestUser(t *testing.T) {
	ctx := context.Background()
	if appctx.UserFromContext(ctx) != nil {
		t.Fatal("expected no user")
	}
	u := &appctx.User{ID: "u1", Username: "ana"}
	if got := appctx.UserFromContext(appctx.WithUser(ctx, u)); got != u {
		t.Errorf("expected %v, got %v", u, got)
	}
}
