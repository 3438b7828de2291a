package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/realip"
)

// logRecorder captures records together with the attrs the logger carried.
type logRecorder struct {
	mu      sync.Mutex
	records []logRecord
}

type logRecord struct {
	message string
	level   slog.Level
	attrs   map[string]any
}

type recorderHandler struct {
	parent *logRecorder
	attrs  []slog.Attr
}

func newRecorder() (*logRecorder, *slog.Logger) {
	rec := &logRecorder{}
	return rec, slog.New(&recorderHandler{parent: rec})
}

func (h *recorderHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recorderHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	h.parent.mu.Lock()
	h.parent.records = append(h.parent.records, logRecord{message: r.Message, level: r.Level, attrs: attrs})
	h.parent.mu.Unlock()
	return nil
}

func (h *recorderHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &recorderHandler{parent: h.parent, attrs: merged}
}

func (h *recorderHandler) WithGroup(string) slog.Handler { return h }

func (r *logRecorder) find(t *testing.T, msg string) logRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.message == msg {
			return rec
		}
	}
	t.Fatalf("no %q record among %d", msg, len(r.records))
	return logRecord{}
}

func newRouter(logger *slog.Logger, withRequestLogger bool, h http.HandlerFunc) chi.Router {
	proxies, _ := realip.NewTrustedProxies([]string{"10.0.0.0/8"})
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if withRequestLogger {
		r.Use(RequestLoggerMiddleware(logger, proxies))
	}
	r.Use(AccessLogMiddleware(logger, proxies))
	r.Use(chimw.Recoverer)
	r.HandleFunc("/*", h)
	return r
}

var requiredFields = []string{"request_id", "method", "path", "client_ip", "status", "bytes", "duration_ms"}

func TestAccessLog_RequiredFields(t *testing.T) {
	rec, logger := newRecorder()
	r := newRouter(logger, true, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status?x=1", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := rec.find(t, "request")
	for _, f := range requiredFields {
		if _, ok := got.attrs[f]; !ok {
			t.Errorf("missing access log field %q", f)
		}
	}
	if got.attrs["path"] != "/api/status" {
		t.Errorf("path = %v, want query stripped", got.attrs["path"])
	}
	if got.attrs["client_ip"] != "198.51.100.9" {
		t.Errorf("client_ip = %v, want forwarded address", got.attrs["client_ip"])
	}
	if got.attrs["status"] != int64(200) || got.attrs["bytes"] != int64(5) {
		t.Errorf("status/bytes = %v/%v", got.attrs["status"], got.attrs["bytes"])
	}
}

func TestAccessLog_FallbackWithoutRequestLogger(t *testing.T) {
	rec, logger := newRecorder()
	r := newRouter(logger, false, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/status/toggle", nil)
	req.RemoteAddr = "203.0.113.1:999"
	r.ServeHTTP(httptest.NewRecorder(), req)

	got := rec.find(t, "request")
	for _, f := range requiredFields {
		if _, ok := got.attrs[f]; !ok {
			t.Errorf("fallback: missing field %q", f)
		}
	}
	if got.attrs["method"] != http.MethodPost || got.attrs["client_ip"] != "203.0.113.1" {
		t.Errorf("unexpected fallback attrs %v", got.attrs)
	}
	if got.attrs["status"] != int64(http.StatusAccepted) {
		t.Errorf("status = %v, want 202", got.attrs["status"])
	}
}

func TestAccessLog_PanicLogsStatus500(t *testing.T) {
	rec, logger := newRecorder()
	r := newRouter(logger, true, func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("response = %d, want 500", w.Code)
	}
	got := rec.find(t, "request")
	if got.attrs["status"] != int64(500) {
		t.Errorf("status = %v, want 500", got.attrs["status"])
	}
	if got.level != slog.LevelError {
		t.Errorf("level = %v, want ERROR", got.level)
	}
}

func TestLevelForStatus(t *testing.T) {
	tests := map[int]slog.Level{
		200: slog.LevelInfo,
		202: slog.LevelInfo,
		304: slog.LevelInfo,
		401: slog.LevelWarn,
		429: slog.LevelWarn,
		500: slog.LevelError,
		503: slog.LevelError,
	}
	for status, want := range tests {
		if got := levelForStatus(status); got != want {
			t.Errorf("levelForStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestRequestLogger_HandlersInheritFields(t *testing.T) {
	rec, logger := newRecorder()
	r := newRouter(logger, true, func(w http.ResponseWriter, r *http.Request) {
		appctx.GetLogger(r.Context()).Info("handler")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/me", nil))

	h := rec.find(t, "handler")
	access := rec.find(t, "request")
	if h.attrs["request_id"] == "" || h.attrs["request_id"] != access.attrs["request_id"] {
		t.Errorf("handler and access log disagree on request_id: %v vs %v", h.attrs["request_id"], access.attrs["request_id"])
	}
	if _, ok := h.attrs["status"]; ok {
		t.Error("handler record must not carry response fields")
	}
}
