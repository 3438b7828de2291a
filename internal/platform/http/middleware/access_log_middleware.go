package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/realip"
)

// AccessLogMiddleware writes one "request" record per request with the
// response status, size and duration. 5xx responses log at error and 4xx at
// warn. Base fields come from the context logger set by
// RequestLoggerMiddleware; log and proxies are the fallback.
func AccessLogMiddleware(log *slog.Logger, proxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = baseFields(log, r, proxies)
				}
				status := ww.Status()
				// Base fields are already attached; adding them again duplicates keys.
				logger.Log(r.Context(), levelForStatus(status), "request",
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
