// Package middleware provides always-on transport middleware for HTTP servers.
package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/realip"
)

// RequestLoggerMiddleware attaches a request-scoped logger to the request context.
//
// It must run after chi's RequestID so GetReqID returns a value.
func RequestLoggerMiddleware(base *slog.Logger, proxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := appctx.WithLogger(r.Context(), baseFields(base, r, proxies))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// baseFields are inherited by the access log and by every handler that uses
// appctx.GetLogger. The path is logged without its query string.
func baseFields(base *slog.Logger, r *http.Request, proxies *realip.TrustedProxies) *slog.Logger {
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", proxies.ClientIP(r),
	)
}
