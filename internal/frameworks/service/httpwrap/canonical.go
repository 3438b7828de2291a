// Package httpwrap holds handler wrappers applied by services before their
// own routers run.
package httpwrap

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Canonicalize clears RawPath so the decoded path is used, then drops a
// trailing slash so "/profiles/" reaches the "/profiles" handler. Under a
// chi Mount the slash is trimmed from the route path, otherwise from
// r.URL.Path. The query string is left alone.
func Canonicalize(next http.Handler) http.Handler {
	strip := middleware.StripSlashes(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		strip.ServeHTTP(w, r)
	})
}
