package httputil

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, OPTIONS"
	corsMaxAge       = 24 * 60 * 60
)

var corsAllowHeaders = strings.Join([]string{"Content-Type", middleware.RequestIDHeader}, ", ")

// CORSMiddleware answers preflight requests and marks responses readable by
// the configured dashboard origins. "*" allows any origin. The request id
// header is exposed so browser clients can quote it in bug reports.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := slices.Contains(allowedOrigins, "*")

	allowed := func(origin string) bool {
		return origin != "" && (allowAny || slices.Contains(allowedOrigins, origin))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()

			if allowed(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", middleware.RequestIDHeader)
				h.Add("Vary", "Origin")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
