package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// corsAllowHeaders are the request headers browser clients of the order API
// may send: JSON bodies and either form of API key.
const corsAllowHeaders = "Content-Type, Authorization, X-API-Key"

// CORS returns middleware answering cross-origin requests from
// allowedOrigins; an empty list or "*" admits every origin. exposed names the
// response headers scripts may read, such as the order version and the
// rate limiter's Retry-After.
func CORS(allowedOrigins []string, exposed ...string) func(http.Handler) http.Handler {
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	expose := strings.Join(exposed, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if origin != "" && (anyOrigin || slices.ContainsFunc(allowedOrigins, func(o string) bool {
				return strings.EqualFold(o, origin)
			})) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
				if preflight {
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", "86400")
				}
			}
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
