package gateway

import (
	"net/http"
	"strings"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/httputil"
)

// CORS enforces the browser-origin allow-list. Requests without an Origin
// header (native mobile clients) always pass; browser origins not on the
// list are rejected outright.
func CORS(cfg func() config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !originAllowed(cfg().AllowedOrigins, origin) {
				reqID := w.Header().Get("X-Request-ID")
				httputil.WriteForbiddenOriginError(w, reqID, "Origin not allowed")
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
