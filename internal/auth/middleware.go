package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/materna-health/ai-gateway/internal/httputil"
)

// Middleware authenticates requests via Bearer session token and enforces the
// consent gate. A request never reaches a handler (and therefore never
// reaches a provider adapter) unless both ai_consent and is_ai_enabled are
// true for the verified user.
func Middleware(verifier *Verifier, store ProfileStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <token>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <token>")
				return
			}
			token = strings.TrimSpace(token)
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty token")
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				slog.Warn("auth failed: token rejected", "request_id", reqID, "error", err)
				httputil.WriteAuthError(w, reqID, "Invalid or expired token")
				return
			}

			// Consent is checked on every request, never cached: it can be
			// revoked between requests.
			flags, err := store.ConsentFlags(r.Context(), userID)
			if err != nil {
				slog.Error("consent lookup failed", "request_id", reqID, "user_id", userID, "error", err)
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if flags == nil || !flags.AIConsent || !flags.AIEnabled {
				slog.Info("consent gate rejected request",
					"request_id", reqID,
					"user_id", userID,
					"has_profile", flags != nil,
				)
				httputil.WriteConsentError(w, reqID, "AI features require consent. Enable them in the app settings.")
				return
			}

			identity := &Identity{
				UserID:         userID,
				ConsentGranted: flags.AIConsent,
				AIEnabled:      flags.AIEnabled,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}
