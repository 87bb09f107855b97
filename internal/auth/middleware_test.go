package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/materna-health/ai-gateway/internal/httputil"
)

type stubProfileStore struct {
	flags map[string]*ConsentFlags
	err   error
	calls int
}

func (s *stubProfileStore) ConsentFlags(ctx context.Context, userID string) (*ConsentFlags, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.flags[userID], nil
}

func validToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestMiddleware(t *testing.T) {
	consented := &stubProfileStore{flags: map[string]*ConsentFlags{
		"user-ok":          {AIConsent: true, AIEnabled: true},
		"user-no-consent":  {AIConsent: false, AIEnabled: true},
		"user-ai-disabled": {AIConsent: true, AIEnabled: false},
	}}

	tests := []struct {
		name        string
		authHeader  string
		store       ProfileStore
		wantStatus  int
		wantCode    string
		wantHandler bool
	}{
		{
			name:        "valid token with consent",
			authHeader:  "Bearer " + validToken(t, "user-ok"),
			store:       consented,
			wantStatus:  http.StatusOK,
			wantHandler: true,
		},
		{
			name:       "missing header",
			authHeader: "",
			store:      consented,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
		{
			name:       "not bearer",
			authHeader: "Basic dXNlcjpwYXNz",
			store:      consented,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
		{
			name:       "empty token",
			authHeader: "Bearer ",
			store:      consented,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
		{
			name:       "invalid token",
			authHeader: "Bearer not.a.token",
			store:      consented,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_token",
		},
		{
			name:       "consent not granted",
			authHeader: "Bearer " + validToken(t, "user-no-consent"),
			store:      consented,
			wantStatus: http.StatusForbidden,
			wantCode:   "AI_CONSENT_REQUIRED",
		},
		{
			name:       "ai feature disabled",
			authHeader: "Bearer " + validToken(t, "user-ai-disabled"),
			store:      consented,
			wantStatus: http.StatusForbidden,
			wantCode:   "AI_CONSENT_REQUIRED",
		},
		{
			name:       "no profile row",
			authHeader: "Bearer " + validToken(t, "user-unknown"),
			store:      consented,
			wantStatus: http.StatusForbidden,
			wantCode:   "AI_CONSENT_REQUIRED",
		},
		{
			name:       "store error",
			authHeader: "Bearer " + validToken(t, "user-ok"),
			store:      &stubProfileStore{err: fmt.Errorf("db down")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			var gotIdentity *Identity
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				gotIdentity, _ = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			mw := Middleware(NewVerifier(testSecret, ""), tt.store)
			r := httptest.NewRequest(http.MethodPost, "/v1/ai", nil)
			if tt.authHeader != "" {
				r.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			mw(next).ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handlerCalled != tt.wantHandler {
				t.Fatalf("handler called = %v, want %v", handlerCalled, tt.wantHandler)
			}
			if tt.wantHandler {
				if gotIdentity == nil || gotIdentity.UserID != "user-ok" {
					t.Fatalf("identity = %+v, want user-ok", gotIdentity)
				}
				return
			}

			var body httputil.APIError
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Fatalf("error code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

// Consent must be looked up on every request, never cached across them.
func TestMiddlewareChecksConsentPerRequest(t *testing.T) {
	store := &stubProfileStore{flags: map[string]*ConsentFlags{
		"user-ok": {AIConsent: true, AIEnabled: true},
	}}
	mw := Middleware(NewVerifier(testSecret, ""), store)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := "Bearer " + validToken(t, "user-ok")
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/v1/ai", nil)
		r.Header.Set("Authorization", token)
		h.ServeHTTP(httptest.NewRecorder(), r)
	}

	if store.calls != 3 {
		t.Fatalf("consent lookups = %d, want 3 (one per request)", store.calls)
	}

	// Revocation takes effect on the very next request.
	store.flags["user-ok"] = &ConsentFlags{AIConsent: false, AIEnabled: true}
	r := httptest.NewRequest(http.MethodPost, "/v1/ai", nil)
	r.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status after revocation = %d, want 403", w.Code)
	}
}
