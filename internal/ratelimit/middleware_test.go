package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/materna-health/ai-gateway/internal/auth"
	"github.com/materna-health/ai-gateway/internal/httputil"
)

func limitedHandler(t *testing.T, limit int, handlerCalls *int) http.Handler {
	t.Helper()
	mw := Middleware(NewLimiter(nil), "chat",
		func() int { return limit },
		func() time.Duration { return time.Minute },
		nil,
	)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*handlerCalls++
		w.WriteHeader(http.StatusOK)
	}))
}

func authedRequest(userID string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/v1/ai", nil)
	ctx := auth.ContextWithIdentity(r.Context(), &auth.Identity{
		UserID:         userID,
		ConsentGranted: true,
		AIEnabled:      true,
	})
	return r.WithContext(ctx)
}

func TestMiddlewareEnforcesBudget(t *testing.T) {
	var calls int
	h := limitedHandler(t, 2, &calls)

	for i := 1; i <= 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, authedRequest("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit-Requests"); got != "2" {
			t.Fatalf("limit header = %q, want 2", got)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, authedRequest("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3 status = %d, want 429", w.Code)
	}
	if calls != 2 {
		t.Fatalf("handler called %d times, want 2", calls)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on 429")
	}

	var body httputil.APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body.Error.Code != "rate_limit_exceeded" {
		t.Fatalf("error code = %q, want rate_limit_exceeded", body.Error.Code)
	}
	if body.Error.RetryAfter < 1 {
		t.Fatalf("retryAfter = %d, want >= 1", body.Error.RetryAfter)
	}
}

func TestMiddlewareBudgetIsPerUser(t *testing.T) {
	var calls int
	h := limitedHandler(t, 1, &calls)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, authedRequest("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("user-1 first request status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, authedRequest("user-2"))
	if w.Code != http.StatusOK {
		t.Fatalf("user-2 status = %d, want 200 (budget is per user)", w.Code)
	}
}

func TestMiddlewareRequiresIdentity(t *testing.T) {
	var calls int
	h := limitedHandler(t, 10, &calls)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/ai", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without identity", w.Code)
	}
	if calls != 0 {
		t.Fatalf("handler called %d times, want 0", calls)
	}
}
