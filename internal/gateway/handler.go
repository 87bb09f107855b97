package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/materna-health/ai-gateway/internal/auth"
	"github.com/materna-health/ai-gateway/internal/httputil"
	"github.com/materna-health/ai-gateway/internal/router"
	"github.com/materna-health/ai-gateway/internal/router/adapters"
	"github.com/materna-health/ai-gateway/internal/telemetry"
	"github.com/materna-health/ai-gateway/internal/types"
)

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	router  *router.Router
	metrics *telemetry.Metrics
}

func NewHandler(rt *router.Router, metrics *telemetry.Metrics) *Handler {
	return &Handler{router: rt, metrics: metrics}
}

// Chat handles POST /v1/ai
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, router.PurposeChat, "chat")
}

// Moderation handles POST /v1/moderation
func (h *Handler) Moderation(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, router.PurposeModeration, "moderation")
}

type chatResponseBody struct {
	Content   string           `json:"content"`
	Provider  types.Provider   `json:"provider"`
	Usage     types.TokenUsage `json:"usage"`
	RequestID string           `json:"request_id,omitempty"`
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, purpose router.Purpose, route string) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}
	for _, m := range req.Messages {
		if !types.ValidRole(m.Role) {
			httputil.WriteBadRequestError(w, reqID, "invalid message role: "+m.Role)
			return
		}
	}
	if req.ImageData != nil {
		if purpose == router.PurposeModeration {
			httputil.WriteBadRequestError(w, reqID, "imageData is not supported on this endpoint")
			return
		}
		if req.ImageData.Base64 == "" || req.ImageData.MediaType == "" {
			httputil.WriteBadRequestError(w, reqID, "imageData requires base64 and mediaType")
			return
		}
	}

	req.RequestID = reqID
	req.UserID = identity.UserID
	req.ReceivedAt = receivedAt

	outcome, err := h.router.Handle(r.Context(), &req, purpose)
	if err != nil {
		h.writeRouterError(w, reqID, route, receivedAt, err)
		return
	}

	totalDuration := time.Since(receivedAt)

	slog.Info("request completed",
		"request_id", reqID,
		"route", route,
		"user_id", identity.UserID,
		"provider", outcome.Provider,
		"crisis", outcome.IsCrisis,
		"guardrail_hit", outcome.GuardrailHit,
		"input_tokens", outcome.Usage.InputTokens,
		"output_tokens", outcome.Usage.OutputTokens,
		"duration_ms", totalDuration.Milliseconds(),
		"status_code", http.StatusOK,
	)
	if h.metrics != nil {
		h.metrics.RecordRequest(route, string(outcome.Provider), "200",
			float64(totalDuration.Milliseconds()), outcome.Usage.InputTokens, outcome.Usage.OutputTokens)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponseBody{
		Content:   outcome.Text,
		Provider:  outcome.Provider,
		Usage:     outcome.Usage,
		RequestID: reqID,
	})
}

func (h *Handler) writeRouterError(w http.ResponseWriter, reqID, route string, receivedAt time.Time, err error) {
	var status int
	switch {
	case errors.Is(err, adapters.ErrPayloadTooLarge):
		status = http.StatusBadRequest
		httputil.WritePayloadTooLargeError(w, reqID, "Request payload exceeds provider limits")
	case errors.Is(err, router.ErrAllProvidersUnavailable):
		status = http.StatusServiceUnavailable
		slog.Error("all providers exhausted", "request_id", reqID, "route", route, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "AI providers are temporarily unavailable")
	default:
		status = http.StatusInternalServerError
		slog.Error("request failed", "request_id", reqID, "route", route, "error", err)
		httputil.WriteInternalError(w, reqID, "Internal error")
	}

	if h.metrics != nil {
		h.metrics.RecordRequest(route, "none", strconv.Itoa(status),
			float64(time.Since(receivedAt).Milliseconds()), 0, 0)
	}
}
