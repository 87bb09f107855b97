package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope returned to the mobile client.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_token", message)
}

// WriteConsentError covers a verified identity that lacks AI consent or has
// the AI feature disabled. The machine-readable code lets the app deep-link
// to its consent screen.
func WriteConsentError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "consent_error", "AI_CONSENT_REQUIRED", message)
}

func WriteForbiddenOriginError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "cors_error", "origin_not_allowed", message)
}

// WriteRateLimitError carries retryAfter (seconds until window reset) in the
// body alongside the Retry-After header the caller sets.
func WriteRateLimitError(w http.ResponseWriter, requestID string, retryAfterSeconds int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:    message,
			Type:       "rate_limit_error",
			Code:       "rate_limit_exceeded",
			RetryAfter: retryAfterSeconds,
			RequestID:  requestID,
		},
	})
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WritePayloadTooLargeError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "payload_too_large", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}
