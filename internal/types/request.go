package types

import "time"

// Message roles accepted on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the canonical internal representation of an incoming AI request.
// Constructed fresh by the handler on every invocation; never reused across requests.
type ChatRequest struct {
	Messages    []Message    `json:"messages"`
	ImageData   *ImageData   `json:"imageData,omitempty"`
	UserContext *UserContext `json:"userContext,omitempty"`

	// Internal tracking (set by the handler, never from the wire)
	RequestID  string    `json:"-"`
	UserID     string    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ImageData carries an inline base64 image from the mobile client.
type ImageData struct {
	Base64    string `json:"base64"`
	MediaType string `json:"mediaType"`
}

// UserContext is optional personalization state the app ships with each request.
type UserContext struct {
	Name           string   `json:"name,omitempty"`
	Phase          string   `json:"phase,omitempty"`
	EmotionalState string   `json:"emotionalState,omitempty"`
	RecentMessages []string `json:"recentMessages,omitempty"`
}

// LatestUserMessage returns the content of the most recent user-role message,
// or the empty string if there is none.
func (r *ChatRequest) LatestUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ValidRole reports whether a wire role is one the gateway accepts.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}
