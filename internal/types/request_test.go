package types

import (
	"encoding/json"
	"testing"
)

func TestLatestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{"empty", nil, ""},
		{"single user", []Message{{Role: RoleUser, Content: "oi"}}, "oi"},
		{
			"picks most recent user turn",
			[]Message{
				{Role: RoleUser, Content: "primeira"},
				{Role: RoleAssistant, Content: "resposta"},
				{Role: RoleUser, Content: "segunda"},
				{Role: RoleAssistant, Content: "outra resposta"},
			},
			"segunda",
		},
		{"assistant only", []Message{{Role: RoleAssistant, Content: "oi"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ChatRequest{Messages: tt.messages}
			if got := r.LatestUserMessage(); got != tt.want {
				t.Fatalf("LatestUserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleSystem, RoleUser, RoleAssistant} {
		if !ValidRole(role) {
			t.Fatalf("ValidRole(%q) = false", role)
		}
	}
	for _, role := range []string{"", "robot", "User", "SYSTEM"} {
		if ValidRole(role) {
			t.Fatalf("ValidRole(%q) = true", role)
		}
	}
}

// Internal tracking fields must never be settable from the wire.
func TestInternalFieldsNotUnmarshaled(t *testing.T) {
	var req ChatRequest
	payload := `{"messages":[{"role":"user","content":"oi"}],"RequestID":"spoofed","UserID":"spoofed"}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.RequestID != "" || req.UserID != "" {
		t.Fatalf("internal fields populated from the wire: %q %q", req.RequestID, req.UserID)
	}
}
