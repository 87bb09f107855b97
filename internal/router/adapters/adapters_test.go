package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/types"
)

func userMessages(contents ...string) []types.Message {
	msgs := make([]types.Message, 0, len(contents))
	for _, c := range contents {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: c})
	}
	return msgs
}

func TestOpenAIGenerate(t *testing.T) {
	var captured openaiRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "olá!"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7},
		})
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{
		BaseURL:   srv.URL,
		APIKey:    "sk-test",
		Model:     "gpt-4o-mini",
		MaxTokens: 512,
	}, srv.Client())

	req := &types.ChatRequest{Messages: append(
		[]types.Message{{Role: types.RoleSystem, Content: "client system"}},
		userMessages("oi")...,
	)}
	resp, err := a.Generate(context.Background(), req, "prompt do gateway")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "olá!" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.Provider != types.ProviderOpenAI {
		t.Fatalf("provider = %q", resp.Provider)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 7 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	if captured.Model != "gpt-4o-mini" || captured.MaxTokens != 512 {
		t.Fatalf("request body = %+v", captured)
	}
	// The gateway-owned system prompt replaces any client-supplied one.
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "prompt do gateway" {
		t.Fatalf("first message = %+v, want gateway system prompt", captured.Messages[0])
	}
	for _, m := range captured.Messages[1:] {
		if m.Role == "system" {
			t.Fatal("client system message forwarded upstream")
		}
	}
}

func TestOpenAIMessageCap(t *testing.T) {
	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: "http://unused", MaxMessages: 2}, http.DefaultClient)

	req := &types.ChatRequest{Messages: userMessages("a", "b", "c")}
	_, err := a.Generate(context.Background(), req, "")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: srv.URL}, srv.Client())
	_, err := a.Generate(context.Background(), &types.ChatRequest{Messages: userMessages("oi")}, "")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("error = %v, want upstream status surfaced", err)
	}
	if errors.Is(err, ErrPayloadTooLarge) {
		t.Fatal("upstream error mistaken for payload error")
	}
}

func TestAnthropicGenerateWithImage(t *testing.T) {
	var rawBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q, want /messages", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "ak-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&rawBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "vejo um exame"}},
			"usage":   map[string]int{"input_tokens": 30, "output_tokens": 9},
		})
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(config.ProviderConfig{
		BaseURL:    srv.URL,
		APIKey:     "ak-test",
		APIVersion: "2023-06-01",
		Model:      "claude-sonnet-4-20250514",
	}, srv.Client())

	req := &types.ChatRequest{
		Messages:  userMessages("o que é isso?"),
		ImageData: &types.ImageData{Base64: "aGVsbG8=", MediaType: "image/jpeg"},
	}
	resp, err := a.Generate(context.Background(), req, "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "vejo um exame" {
		t.Fatalf("text = %q", resp.Text)
	}
	if resp.Usage.InputTokens != 30 || resp.Usage.OutputTokens != 9 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	if rawBody["system"] != "prompt" {
		t.Fatalf("system = %v, want gateway prompt", rawBody["system"])
	}
	// Image must arrive as a content block on the user message.
	msgs := rawBody["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content blocks = %d, want image + text", len(content))
	}
	img := content[0].(map[string]any)
	if img["type"] != "image" {
		t.Fatalf("first block type = %v, want image", img["type"])
	}
	source := img["source"].(map[string]any)
	if source["media_type"] != "image/jpeg" || source["data"] != "aGVsbG8=" {
		t.Fatalf("image source = %v", source)
	}
}

func TestAnthropicImageSizeCap(t *testing.T) {
	a := NewAnthropicAdapter(config.ProviderConfig{
		BaseURL:       "http://unused",
		MaxImageBytes: 100,
	}, http.DefaultClient)

	req := &types.ChatRequest{
		Messages:  userMessages("foto"),
		ImageData: &types.ImageData{Base64: strings.Repeat("A", 200), MediaType: "image/png"},
	}
	_, err := a.Generate(context.Background(), req, "")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestAnthropicImageRequiresUserMessage(t *testing.T) {
	a := NewAnthropicAdapter(config.ProviderConfig{BaseURL: "http://unused"}, http.DefaultClient)

	req := &types.ChatRequest{
		Messages:  []types.Message{{Role: types.RoleAssistant, Content: "oi"}},
		ImageData: &types.ImageData{Base64: "aGVsbG8=", MediaType: "image/png"},
	}
	if _, err := a.Generate(context.Background(), req, ""); err == nil {
		t.Fatal("Generate() = nil error, want error for image without user message")
	}
}

func TestGeminiGenerate(t *testing.T) {
	var captured geminiRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "gk-test" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{
					{"text": "parte um. "},
					{"text": "parte dois."},
				}}},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 21, "candidatesTokenCount": 8},
		})
	}))
	defer srv.Close()

	a := NewGeminiAdapter(config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "gk-test",
		Model:   "gemini-2.0-flash",
	}, srv.Client())

	req := &types.ChatRequest{Messages: []types.Message{
		{Role: types.RoleUser, Content: "pergunta"},
		{Role: types.RoleAssistant, Content: "resposta anterior"},
		{Role: types.RoleUser, Content: "mais uma"},
	}}
	resp, err := a.Generate(context.Background(), req, "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "parte um. parte dois." {
		t.Fatalf("text = %q, want concatenated parts", resp.Text)
	}
	if resp.Usage.InputTokens != 21 || resp.Usage.OutputTokens != 8 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "prompt" {
		t.Fatalf("system instruction = %+v", captured.SystemInstruction)
	}
	if captured.Contents[1].Role != "model" {
		t.Fatalf("assistant role mapped to %q, want model", captured.Contents[1].Role)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].GoogleSearch == nil {
		t.Fatalf("tools = %+v, want google_search grounding", captured.Tools)
	}
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	a := NewGeminiAdapter(config.ProviderConfig{BaseURL: srv.URL, Model: "gemini-2.0-flash"}, srv.Client())
	if _, err := a.Generate(context.Background(), &types.ChatRequest{Messages: userMessages("oi")}, ""); err == nil {
		t.Fatal("Generate() = nil error, want error for empty candidates")
	}
}
