package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/types"
)

// GeminiAdapter speaks the generateContent REST API with Google Search
// grounding enabled, serving the grounded-search role.
type GeminiAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewGeminiAdapter(cfg config.ProviderConfig, client *http.Client) *GeminiAdapter {
	return &GeminiAdapter{cfg: cfg, client: client}
}

func (a *GeminiAdapter) Name() types.Provider { return types.ProviderGemini }

func (a *GeminiAdapter) Generate(ctx context.Context, req *types.ChatRequest, systemPrompt string) (*types.ChatResponse, error) {
	if a.cfg.MaxMessages > 0 && len(req.Messages) > a.cfg.MaxMessages {
		return nil, fmt.Errorf("%w: %d messages (max %d)", ErrPayloadTooLarge, len(req.Messages), a.cfg.MaxMessages)
	}

	var contents []geminiContent
	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	body := geminiRequestBody{
		Contents: contents,
		Tools:    []geminiTool{{GoogleSearch: &geminiGoogleSearch{}}},
	}
	if systemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	if a.cfg.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: a.cfg.MaxTokens}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.cfg.BaseURL, a.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, truncate(respBody))
	}

	var gemResp geminiResponseBody
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return nil, fmt.Errorf("unmarshal gemini response: %w", err)
	}
	if len(gemResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}

	var sb strings.Builder
	for _, part := range gemResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return &types.ChatResponse{
		Text:     sb.String(),
		Provider: types.ProviderGemini,
		Usage: types.TokenUsage{
			InputTokens:  gemResp.UsageMetadata.PromptTokenCount,
			OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGoogleSearch struct{}

type geminiTool struct {
	GoogleSearch *geminiGoogleSearch `json:"google_search,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequestBody struct {
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponseBody struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
