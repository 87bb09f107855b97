package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/types"
)

// AnthropicAdapter is the vision-capable safety-tier provider, speaking the
// Messages API.
type AnthropicAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewAnthropicAdapter(cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() types.Provider { return types.ProviderAnthropic }

func (a *AnthropicAdapter) Generate(ctx context.Context, req *types.ChatRequest, systemPrompt string) (*types.ChatResponse, error) {
	if a.cfg.MaxMessages > 0 && len(req.Messages) > a.cfg.MaxMessages {
		return nil, fmt.Errorf("%w: %d messages (max %d)", ErrPayloadTooLarge, len(req.Messages), a.cfg.MaxMessages)
	}
	if req.ImageData != nil && a.cfg.MaxImageBytes > 0 {
		// base64 expands by 4/3; this estimates the decoded size without decoding.
		decoded := len(req.ImageData.Base64) * 3 / 4
		if decoded > a.cfg.MaxImageBytes {
			return nil, fmt.Errorf("%w: image ~%d bytes (max %d)", ErrPayloadTooLarge, decoded, a.cfg.MaxImageBytes)
		}
	}

	lastUser := -1
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			lastUser = i
			break
		}
	}
	if req.ImageData != nil && lastUser == -1 {
		return nil, fmt.Errorf("image requires a user message")
	}

	var messages []anthropicMessage
	for i, m := range req.Messages {
		if m.Role == types.RoleSystem {
			continue
		}
		if req.ImageData != nil && i == lastUser {
			messages = append(messages, anthropicMessage{
				Role: m.Role,
				Content: []any{
					anthropicImageBlock{
						Type: "image",
						Source: anthropicImageSource{
							Type:      "base64",
							MediaType: req.ImageData.MediaType,
							Data:      req.ImageData.Base64,
						},
					},
					anthropicTextBlock{Type: "text", Text: m.Content},
				},
			})
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := a.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024 // the Messages API requires max_tokens
	}

	body := anthropicRequestBody{
		Model:     a.cfg.Model,
		Messages:  messages,
		System:    systemPrompt,
		MaxTokens: maxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	url := a.cfg.BaseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	if a.cfg.APIVersion != "" {
		httpReq.Header.Set("anthropic-version", a.cfg.APIVersion)
	}
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, truncate(respBody))
	}

	var antResp anthropicResponseBody
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	var text string
	for _, block := range antResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	return &types.ChatResponse{
		Text:     text,
		Provider: types.ProviderAnthropic,
		Usage: types.TokenUsage{
			InputTokens:  antResp.Usage.InputTokens,
			OutputTokens: antResp.Usage.OutputTokens,
		},
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicImageBlock struct {
	Type   string               `json:"type"`
	Source anthropicImageSource `json:"source"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicRequestBody struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
