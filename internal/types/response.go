package types

// Provider identifies an upstream LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// ChatResponse is the canonical response returned to the mobile client.
// Transient; never persisted by the gateway.
type ChatResponse struct {
	Text     string     `json:"content"`
	Provider Provider   `json:"provider"`
	Usage    TokenUsage `json:"usage"`
}

type TokenUsage struct {
	InputTokens  int `json:"input"`
	OutputTokens int `json:"output"`
}
