package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Roles     RolesConfig               `yaml:"roles"`
}

// RolesConfig binds routing roles to named provider entries. The mobile client
// never names a provider; it only ever sees the /v1/ai contract.
type RolesConfig struct {
	// Default serves plain text chat.
	Default string `yaml:"default"`
	// Vision serves requests carrying imageData.
	Vision string `yaml:"vision"`
	// Safety serves crisis-classified requests and guardrail reprocessing,
	// and is the tail of every fallback chain.
	Safety string `yaml:"safety"`
	// Search serves grounded-search requests.
	Search string `yaml:"search"`
}

type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	Model         string            `yaml:"model"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`

	// Payload caps. Oversized input fails the request; adapters never truncate.
	MaxMessages   int `yaml:"max_messages"`
	MaxImageBytes int `yaml:"max_image_bytes"`
	MaxTokens     int `yaml:"max_tokens"`
}

func DefaultProviders() *ProvidersConfig {
	return &ProvidersConfig{
		Roles: RolesConfig{
			Default: "openai",
			Vision:  "anthropic",
			Safety:  "anthropic",
			Search:  "gemini",
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:          "openai",
				BaseURL:       "https://api.openai.com/v1",
				Model:         "gpt-4o-mini",
				MaxConcurrent: 20,
				Timeout:       30 * time.Second,
				MaxMessages:   40,
				MaxTokens:     1024,
			},
			"anthropic": {
				Type:          "anthropic",
				BaseURL:       "https://api.anthropic.com/v1",
				APIVersion:    "2023-06-01",
				Model:         "claude-sonnet-4-20250514",
				MaxConcurrent: 20,
				Timeout:       45 * time.Second,
				MaxMessages:   40,
				MaxImageBytes: 5 * 1024 * 1024,
				MaxTokens:     1024,
			},
			"gemini": {
				Type:          "gemini",
				BaseURL:       "https://generativelanguage.googleapis.com/v1beta",
				Model:         "gemini-2.0-flash",
				MaxConcurrent: 20,
				Timeout:       30 * time.Second,
				MaxMessages:   40,
				MaxTokens:     1024,
			},
		},
	}
}
