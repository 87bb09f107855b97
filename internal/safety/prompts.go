package safety

import "github.com/materna-health/ai-gateway/internal/config"

// SelectPrompt picks the system prompt for a chat request. A crisis flag wins
// over the vision prompt even when an image is present: the vision-capable
// provider still serves the request, but with the crisis framing.
func SelectPrompt(p config.PromptsConfig, isCrisis, hasImage bool) string {
	switch {
	case isCrisis:
		return p.Crisis
	case hasImage:
		return p.Vision
	default:
		return p.Default
	}
}
