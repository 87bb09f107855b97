package adapters

import (
	"context"
	"errors"

	"github.com/materna-health/ai-gateway/internal/types"
)

// ErrPayloadTooLarge marks input exceeding an adapter's caps. Adapters fail
// rather than silently truncate; the router surfaces this to the client
// without consuming the fallback chain.
var ErrPayloadTooLarge = errors.New("payload too large")

// Generator is the uniform provider contract. One implementation per
// upstream provider; adapters never call each other, and each call runs
// through that provider's own circuit breaker.
type Generator interface {
	Name() types.Provider
	Generate(ctx context.Context, req *types.ChatRequest, systemPrompt string) (*types.ChatResponse, error)
}
