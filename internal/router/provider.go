package router

import (
	"net/http"
	"sync"
	"time"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/router/adapters"
)

// Registry manages provider adapters. Each adapter owns its http.Client,
// constructed once and reused for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]adapters.Generator
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]adapters.Generator),
	}
}

func (r *Registry) Register(name string, adapter adapters.Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (adapters.Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// ReplaceAll swaps the full adapter set, used on config reload.
func (r *Registry) ReplaceAll(from *Registry) {
	from.mu.RLock()
	next := make(map[string]adapters.Generator, len(from.adapters))
	for name, a := range from.adapters {
		next[name] = a
	}
	from.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter adapters.Generator
		switch cfg.Type {
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(cfg, client)
		case "gemini":
			adapter = adapters.NewGeminiAdapter(cfg, client)
		default:
			// OpenAI-compatible for unknown types
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		}
		registry.Register(name, adapter)
	}
	return registry
}
