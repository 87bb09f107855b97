package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/router/adapters"
	"github.com/materna-health/ai-gateway/internal/safety"
	"github.com/materna-health/ai-gateway/internal/telemetry"
	"github.com/materna-health/ai-gateway/internal/types"
)

var (
	// ErrCircuitOpen is returned for a provider whose breaker is rejecting
	// calls; handled internally by falling back, surfaced only when the
	// whole chain is exhausted.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrAllProvidersUnavailable means every adapter in the fallback chain
	// failed or was breaker-rejected.
	ErrAllProvidersUnavailable = errors.New("all providers unavailable")
)

// Purpose selects the prompt and routing policy for a request.
type Purpose string

const (
	PurposeChat       Purpose = "chat"
	PurposeModeration Purpose = "moderation"
)

// Classifier tags inbound text for crisis routing.
type Classifier interface {
	Classify(text string) safety.CrisisResult
}

// ResponseGuard is the post-generation output check.
type ResponseGuard interface {
	Check(ctx context.Context, text string) safety.GuardrailResult
	FallbackMessage() string
}

// Outcome is the terminal result of a routed request.
type Outcome struct {
	Text         string
	Provider     types.Provider
	Usage        types.TokenUsage
	IsCrisis     bool
	GuardrailHit bool
}

// Router orchestrates one request: classify, select a provider, call it
// through its breaker, fall back on failure, guard the output.
type Router struct {
	registry   *Registry
	health     *HealthTracker
	classifier Classifier
	guard      ResponseGuard
	providers  func() *config.ProvidersConfig
	safetyCfg  func() *config.SafetyConfig
	metrics    *telemetry.Metrics
}

func New(registry *Registry, health *HealthTracker, classifier Classifier, guard ResponseGuard, providers func() *config.ProvidersConfig, safetyCfg func() *config.SafetyConfig, metrics *telemetry.Metrics) *Router {
	return &Router{
		registry:   registry,
		health:     health,
		classifier: classifier,
		guard:      guard,
		providers:  providers,
		safetyCfg:  safetyCfg,
		metrics:    metrics,
	}
}

// Handle routes a request to a terminal outcome. Once past the gates the
// request runs to completion; no mid-flight cancellation is modeled beyond
// the request context.
func (r *Router) Handle(ctx context.Context, req *types.ChatRequest, purpose Purpose) (*Outcome, error) {
	roles := r.providers().Roles
	prompts := r.safetyCfg().Prompts

	var crisis safety.CrisisResult
	var prompt string
	var chain []string

	switch purpose {
	case PurposeModeration:
		prompt = prompts.Moderation
		chain = fallbackChain(roles.Default, roles.Safety)
	default:
		crisis = r.classifier.Classify(req.LatestUserMessage())
		if crisis.IsCrisis {
			slog.Info("crisis classification",
				"request_id", req.RequestID,
				"matched_terms", crisis.MatchedTerms,
			)
			if r.metrics != nil {
				r.metrics.RecordCrisisRoute()
			}
		}
		prompt = safety.SelectPrompt(prompts, crisis.IsCrisis, req.ImageData != nil)

		// Selection policy: image beats crisis beats default.
		primary := roles.Default
		switch {
		case req.ImageData != nil:
			primary = roles.Vision
		case crisis.IsCrisis:
			primary = roles.Safety
		}
		chain = fallbackChain(primary, roles.Safety)
	}

	resp, err := r.attempt(ctx, req, prompt, chain)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Text:     resp.Text,
		Provider: resp.Provider,
		Usage:    resp.Usage,
		IsCrisis: crisis.IsCrisis,
	}

	guard := r.guard.Check(ctx, resp.Text)
	if !guard.Blocked {
		if r.metrics != nil {
			r.metrics.RecordGuardrailAction("pass")
		}
		return outcome, nil
	}

	slog.Warn("guardrail blocked provider output",
		"request_id", req.RequestID,
		"provider", resp.Provider,
		"reason", guard.Reason,
	)
	if r.metrics != nil {
		r.metrics.RecordGuardrailAction("blocked")
	}
	outcome.GuardrailHit = true

	// Exactly one reprocessing attempt on the safety tier; if that is also
	// blocked (or fails), the pre-approved fallback message goes out instead.
	// A guardrail hit is never surfaced to the end user as an error.
	redo, redoErr := r.attempt(ctx, req, prompt, []string{roles.Safety})
	if redoErr == nil {
		if reguard := r.guard.Check(ctx, redo.Text); !reguard.Blocked {
			if r.metrics != nil {
				r.metrics.RecordGuardrailAction("reprocessed")
			}
			outcome.Text = redo.Text
			outcome.Provider = redo.Provider
			outcome.Usage = redo.Usage
			return outcome, nil
		}
	}

	if r.metrics != nil {
		r.metrics.RecordGuardrailAction("fallback_message")
	}
	outcome.Text = r.guard.FallbackMessage()
	outcome.Usage = types.TokenUsage{}
	return outcome, nil
}

// attempt walks the fallback chain in order and returns the first success,
// collecting per-provider errors along the way.
func (r *Router) attempt(ctx context.Context, req *types.ChatRequest, prompt string, chain []string) (*types.ChatResponse, error) {
	var attemptErrs []error
	for _, name := range chain {
		adapter, ok := r.registry.Get(name)
		if !ok {
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: not configured", name))
			continue
		}

		breaker := r.health.GetBreaker(name)
		if !breaker.Allow() {
			slog.Warn("provider skipped, circuit open", "request_id", req.RequestID, "provider", name)
			if r.metrics != nil {
				r.metrics.RecordProviderAttempt(name, "circuit_open")
			}
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", name, ErrCircuitOpen))
			continue
		}

		resp, err := adapter.Generate(ctx, req, prompt)
		if err != nil {
			if errors.Is(err, adapters.ErrPayloadTooLarge) {
				// Client fault, not provider health: no breaker failure,
				// no fallback.
				return nil, err
			}
			breaker.RecordFailure()
			if r.metrics != nil {
				r.metrics.RecordProviderAttempt(name, "failure")
			}
			slog.Error("provider call failed", "request_id", req.RequestID, "provider", name, "error", err)
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		breaker.RecordSuccess()
		if r.metrics != nil {
			r.metrics.RecordProviderAttempt(name, "success")
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrAllProvidersUnavailable, errors.Join(attemptErrs...))
}

func fallbackChain(primary, safetyTier string) []string {
	if safetyTier == "" || primary == safetyTier {
		return []string{primary}
	}
	return []string{primary, safetyTier}
}
