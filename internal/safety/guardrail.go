package safety

import (
	"context"
	"log/slog"

	"github.com/materna-health/ai-gateway/internal/config"
	"github.com/materna-health/ai-gateway/internal/safety/policy"
)

// GuardrailResult is the outcome of scanning provider output.
type GuardrailResult struct {
	Blocked bool
	Reason  string
}

// Guardrail runs provider output through the policy evaluator before anything
// reaches the client. It fails closed: an evaluation error counts as blocked
// and the caller substitutes the pre-approved fallback message. The end user
// never sees blocked output or a guardrail error.
type Guardrail struct {
	eval *policy.Evaluator
	cfg  func() config.GuardrailConfig
}

func NewGuardrail(eval *policy.Evaluator, cfg func() config.GuardrailConfig) *Guardrail {
	return &Guardrail{eval: eval, cfg: cfg}
}

func (g *Guardrail) Check(ctx context.Context, text string) GuardrailResult {
	if !g.cfg().Enabled {
		return GuardrailResult{}
	}

	blocked, reason, err := g.eval.Evaluate(ctx, text)
	if err != nil {
		slog.Error("guardrail evaluation failed", "error", err)
		return GuardrailResult{Blocked: true, Reason: "evaluation_error"}
	}
	return GuardrailResult{Blocked: blocked, Reason: reason}
}

// FallbackMessage is the pre-approved text returned when reprocessing also fails.
func (g *Guardrail) FallbackMessage() string {
	return g.cfg().FallbackMessage
}
