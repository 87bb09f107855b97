package policy

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/materna-health/ai-gateway/internal/config"
)

//go:embed guardrail.rego
var defaultModule string

// Input is the document sent to OPA for guardrail evaluation.
type Input struct {
	Response ResponseInput `json:"response"`
}

type ResponseInput struct {
	Text string `json:"text"`
}

// Evaluator runs provider output through rego guardrail policies.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.GuardrailConfig
}

// NewEvaluator creates a guardrail evaluator. Call Load() to compile policies.
func NewEvaluator(cfg func() config.GuardrailConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Load compiles the embedded default module plus any .rego overrides found in
// the configured bundle path. Bundle modules share the package namespace, so
// an override file can replace the phrase lists without touching the binary.
func (e *Evaluator) Load() error {
	modules := map[string]string{"guardrail_default.rego": defaultModule}
	cfg := e.cfg()
	if cfg.BundlePath != "" {
		overrides, err := LoadRegoFiles(cfg.BundlePath)
		if err != nil {
			return fmt.Errorf("load rego files: %w", err)
		}
		for name, src := range overrides {
			modules[name] = src
		}
	}
	return e.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources (useful for testing).
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := make([]func(*rego.Rego), 0, len(modules)+1)
	opts = append(opts, rego.Query("[data.materna.guardrail.blocked, data.materna.guardrail.reason]"))
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()

	slog.Info("guardrail policies loaded", "modules", len(modules))
	return nil
}

// Evaluate runs the guardrail policy over a candidate response text.
func (e *Evaluator) Evaluate(ctx context.Context, text string) (bool, string, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		// No policies loaded — fail closed
		return true, "no policies loaded", nil
	}

	cfg := e.cfg()
	timeout := cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(Input{Response: ResponseInput{Text: text}}))
	if err != nil {
		return true, fmt.Sprintf("policy evaluation error: %v", err), err
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return true, "no policy result", nil
	}

	// Result is [blocked, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return true, "unexpected policy result format", nil
	}

	blocked, _ := arr[0].(bool)
	reason, _ := arr[1].(string)

	return blocked, reason, nil
}
