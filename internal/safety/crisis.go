package safety

import (
	"strings"

	"github.com/materna-health/ai-gateway/internal/config"
)

// CrisisResult is the tagged outcome of a crisis scan. The classifier never
// blocks a request; it only influences routing and prompt selection. Matched
// terms are logged so the keyword list can be tuned.
type CrisisResult struct {
	IsCrisis     bool
	MatchedTerms []string
}

// CrisisClassifier scans the latest user message against a configured keyword
// list. Keyword matching is coarse and false positives are expected; their
// cost is routing to the more careful safety-tier provider, which is the
// right direction to fail in for this domain.
type CrisisClassifier struct {
	cfg func() *config.SafetyConfig
}

func NewCrisisClassifier(cfg func() *config.SafetyConfig) *CrisisClassifier {
	return &CrisisClassifier{cfg: cfg}
}

// Classify lower-cases the text and tests substring membership for each term.
func (c *CrisisClassifier) Classify(text string) CrisisResult {
	if text == "" {
		return CrisisResult{}
	}
	lowered := strings.ToLower(text)
	var matched []string
	for _, term := range c.cfg().CrisisKeywords {
		if term == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	return CrisisResult{IsCrisis: len(matched) > 0, MatchedTerms: matched}
}
