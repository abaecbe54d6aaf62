package budget

import (
	"strings"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/config"
)

// Pricing maps backend id to per-1k token prices.
type Pricing map[string]config.ModelPricing

// PricingFromConfig collects the pricing table of every configured backend.
func PricingFromConfig(cfg *config.OrchestrationConfig) Pricing {
	p := make(Pricing)
	if cfg == nil {
		return p
	}
	for id, b := range cfg.Backends {
		p[id] = b.Pricing
	}
	return p
}

// Cost prices usage for backend. Unknown backends cost nothing and report false.
func (p Pricing) Cost(backend string, usage adapter.Usage) (float64, bool) {
	entry, ok := p[backend]
	if !ok {
		return 0, false
	}
	promptCost := (float64(usage.InputTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.OutputTokens) / 1000.0) * entry.CompletionPer1K
	return promptCost + completionCost, true
}

// EstimateInputTokens approximates prompt tokens as 1.3 per word.
func EstimateInputTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words)*1.3 + 0.5)
}
