package llm

import "strings"

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPricePerMillion  float64
	OutputPricePerMillion float64
}

// defaultPricing maps model tiers and a few well-known model families to
// per-million-token USD prices. Unknown models estimate at the balanced tier
// so aggregated cost is never silently zero.
var defaultPricing = map[string]ModelPricing{
	"fast":      {InputPricePerMillion: 0.80, OutputPricePerMillion: 4.00},
	"balanced":  {InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
	"strategic": {InputPricePerMillion: 15.00, OutputPricePerMillion: 75.00},

	"haiku":       {InputPricePerMillion: 0.80, OutputPricePerMillion: 4.00},
	"sonnet":      {InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
	"opus":        {InputPricePerMillion: 15.00, OutputPricePerMillion: 75.00},
	"gpt-4o-mini": {InputPricePerMillion: 0.15, OutputPricePerMillion: 0.60},
	"gpt-4o":      {InputPricePerMillion: 2.50, OutputPricePerMillion: 10.00},
}

// PricingFor returns the pricing entry for a model name. Matching is by exact
// name first, then by substring against known families (so versioned model IDs
// like "claude-sonnet-4" resolve), then the balanced-tier estimate.
func PricingFor(model string) ModelPricing {
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	lower := strings.ToLower(model)
	for family, p := range defaultPricing {
		if family == "fast" || family == "balanced" || family == "strategic" {
			continue
		}
		if strings.Contains(lower, family) {
			return p
		}
	}
	return defaultPricing["balanced"]
}

// EstimateCost returns the estimated USD cost for the given usage on a model.
func EstimateCost(model string, usage Usage) float64 {
	p := PricingFor(model)
	inputCost := float64(usage.InputTokens) / 1_000_000.0 * p.InputPricePerMillion
	outputCost := float64(usage.OutputTokens) / 1_000_000.0 * p.OutputPricePerMillion
	return inputCost + outputCost
}
