package upstream

import (
	"github.com/breakwater-ai/breakwater/pkg/config"
	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Per-1K-token USD rates for common hosted models. Config pricing entries
// extend or override this table.
var defaultCosts = map[string]map[string]float64{
	"gpt-4o":                    {"input": 0.0025, "output": 0.01},
	"gpt-4o-mini":               {"input": 0.00015, "output": 0.0006},
	"gpt-4-turbo":               {"input": 0.01, "output": 0.03},
	"claude-sonnet-4-20250514":  {"input": 0.003, "output": 0.015},
	"claude-3-5-haiku-20241022": {"input": 0.001, "output": 0.005},
	"claude-opus-4-20250514":    {"input": 0.015, "output": 0.075},
}

// Rate applied to hosted models missing from the table, so an unpriced model
// still counts against the budget rather than metering free.
const genericPer1K = 0.001

// Pricing converts token usage into billed USD.
type Pricing struct {
	prompt     map[string]float64
	completion map[string]float64
	hosted     bool
}

// NewPricing builds the rate table for a provider. Local providers bill
// zero for unlisted models; hosted ones bill the generic rate.
func NewPricing(provider string, overrides []config.PricingConfig) Pricing {
	p := Pricing{
		prompt:     make(map[string]float64, len(defaultCosts)+len(overrides)),
		completion: make(map[string]float64, len(defaultCosts)+len(overrides)),
		hosted:     provider != "ollama",
	}
	for model, rates := range defaultCosts {
		p.prompt[model] = rates["input"]
		p.completion[model] = rates["output"]
	}
	for _, o := range overrides {
		p.prompt[o.Model] = o.PromptPer1K
		p.completion[o.Model] = o.CompletionPer1K
	}
	return p
}

// CostUSD prices a completed call from its token usage.
func (p Pricing) CostUSD(model string, usage models.Usage) float64 {
	in, okIn := p.prompt[model]
	out, okOut := p.completion[model]
	if !okIn && !okOut {
		if !p.hosted {
			return 0
		}
		in, out = genericPer1K, genericPer1K
	}
	return float64(usage.PromptTokens)/1000*in + float64(usage.CompletionTokens)/1000*out
}
