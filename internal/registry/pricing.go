package registry

import "strings"

// ModelPricing holds per-1K-token pricing for a model.
type ModelPricing struct {
	InputPer1K  float64 // USD per 1000 input tokens
	OutputPer1K float64 // USD per 1000 output tokens
}

var modelPricingTable = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4":         {InputPer1K: 0.01, OutputPer1K: 0.03},
	"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},

	// Anthropic
	"claude-sonnet-4-5": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-haiku-4-5":  {InputPer1K: 0.001, OutputPer1K: 0.005},
	"claude-3-5-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku":  {InputPer1K: 0.001, OutputPer1K: 0.005},

	// Self-hosted and mock backends bill nothing
	"mock-sm": {},
}

// defaultPricing is used for unknown models (conservative to prevent silent overspend).
var defaultPricing = ModelPricing{InputPer1K: 0.015, OutputPer1K: 0.075}

// modelFamilyPricing maps model-name prefixes to pricing; longest prefix wins.
var modelFamilyPricing = map[string]ModelPricing{
	"claude-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-haiku":  {InputPer1K: 0.001, OutputPer1K: 0.005},
	"claude-opus":   {InputPer1K: 0.015, OutputPer1K: 0.075},
	"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4":         {InputPer1K: 0.01, OutputPer1K: 0.03},
	"mock":          {},
	"llama":         {},
	"qwen":          {},
	"mistral":       {},
}

// GetModelPricing returns pricing for a model.
// Tries exact match, then prefix/family match (longest prefix wins), then default.
func GetModelPricing(model string) ModelPricing {
	if p, ok := modelPricingTable[model]; ok {
		return p
	}

	bestPrefix := ""
	var bestPricing ModelPricing
	for prefix, p := range modelFamilyPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestPricing = p
		}
	}
	if bestPrefix != "" {
		return bestPricing
	}
	return defaultPricing
}

// Cost computes the USD cost of a token count pair under this pricing.
func (p ModelPricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
}
