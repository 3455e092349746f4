package pricing

import "context"

// ModelRate holds per-token prices in nano-USD.
type ModelRate struct {
	PromptNanoUSDPerToken     int64
	CompletionNanoUSDPerToken int64
}

// TableOracle prices usage from a static per-model rate table with a
// fallback rate for unknown models.
type TableOracle struct {
	rates    map[string]ModelRate
	fallback ModelRate
}

func NewTableOracle(rates map[string]ModelRate, fallback ModelRate) *TableOracle {
	if rates == nil {
		rates = map[string]ModelRate{}
	}
	return &TableOracle{rates: rates, fallback: fallback}
}

// PriceUsage returns prompt*rate + completion*rate for the usage's model.
func (o *TableOracle) PriceUsage(ctx context.Context, usage Usage) (int64, error) {
	if usage.PromptTokens <= 0 && usage.CompletionTokens <= 0 {
		return 0, ErrNoUsage
	}

	rate, ok := o.rates[usage.Model]
	if !ok {
		rate = o.fallback
	}

	cost := int64(usage.PromptTokens)*rate.PromptNanoUSDPerToken +
		int64(usage.CompletionTokens)*rate.CompletionNanoUSDPerToken
	return cost, nil
}

// DefaultRates returns the built-in rate table. Prices are nano-USD per
// token, e.g. 3000 nano-USD/token = $3 per million tokens.
func DefaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"openai/gpt-4o":                 {PromptNanoUSDPerToken: 2500, CompletionNanoUSDPerToken: 10000},
		"openai/gpt-4o-mini":            {PromptNanoUSDPerToken: 150, CompletionNanoUSDPerToken: 600},
		"openai/text-embedding-3-small": {PromptNanoUSDPerToken: 20, CompletionNanoUSDPerToken: 0},
		"anthropic/claude-sonnet-4":     {PromptNanoUSDPerToken: 3000, CompletionNanoUSDPerToken: 15000},
		"anthropic/claude-haiku-3.5":    {PromptNanoUSDPerToken: 800, CompletionNanoUSDPerToken: 4000},
	}
}

// DefaultFallbackRate is applied to models missing from the table.
func DefaultFallbackRate() ModelRate {
	return ModelRate{PromptNanoUSDPerToken: 3000, CompletionNanoUSDPerToken: 15000}
}
