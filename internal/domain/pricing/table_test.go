package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/helpmaton/billing-api/internal/domain/pricing"
)

func TestPriceKnownModel(t *testing.T) {
	oracle := pricing.NewTableOracle(map[string]pricing.ModelRate{
		"openai/gpt-4o": {PromptNanoUSDPerToken: 2500, CompletionNanoUSDPerToken: 10000},
	}, pricing.DefaultFallbackRate())

	cost, err := oracle.PriceUsage(context.Background(), pricing.Usage{
		Model:            "openai/gpt-4o",
		PromptTokens:     1000,
		CompletionTokens: 500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1000*2500 + 500*10000
	if cost != 7_500_000 {
		t.Fatalf("expected 7500000, got %d", cost)
	}
}

func TestPriceUnknownModelUsesFallback(t *testing.T) {
	fallback := pricing.ModelRate{PromptNanoUSDPerToken: 100, CompletionNanoUSDPerToken: 200}
	oracle := pricing.NewTableOracle(nil, fallback)

	cost, err := oracle.PriceUsage(context.Background(), pricing.Usage{
		Model:            "someone/unheard-of",
		PromptTokens:     10,
		CompletionTokens: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cost != 3000 {
		t.Fatalf("expected 3000, got %d", cost)
	}
}

func TestPriceNoTokens(t *testing.T) {
	oracle := pricing.NewTableOracle(pricing.DefaultRates(), pricing.DefaultFallbackRate())

	_, err := oracle.PriceUsage(context.Background(), pricing.Usage{Model: "openai/gpt-4o"})
	if !errors.Is(err, pricing.ErrNoUsage) {
		t.Fatalf("expected ErrNoUsage, got %v", err)
	}
}

func TestPromptOnlyUsage(t *testing.T) {
	// Embedding calls have prompt tokens and nothing else.
	oracle := pricing.NewTableOracle(pricing.DefaultRates(), pricing.DefaultFallbackRate())

	cost, err := oracle.PriceUsage(context.Background(), pricing.Usage{
		Model:        "openai/text-embedding-3-small",
		PromptTokens: 5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cost != 100_000 {
		t.Fatalf("expected 100000, got %d", cost)
	}
}
