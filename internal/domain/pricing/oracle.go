package pricing

import (
	"context"
	"errors"
)

// ErrNoUsage is returned when the usage carries nothing to price.
var ErrNoUsage = errors.New("no token counts to price")

// Usage is the raw consumption to be priced.
type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Oracle converts usage into a cost in nano-USD. Implementations are opaque
// to the billing core; how per-token prices are set is not its concern.
type Oracle interface {
	PriceUsage(ctx context.Context, usage Usage) (int64, error)
}
