package ledger

import "math"

// NanoPerUSD is the fixed-point scale: 1 USD = 1,000,000,000 nano-USD.
const NanoPerUSD = 1_000_000_000

// NanoToUSD converts a nano-USD amount to floating-point dollars. Only used
// at boundaries (spending-limit comparison, display); ledger math stays in
// integers.
func NanoToUSD(nano int64) float64 {
	return float64(nano) / NanoPerUSD
}

// USDToNano converts dollars to nano-USD, rounding to the nearest integer.
func USDToNano(usd float64) int64 {
	return int64(math.Round(usd * NanoPerUSD))
}
