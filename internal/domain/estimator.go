package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// costPrecision is the number of decimal places costs are rounded
	// to, matching the ledger's fixed-point balance column.
	costPrecision = 6

	tokensPerMillion = 1_000_000

	// avgCharsPerToken approximates input tokens from raw message text
	// before the provider reports real counts.
	avgCharsPerToken = 4

	// outputEstimateMultiplier approximates output tokens as a multiple
	// of estimated input tokens, used only for the preflight check.
	outputEstimateMultiplier = 1.5
)

// CostEstimator computes monetary cost from token counts and a pricing
// table.
type CostEstimator struct {
	table *PricingTable
}

// NewCostEstimator creates a cost estimator over an immutable table.
func NewCostEstimator(table *PricingTable) *CostEstimator {
	return &CostEstimator{table: table}
}

// EstimateCost computes the USD cost for the given token counts,
// rounded to six decimal places (half away from zero). Cached input
// tokens exceeding input tokens are clamped rather than rejected;
// negative counts fail with ErrInvalidUsage.
func (e *CostEstimator) EstimateCost(
	model string,
	inputTokens, outputTokens, cachedInputTokens int64,
) (decimal.Decimal, error) {
	if inputTokens < 0 || outputTokens < 0 || cachedInputTokens < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative token count", ErrInvalidUsage)
	}

	p, err := e.table.PriceFor(model)
	if err != nil {
		return decimal.Zero, err
	}

	if cachedInputTokens > inputTokens {
		cachedInputTokens = inputTokens
	}

	million := decimal.NewFromInt(tokensPerMillion)

	uncached := decimal.NewFromInt(inputTokens - cachedInputTokens)
	cached := decimal.NewFromInt(cachedInputTokens)
	output := decimal.NewFromInt(outputTokens)

	cost := uncached.Mul(p.Input).
		Add(cached.Mul(p.CachedInput)).
		Add(output.Mul(p.Output)).
		Div(million)

	return cost.Round(costPrecision), nil
}

// EstimateRequestTokens approximates token usage for a request before
// any provider call. Input is raw message text length over a fixed
// characters-per-token average; output is a fixed multiple of input.
// Used only for the preflight affordability check, never for final
// billing once provider-reported usage is available.
func EstimateRequestTokens(messages []Message) (inputTokens, outputTokens int64) {
	var chars int64
	for _, m := range messages {
		chars += int64(len(m.Content))
	}

	inputTokens = chars / avgCharsPerToken
	outputTokens = int64(float64(inputTokens) * outputEstimateMultiplier)
	return inputTokens, outputTokens
}

// EstimateTokensFromChars approximates a token count from a raw
// character count, using the same average as EstimateRequestTokens.
func EstimateTokensFromChars(chars int64) int64 {
	return chars / avgCharsPerToken
}
