package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
)

func estimatorTable() *domain.PricingTable {
	t := domain.NewPricingTable()
	t.Add("test-model", domain.ModelPrice{
		Input:       decimal.NewFromFloat(1.0),
		Output:      decimal.NewFromFloat(2.0),
		CachedInput: decimal.NewFromFloat(0.1),
	})
	t.Add("tiny-model", domain.ModelPrice{
		Input:  decimal.NewFromFloat(0.5),
		Output: decimal.NewFromFloat(0.5),
	})
	t.SetDefault("test-model")
	return t
}

func TestCostEstimator_EstimateCost(t *testing.T) {
	estimator := domain.NewCostEstimator(estimatorTable())

	t.Run("one million input tokens costs exactly the input rate", func(t *testing.T) {
		cost, err := estimator.EstimateCost("test-model", 1_000_000, 0, 0)
		require.NoError(t, err)
		require.Equal(t, "1.000000", cost.StringFixed(6))
	})

	t.Run("one million output tokens costs exactly the output rate", func(t *testing.T) {
		cost, err := estimator.EstimateCost("test-model", 0, 1_000_000, 0)
		require.NoError(t, err)
		require.Equal(t, "2.000000", cost.StringFixed(6))
	})

	t.Run("mixed usage", func(t *testing.T) {
		// 1000*1.0/1e6 + 500*2.0/1e6 = 0.002
		cost, err := estimator.EstimateCost("test-model", 1000, 500, 0)
		require.NoError(t, err)
		require.Equal(t, "0.002000", cost.StringFixed(6))
	})

	t.Run("cached tokens are billed at the cached rate", func(t *testing.T) {
		// (1000-400)*1.0/1e6 + 400*0.1/1e6 = 0.00064
		cost, err := estimator.EstimateCost("test-model", 1000, 0, 400)
		require.NoError(t, err)
		require.Equal(t, "0.000640", cost.StringFixed(6))
	})

	t.Run("cached exceeding input is clamped, not an error", func(t *testing.T) {
		clamped, err := estimator.EstimateCost("test-model", 1000, 0, 5000)
		require.NoError(t, err)

		exact, err := estimator.EstimateCost("test-model", 1000, 0, 1000)
		require.NoError(t, err)

		require.Equal(t, exact.StringFixed(6), clamped.StringFixed(6))
		require.False(t, clamped.IsNegative())
	})

	t.Run("negative token counts fail", func(t *testing.T) {
		for _, tokens := range [][3]int64{
			{-1, 0, 0},
			{0, -1, 0},
			{0, 0, -1},
		} {
			_, err := estimator.EstimateCost("test-model", tokens[0], tokens[1], tokens[2])
			require.ErrorIs(t, err, domain.ErrInvalidUsage)
		}
	})

	t.Run("rounds half away from zero at six places", func(t *testing.T) {
		// 1 token at 0.5 per 1M = 0.0000005, which rounds up.
		cost, err := estimator.EstimateCost("tiny-model", 1, 0, 0)
		require.NoError(t, err)
		require.Equal(t, "0.000001", cost.StringFixed(6))
	})

	t.Run("monotonically non-decreasing in each argument", func(t *testing.T) {
		base, err := estimator.EstimateCost("test-model", 1000, 500, 100)
		require.NoError(t, err)

		moreInput, err := estimator.EstimateCost("test-model", 2000, 500, 100)
		require.NoError(t, err)
		require.True(t, moreInput.GreaterThanOrEqual(base))

		moreOutput, err := estimator.EstimateCost("test-model", 1000, 1500, 100)
		require.NoError(t, err)
		require.True(t, moreOutput.GreaterThanOrEqual(base))
	})
}

func TestEstimateRequestTokens(t *testing.T) {
	t.Run("derives tokens from message length", func(t *testing.T) {
		messages := []domain.Message{
			{Role: "system", Content: string(make([]byte, 100))},
			{Role: "user", Content: string(make([]byte, 300))},
		}

		in, out := domain.EstimateRequestTokens(messages)
		require.Equal(t, int64(100), in)  // 400 chars / 4
		require.Equal(t, int64(150), out) // 1.5x input
	})

	t.Run("empty messages estimate zero", func(t *testing.T) {
		in, out := domain.EstimateRequestTokens(nil)
		require.Zero(t, in)
		require.Zero(t, out)
	})
}
