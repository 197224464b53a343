package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/deeparb/internal/config"
)

func TestOptimize(t *testing.T) {
	min := decimal.RequireFromString("0.1")
	max := decimal.NewFromInt(100)
	precision := decimal.RequireFromString("0.001")

	t.Run("finds interior peak", func(t *testing.T) {
		// 100 - (x - 30)^2
		peak := decimal.NewFromInt(30)
		fn := func(x decimal.Decimal) decimal.Decimal {
			d := x.Sub(peak)
			return decimal.NewFromInt(100).Sub(d.Mul(d))
		}

		res := Optimize(min, max, fn, precision)

		assert.InDelta(t, 30, res.Amount.InexactFloat64(), 0.01)
		assert.InDelta(t, 100, res.Profit.InexactFloat64(), 0.001)
		assert.LessOrEqual(t, res.Iterations, 50)
		assert.Positive(t, res.Iterations)
	})

	t.Run("never worse than the minimum size", func(t *testing.T) {
		decreasing := func(x decimal.Decimal) decimal.Decimal { return x.Neg() }

		res := Optimize(min, max, decreasing, precision)

		assert.True(t, res.Amount.Equal(min))
		assert.True(t, res.Profit.Equal(min.Neg()))
	})

	t.Run("increasing curve hits the upper bound", func(t *testing.T) {
		res := Optimize(min, max, func(x decimal.Decimal) decimal.Decimal { return x }, precision)
		assert.InDelta(t, 100, res.Amount.InexactFloat64(), 0.001)
	})

	t.Run("degenerate range", func(t *testing.T) {
		res := Optimize(max, max, func(x decimal.Decimal) decimal.Decimal { return x }, precision)
		assert.True(t, res.Amount.Equal(max))
		assert.Zero(t, res.Iterations)
	})

	t.Run("non-positive precision falls back to default", func(t *testing.T) {
		res := Optimize(min, max, func(x decimal.Decimal) decimal.Decimal { return x }, decimal.Zero)
		assert.InDelta(t, 100, res.Amount.InexactFloat64(), 0.001)
	})
}

func TestQuoTruncates(t *testing.T) {
	q := quo(decimal.NewFromInt(2), decimal.NewFromInt(3))
	assert.Equal(t, "0.666666666666666666", q.String())
}

func TestProfitableAfterGas(t *testing.T) {
	threshold := decimal.RequireFromString("0.005")
	amount := decimal.NewFromInt(20)
	gas := decimal.RequireFromString("0.08")

	// margin is 0.1, so gross must exceed 0.18
	assert.True(t, ProfitableAfterGas(decimal.RequireFromString("0.19"), gas, threshold, amount))
	assert.False(t, ProfitableAfterGas(decimal.RequireFromString("0.18"), gas, threshold, amount))
	assert.False(t, ProfitableAfterGas(decimal.RequireFromString("0.05"), gas, threshold, amount))
}

func TestConfidence(t *testing.T) {
	cfg := config.Default().Model

	t.Run("triangular", func(t *testing.T) {
		assert.InDelta(t, 0.5+0.05+0.1, TriangularConfidence(cfg, decimal.RequireFromString("0.005"), 3), 1e-9)
		assert.InDelta(t, 0.9, TriangularConfidence(cfg, decimal.NewFromInt(1), 3), 1e-9)
		assert.InDelta(t, 0.55, TriangularConfidence(cfg, decimal.RequireFromString("0.005"), 2), 1e-9)

		high := cfg
		high.TriangularConfidenceBase = 0.7
		assert.InDelta(t, 0.95, TriangularConfidence(high, decimal.NewFromInt(1), 3), 1e-9)
	})

	t.Run("cross-venue", func(t *testing.T) {
		got := CrossVenueConfidence(cfg, decimal.RequireFromString("0.01"), decimal.NewFromInt(500_000))
		assert.InDelta(t, 0.7, got, 1e-9)

		capped := CrossVenueConfidence(cfg, decimal.NewFromInt(1), decimal.NewFromInt(1_000_000_000))
		assert.InDelta(t, 0.85, capped, 1e-9)
	})

	t.Run("gas estimates", func(t *testing.T) {
		assert.True(t, TriangularGas(cfg, 3).Equal(decimal.RequireFromString("0.11")))
	})
}
