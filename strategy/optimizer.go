package strategy

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE-SIZE OPTIMIZER - ternary search over a bounded size range
// ═══════════════════════════════════════════════════════════════════════════════
//
// Assumes profit(size) is unimodal: it rises while the edge dominates and falls
// once size-driven slippage takes over. Nothing checks that assumption; on a
// multi-peaked curve the search still returns the best point it evaluated.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxOptimizerIterations = 50

	// digits kept after every multiplication or division
	calcPrecision int32 = 18
)

var (
	defaultPrecision = decimal.NewFromFloat(0.001)
	three            = decimal.NewFromInt(3)
)

// ProfitFunc maps a trade size to its expected profit
type ProfitFunc func(amount decimal.Decimal) decimal.Decimal

// OptimizeResult is the best size found and the profit at that size
type OptimizeResult struct {
	Amount     decimal.Decimal
	Profit     decimal.Decimal
	Iterations int
}

// Optimize searches [minAmount, maxAmount] for the size with the highest profit.
// The result is never worse than profitFn(minAmount).
func Optimize(minAmount, maxAmount decimal.Decimal, profitFn ProfitFunc, precision decimal.Decimal) OptimizeResult {
	if !precision.IsPositive() {
		precision = defaultPrecision
	}

	left, right := minAmount, maxAmount
	best := OptimizeResult{Amount: minAmount, Profit: profitFn(minAmount)}

	for i := 0; i < maxOptimizerIterations; i++ {
		width := right.Sub(left)
		if width.LessThan(precision) {
			break
		}
		best.Iterations++

		third := quo(width, three)
		mid1 := left.Add(third)
		mid2 := right.Sub(third)

		profit1 := profitFn(mid1)
		profit2 := profitFn(mid2)

		if profit1.GreaterThan(best.Profit) {
			best.Amount, best.Profit = mid1, profit1
		}
		if profit2.GreaterThan(best.Profit) {
			best.Amount, best.Profit = mid2, profit2
		}

		if profit1.GreaterThan(profit2) {
			right = mid2
		} else {
			left = mid1
		}
	}

	return best
}

// quo divides and truncates toward zero so no intermediate value is rounded up
func quo(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, calcPrecision)
	return q
}
