package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/deeparb/types"
)

func rankable(id string, profit, ratio string, confidence float64) *types.Opportunity {
	return &types.Opportunity{
		ID:             id,
		Kind:           types.KindTriangular,
		TradeAmount:    decimal.NewFromInt(10),
		ExpectedProfit: decimal.RequireFromString(profit),
		ProfitRatio:    decimal.RequireFromString(ratio),
		GasEstimate:    decimal.RequireFromString("0.11"),
		Confidence:     confidence,
		Triangular:     &types.TriangularLeg{Assets: [3]string{"SUI", "USDC", "DEEP"}},
	}
}

func ids(opps []*types.Opportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.ID
	}
	return out
}

func TestRank(t *testing.T) {
	threshold := decimal.RequireFromString("0.005")

	t.Run("gas filter", func(t *testing.T) {
		// margin at size 10 is 0.05, so profit must exceed 0.16
		ranked := Rank([]*types.Opportunity{
			rankable("thin", "0.16", "0.016", 0.9),
			rankable("ok", "0.5", "0.05", 0.9),
		}, threshold, 0)

		assert.Equal(t, []string{"ok"}, ids(ranked))
	})

	t.Run("ratio then confidence", func(t *testing.T) {
		ranked := Rank([]*types.Opportunity{
			rankable("low", "1", "0.02", 0.9),
			rankable("high-unsure", "2", "0.1", 0.6),
			rankable("high-sure", "2", "0.1", 0.8),
		}, threshold, 0)

		assert.Equal(t, []string{"high-sure", "high-unsure", "low"}, ids(ranked))
	})

	t.Run("top n", func(t *testing.T) {
		cands := []*types.Opportunity{
			rankable("a", "1", "0.01", 0.9),
			rankable("b", "1", "0.03", 0.9),
			rankable("c", "1", "0.02", 0.9),
		}
		assert.Equal(t, []string{"b", "c"}, ids(Rank(cands, threshold, 2)))
		assert.Len(t, Rank(cands, threshold, 10), 3)
	})

	t.Run("malformed candidates dropped", func(t *testing.T) {
		missingLeg := rankable("no-leg", "1", "0.1", 0.9)
		missingLeg.Triangular = nil
		wrongKind := rankable("cross", "1", "0.1", 0.9)
		wrongKind.Kind = types.KindCrossVenue

		ranked := Rank([]*types.Opportunity{nil, missingLeg, wrongKind, rankable("good", "1", "0.1", 0.9)}, threshold, 0)

		assert.Equal(t, []string{"good"}, ids(ranked))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Rank(nil, threshold, 3))
	})
}
