package core

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/strategy"
	"github.com/web3guy0/deeparb/types"
)

// Rank drops candidates that do not clear gas plus the size-proportional
// margin, then orders the rest by profit ratio and confidence, best first.
// At most topN are returned; topN <= 0 returns all.
func Rank(candidates []*types.Opportunity, minProfitThreshold decimal.Decimal, topN int) []*types.Opportunity {
	accepted := make([]*types.Opportunity, 0, len(candidates))
	for _, opp := range candidates {
		if opp == nil || !knownKind(opp) {
			continue
		}
		if !strategy.ProfitableAfterGas(opp.ExpectedProfit, opp.GasEstimate, minProfitThreshold, opp.TradeAmount) {
			log.Debug().
				Str("opportunity", opp.ID).
				Str("profit", opp.ExpectedProfit.StringFixed(6)).
				Str("gas", opp.GasEstimate.StringFixed(6)).
				Msg("Filtered by gas rule")
			continue
		}
		accepted = append(accepted, opp)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if c := a.ProfitRatio.Cmp(b.ProfitRatio); c != 0 {
			return c > 0
		}
		return a.Confidence > b.Confidence
	})

	if topN > 0 && len(accepted) > topN {
		accepted = accepted[:topN]
	}
	return accepted
}

// knownKind reports whether the payload matches the tag
func knownKind(opp *types.Opportunity) bool {
	switch opp.Kind {
	case types.KindTriangular:
		return opp.Triangular != nil
	case types.KindCrossVenue:
		return opp.CrossVenue != nil
	default:
		return false
	}
}
