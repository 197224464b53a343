package risk

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION + SIZING
// ═══════════════════════════════════════════════════════════════════════════════
//
// Kelly-inspired sizing:
//   fraction = confidence * profitRatio * multiplier   (half Kelly by default)
//   amount   = maxPosition * clamp(fraction, minFraction, maxFraction)
//
// ═══════════════════════════════════════════════════════════════════════════════

// Decision is the outcome of one risk evaluation
type Decision struct {
	Approved       bool
	Reason         string           // set on rejection
	AdjustedAmount *decimal.Decimal // set when the amount was clamped
}

// Apply overwrites the opportunity's size with the clamped amount, if any
func (d Decision) Apply(opp *types.Opportunity) {
	if d.Approved && d.AdjustedAmount != nil {
		opp.TradeAmount = *d.AdjustedAmount
	}
}

func reject(reason string) Decision {
	return Decision{Approved: false, Reason: reason}
}

// validConfidence reports whether c can be used as a probability
func validConfidence(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0) && c >= 0 && c <= 1
}

// kellySize returns the size Kelly sizing allows for the opportunity.
// Degenerate inputs fall back to a fixed share of the max position.
func (e *Engine) kellySize(opp *types.Opportunity) decimal.Decimal {
	maxPos := e.limits.MaxPositionSize

	if !validConfidence(opp.Confidence) {
		log.Warn().
			Str("opportunity", opp.ID).
			Float64("confidence", opp.Confidence).
			Msg("⚠️ Invalid confidence, using conservative sizing")
		return maxPos.Mul(e.params.FallbackFraction)
	}

	fraction := decimal.NewFromFloat(opp.Confidence).
		Mul(opp.ProfitRatio).
		Mul(e.params.KellyMultiplier)
	fraction = decimal.Max(fraction, e.params.KellyMinFraction)
	fraction = decimal.Min(fraction, e.params.KellyMaxFraction)

	return maxPos.Mul(fraction)
}

// maxExposure is the aggregate exposure ceiling
func (e *Engine) maxExposure() decimal.Decimal {
	return e.limits.MaxPositionSize.Mul(e.params.ExposureMultiple)
}

// nextUTCMidnight returns the first UTC midnight strictly after t
func nextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
