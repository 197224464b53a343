package strategy

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/internal/config"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SCORING - confidence heuristics and the gas rule shared by both detectors
// ═══════════════════════════════════════════════════════════════════════════════

const (
	triangularProfitWeight = 10.0
	triangularProfitCap    = 0.3
	triangularLegBonus     = 0.1 // every complete three-leg path gets it

	crossVenueDiscWeight = 20.0
	crossVenueDiscCap    = 0.4
	crossVenueVolumeUnit = 1_000_000.0
	crossVenueVolumeCap  = 0.2
)

// ProfitableAfterGas reports whether gross profit clears gas plus a margin
// proportional to size: gross - gas > threshold * amount.
func ProfitableAfterGas(gross, gas, threshold, amount decimal.Decimal) bool {
	return gross.Sub(gas).GreaterThan(threshold.Mul(amount))
}

// TriangularGas estimates the cost of settling an n-leg cycle
func TriangularGas(cfg config.ModelConfig, legs int) decimal.Decimal {
	return cfg.BaseGas.Add(cfg.PerLegGas.Mul(decimal.NewFromInt(int64(legs))))
}

// TriangularConfidence scores a cycle from its profit ratio
func TriangularConfidence(cfg config.ModelConfig, profitRatio decimal.Decimal, legs int) float64 {
	confidence := cfg.TriangularConfidenceBase
	confidence += math.Min(profitRatio.InexactFloat64()*triangularProfitWeight, triangularProfitCap)
	if legs >= 3 {
		confidence += triangularLegBonus
	}
	return clampConfidence(confidence, cfg.TriangularConfidenceCeiling)
}

// CrossVenueConfidence scores a venue gap from its size and the external volume
func CrossVenueConfidence(cfg config.ModelConfig, discrepancy, externalVolume decimal.Decimal) float64 {
	confidence := cfg.CrossVenueConfidenceBase
	confidence += math.Min(discrepancy.InexactFloat64()*crossVenueDiscWeight, crossVenueDiscCap)
	confidence += math.Min(externalVolume.InexactFloat64()/crossVenueVolumeUnit, crossVenueVolumeCap)
	return clampConfidence(confidence, cfg.CrossVenueConfidenceCeiling)
}

func clampConfidence(c, ceiling float64) float64 {
	if c > ceiling {
		c = ceiling
	}
	if c < 0 {
		c = 0
	}
	return c
}
