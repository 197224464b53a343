package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/internal/config"
	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CROSS-VENUE ARBITRAGE - reference market vs external venue
// ═══════════════════════════════════════════════════════════════════════════════
//
// discrepancy = |ref - ext| / ext   (ext converted into the reference quote unit)
// size        = min(liquidityShare * volume24h, baseLiquidity * (gap*100 + 1))
// profit      = size * (sell - buy) - size * fee
//
// No order book is consulted; a share of 24h volume stands in for depth.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ConversionRates converts a price quoted in one unit into another
type ConversionRates interface {
	Rate(from, to string) (decimal.Decimal, bool)
}

// StaticRates is a fixed conversion table. Stablecoins listed in Pegged
// convert to each other at 1.
type StaticRates struct {
	Pegged map[string]bool
	Rates  map[string]decimal.Decimal // keyed "FROM/TO"
}

// DefaultRates treats the major dollar stablecoins as interchangeable
func DefaultRates() *StaticRates {
	return &StaticRates{
		Pegged: map[string]bool{"USDC": true, "USDT": true},
		Rates:  map[string]decimal.Decimal{},
	}
}

// Rate implements ConversionRates
func (r *StaticRates) Rate(from, to string) (decimal.Decimal, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if rate, ok := r.Rates[from+"/"+to]; ok {
		return rate, true
	}
	if r.Pegged[from] && r.Pegged[to] {
		return decimal.NewFromInt(1), true
	}
	return decimal.Zero, false
}

// CrossVenueDetector compares monitored pairs against an external venue
type CrossVenueDetector struct {
	cfg      config.ModelConfig
	pairs    []*types.MonitoredPair
	external ExternalPriceSource
	rates    ConversionRates
	ttl      time.Duration
	enabled  atomic.Bool
	now      func() time.Time
}

// NewCrossVenueDetector creates a detector over the given pairs
func NewCrossVenueDetector(cfg config.ModelConfig, pairs []*types.MonitoredPair, external ExternalPriceSource, rates ConversionRates, ttl time.Duration) *CrossVenueDetector {
	if rates == nil {
		rates = DefaultRates()
	}
	d := &CrossVenueDetector{
		cfg:      cfg,
		pairs:    pairs,
		external: external,
		rates:    rates,
		ttl:      ttl,
		now:      time.Now,
	}
	d.enabled.Store(true)

	log.Info().
		Int("pairs", len(pairs)).
		Str("fee", cfg.CrossVenueFee.String()).
		Msg("🌐 Cross-venue detector initialized")

	return d
}

// Name implements Detector
func (d *CrossVenueDetector) Name() string { return NameCrossVenue }

// Enabled implements Detector
func (d *CrossVenueDetector) Enabled() bool { return d.enabled.Load() }

// SetEnabled implements Detector
func (d *CrossVenueDetector) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// Scan implements Detector
func (d *CrossVenueDetector) Scan(ctx context.Context, prices PriceSource) ([]*types.Opportunity, error) {
	var out []*types.Opportunity
	for _, pair := range d.pairs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		ref, ok := prices.Price(pair.Reference.Symbol)
		if !ok {
			log.Debug().Str("symbol", pair.Reference.Symbol).Msg("No reference price")
			continue
		}
		ext, ok := d.external.Price(ctx, pair.ExternalSymbol)
		if !ok {
			log.Debug().Str("symbol", pair.ExternalSymbol).Msg("No external price")
			continue
		}

		if opp, ok := d.Detect(pair, ref, ext); ok {
			out = append(out, opp)
		}
	}
	return out, nil
}

// Detect compares one reference snapshot with one external quote
func (d *CrossVenueDetector) Detect(pair *types.MonitoredPair, ref types.PriceSnapshot, ext types.ExternalPrice) (*types.Opportunity, bool) {
	if !ref.Price.IsPositive() || !ext.Price.IsPositive() {
		return nil, false
	}

	adjusted := ext.Price
	if pair.ConversionRequired {
		rate, ok := d.rates.Rate(pair.ConvertFrom, pair.ConvertTo)
		if !ok {
			log.Debug().
				Str("from", pair.ConvertFrom).
				Str("to", pair.ConvertTo).
				Msg("No conversion rate")
			return nil, false
		}
		adjusted = ext.Price.Mul(rate).Truncate(calcPrecision)
		if !adjusted.IsPositive() {
			return nil, false
		}
	}

	now := d.now()
	discrepancy := quo(ref.Price.Sub(adjusted).Abs(), adjusted)
	pair.Observe(discrepancy, now)

	if discrepancy.LessThan(d.cfg.MinProfitThreshold) {
		return nil, false
	}

	direction := types.SellReference
	buyPrice, sellPrice := adjusted, ref.Price
	if ref.Price.LessThan(adjusted) {
		direction = types.BuyReference
		buyPrice, sellPrice = ref.Price, adjusted
	}

	size := d.tradeSize(ref.Volume24h, discrepancy)
	if !size.IsPositive() {
		return nil, false
	}

	buyValue := size.Mul(buyPrice).Truncate(calcPrecision)
	sellValue := size.Mul(sellPrice).Truncate(calcPrecision)
	fees := size.Mul(d.cfg.CrossVenueFee).Truncate(calcPrecision)
	profit := sellValue.Sub(buyValue).Abs().Sub(fees)

	gas := d.cfg.CrossVenueGas
	if !ProfitableAfterGas(profit, gas, d.cfg.MinProfitThreshold, size) {
		log.Debug().
			Str("pair", pair.Reference.Symbol).
			Str("profit", profit.StringFixed(6)).
			Msg("Gap does not clear gas")
		return nil, false
	}

	ratio := quo(profit, size)
	opp := &types.Opportunity{
		ID:             fmt.Sprintf("cross-venue-%s-%s", pair.Reference.Symbol, uuid.New().String()),
		Kind:           types.KindCrossVenue,
		TradeAmount:    size,
		ExpectedProfit: profit,
		ProfitRatio:    ratio,
		GasEstimate:    gas,
		Confidence:     CrossVenueConfidence(d.cfg, discrepancy, ext.Volume24h),
		CreatedAt:      now,
		Deadline:       now.Add(d.ttl),
		CrossVenue: &types.CrossVenueLeg{
			Reference:      pair.Reference,
			ExternalSymbol: pair.ExternalSymbol,
			Direction:      direction,
			ReferencePrice: ref.Price,
			ExternalPrice:  adjusted,
			Discrepancy:    discrepancy,
		},
	}

	log.Info().
		Str("pair", pair.Reference.Symbol).
		Str("external", pair.ExternalSymbol).
		Str("direction", string(direction)).
		Str("discrepancy", discrepancy.StringFixed(6)).
		Str("size", size.StringFixed(4)).
		Str("profit", profit.StringFixed(6)).
		Msg("🌐 Cross-venue opportunity found")

	return opp, true
}

// tradeSize bounds the trade by volume-implied depth and by the size of the gap
func (d *CrossVenueDetector) tradeSize(volume24h, discrepancy decimal.Decimal) decimal.Decimal {
	available := volume24h.Mul(d.cfg.LiquidityShare).Truncate(calcPrecision)
	gapFactor := discrepancy.Mul(decimal.NewFromInt(100)).Add(decimal.NewFromInt(1))
	maxProfitable := d.cfg.BaseLiquidity.Mul(gapFactor).Truncate(calcPrecision)
	return decimal.Min(available, maxProfitable)
}
