package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/deeparb/internal/config"
	"github.com/web3guy0/deeparb/types"
)

type externalMap map[string]types.ExternalPrice

func (m externalMap) Price(_ context.Context, symbol string) (types.ExternalPrice, bool) {
	p, ok := m[symbol]
	return p, ok
}

func suiPair() *types.MonitoredPair {
	return &types.MonitoredPair{
		Reference:      inst("SUI", "USDC"),
		ExternalSymbol: "SUI/USDC",
	}
}

func refSnap(price string, volume int64) types.PriceSnapshot {
	return types.PriceSnapshot{Price: decimal.RequireFromString(price), Volume24h: decimal.NewFromInt(volume)}
}

func extPrice(price string) types.ExternalPrice {
	return types.ExternalPrice{Symbol: "SUI/USDC", Price: decimal.RequireFromString(price), Source: "test"}
}

func newCrossVenue(t *testing.T, cfg config.ModelConfig, rates ConversionRates) (*CrossVenueDetector, time.Time) {
	t.Helper()
	d := NewCrossVenueDetector(cfg, nil, externalMap{}, rates, 30*time.Second)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, now
}

func TestCrossVenue_SellReference(t *testing.T) {
	cfg := config.Default().Model
	cfg.MinProfitThreshold = decimal.RequireFromString("0.003")
	d, now := newCrossVenue(t, cfg, nil)
	pair := suiPair()

	opp, ok := d.Detect(pair, refSnap("4.30", 1000), extPrice("4.25"))

	require.True(t, ok)
	require.NotNil(t, opp.CrossVenue)
	assert.Equal(t, types.KindCrossVenue, opp.Kind)
	assert.Equal(t, types.SellReference, opp.CrossVenue.Direction)
	assert.InDelta(t, 0.0117647, opp.CrossVenue.Discrepancy.InexactFloat64(), 1e-6)
	// min(0.1 * 1000, 10 * (1.17647 + 1))
	assert.InDelta(t, 21.7647058, opp.TradeAmount.InexactFloat64(), 1e-6)
	// size * 0.05 gap - size * 0.005 fee
	assert.InDelta(t, 0.9794117, opp.ExpectedProfit.InexactFloat64(), 1e-6)
	// profit per unit traded: 0.05 gap less the 0.005 fee
	assert.InDelta(t, 0.045, opp.ProfitRatio.InexactFloat64(), 1e-9)
	assert.True(t, opp.ProfitRatio.GreaterThan(cfg.MinProfitThreshold))
	assert.True(t, opp.GasEstimate.Equal(cfg.CrossVenueGas))
	assert.Equal(t, now.Add(30*time.Second), opp.Deadline)

	disc, at := pair.LastObservation()
	assert.True(t, disc.Equal(opp.CrossVenue.Discrepancy))
	assert.Equal(t, now, at)
}

func TestCrossVenue_BuyReference(t *testing.T) {
	d, _ := newCrossVenue(t, config.Default().Model, nil)

	opp, ok := d.Detect(suiPair(), refSnap("4.20", 1000), extPrice("4.25"))

	require.True(t, ok)
	assert.Equal(t, types.BuyReference, opp.CrossVenue.Direction)
	assert.True(t, opp.ExpectedProfit.IsPositive())
}

func TestCrossVenue_BelowThresholdStillObserved(t *testing.T) {
	d, now := newCrossVenue(t, config.Default().Model, nil)
	pair := suiPair()

	_, ok := d.Detect(pair, refSnap("4.26", 1000), extPrice("4.25"))

	assert.False(t, ok)
	disc, at := pair.LastObservation()
	assert.InDelta(t, 0.01/4.25, disc.InexactFloat64(), 1e-9)
	assert.Equal(t, now, at)
}

func TestCrossVenue_Conversion(t *testing.T) {
	pair := &types.MonitoredPair{
		Reference:          inst("SUI", "USDC"),
		ExternalSymbol:     "SUI/EUR",
		ConversionRequired: true,
		ConvertFrom:        "EUR",
		ConvertTo:          "USDC",
	}

	t.Run("missing rate", func(t *testing.T) {
		d, _ := newCrossVenue(t, config.Default().Model, DefaultRates())
		_, ok := d.Detect(pair, refSnap("4.30", 1000), extPrice("4.00"))
		assert.False(t, ok)
	})

	t.Run("rate applied", func(t *testing.T) {
		rates := DefaultRates()
		rates.Rates["EUR/USDC"] = decimal.RequireFromString("1.075")
		d, _ := newCrossVenue(t, config.Default().Model, rates)

		// 4.00 EUR converts to 4.30 USDC, no gap
		_, ok := d.Detect(pair, refSnap("4.30", 1000), extPrice("4.00"))
		assert.False(t, ok)

		opp, ok := d.Detect(pair, refSnap("4.50", 1000), extPrice("4.00"))
		require.True(t, ok)
		assert.True(t, opp.CrossVenue.ExternalPrice.Equal(decimal.RequireFromString("4.3")))
		assert.Equal(t, types.SellReference, opp.CrossVenue.Direction)
	})
}

func TestCrossVenue_GasRule(t *testing.T) {
	d, _ := newCrossVenue(t, config.Default().Model, nil)

	// thin volume caps the size at 0.1, so the gap earns less than gas
	_, ok := d.Detect(suiPair(), refSnap("4.30", 1), extPrice("4.25"))
	assert.False(t, ok)

	// no volume, no size
	_, ok = d.Detect(suiPair(), refSnap("4.30", 0), extPrice("4.25"))
	assert.False(t, ok)
}

func TestCrossVenue_Scan(t *testing.T) {
	pairs := []*types.MonitoredPair{
		suiPair(),
		{Reference: inst("DEEP", "USDC"), ExternalSymbol: "DEEP/USDC"},
		{Reference: inst("WAL", "USDC"), ExternalSymbol: "WAL/USDC"},
	}
	external := externalMap{
		"SUI/USDC":  extPrice("4.25"),
		"DEEP/USDC": extPrice("0.2"),
	}
	d := NewCrossVenueDetector(config.Default().Model, pairs, external, nil, time.Minute)
	prices := priceMap{
		"SUI_USDC":  refSnap("4.30", 1000),
		"DEEP_USDC": refSnap("0.2", 1000),
		"WAL_USDC":  refSnap("0.5", 1000),
	}

	opps, err := d.Scan(context.Background(), prices)

	require.NoError(t, err)
	require.Len(t, opps, 1, "DEEP has no gap and WAL has no external quote")
	assert.Equal(t, "SUI_USDC", opps[0].CrossVenue.Reference.Symbol)
	assert.Equal(t, NameCrossVenue, d.Name())
}

func TestStaticRates(t *testing.T) {
	r := DefaultRates()
	r.Rates["EUR/USD"] = decimal.RequireFromString("1.08")

	rate, ok := r.Rate("usdt", "USDC")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, ok = r.Rate("SUI", "SUI")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, ok = r.Rate("EUR", "USD")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.08")))

	_, ok = r.Rate("USD", "EUR")
	assert.False(t, ok)
}
