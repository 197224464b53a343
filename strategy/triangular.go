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
// TRIANGULAR ARBITRAGE - A -> B -> C -> A on a single market
// ═══════════════════════════════════════════════════════════════════════════════
//
// Per leg:
//   slippage = base * (1 + amount / referenceLiquidity)
//   amount   = amount * legPrice * (1 - slippage) * (1 - fee)
//
// Every step is truncated, never rounded up, so profit is not overstated.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SimResult is the outcome of one simulated cycle
type SimResult struct {
	StartAmount decimal.Decimal
	EndAmount   decimal.Decimal
	Profit      decimal.Decimal
	ProfitRatio decimal.Decimal
}

// Simulator applies the slippage and fee model to a cycle. It holds no state
// beyond its parameters and is safe for concurrent use.
type Simulator struct {
	baseSlippage       decimal.Decimal
	referenceLiquidity decimal.Decimal
	fee                decimal.Decimal
}

// NewSimulator creates a simulator from the model configuration
func NewSimulator(cfg config.ModelConfig) *Simulator {
	return &Simulator{
		baseSlippage:       cfg.BaseSlippage,
		referenceLiquidity: cfg.ReferenceLiquidity,
		fee:                cfg.TriangularFee,
	}
}

// Simulate runs amount through the path at the current prices.
// It returns false when amount is not positive or any leg has no price.
func (s *Simulator) Simulate(path types.Path, prices PriceSource, amount decimal.Decimal) (SimResult, bool) {
	snaps, ok := resolvePrices(path, prices)
	if !ok {
		return SimResult{}, false
	}
	return s.simulate(path, snaps, amount)
}

func (s *Simulator) simulate(path types.Path, snaps [3]types.PriceSnapshot, amount decimal.Decimal) (SimResult, bool) {
	if !amount.IsPositive() {
		return SimResult{}, false
	}

	current := amount
	for i := 0; i < 3; i++ {
		rate, ok := legRate(path.Assets[i], path.Instruments[i], snaps[i].Price)
		if !ok {
			return SimResult{}, false
		}

		slippage := s.slippage(current)
		current = current.Mul(rate).Truncate(calcPrecision)
		current = current.Mul(decimal.NewFromInt(1).Sub(slippage)).Truncate(calcPrecision)
		current = current.Mul(decimal.NewFromInt(1).Sub(s.fee)).Truncate(calcPrecision)
	}

	profit := current.Sub(amount)
	return SimResult{
		StartAmount: amount,
		EndAmount:   current,
		Profit:      profit,
		ProfitRatio: quo(profit, amount),
	}, true
}

// slippage grows linearly with the size entering the leg
func (s *Simulator) slippage(amount decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(quo(amount, s.referenceLiquidity))
	return s.baseSlippage.Mul(factor).Truncate(calcPrecision)
}

// legRate is the units of the next asset received per unit of from.
// Instruments listed the other way round are inverted.
func legRate(from string, inst types.Instrument, price decimal.Decimal) (decimal.Decimal, bool) {
	if !price.IsPositive() {
		return decimal.Zero, false
	}
	switch from {
	case inst.Base:
		return price, true
	case inst.Quote:
		return quo(decimal.NewFromInt(1), price), true
	default:
		return decimal.Zero, false
	}
}

func resolvePrices(path types.Path, prices PriceSource) ([3]types.PriceSnapshot, bool) {
	var snaps [3]types.PriceSnapshot
	for i, inst := range path.Instruments {
		if inst.Symbol == "" {
			return snaps, false
		}
		snap, ok := prices.Price(inst.Symbol)
		if !ok {
			return snaps, false
		}
		snaps[i] = snap
	}
	return snaps, true
}

// ═══════════════════════════════════════════════════════════════════════════════
// DETECTOR
// ═══════════════════════════════════════════════════════════════════════════════

// TriangularDetector scans registered cycles for profitable sizes
type TriangularDetector struct {
	cfg     config.ModelConfig
	sim     *Simulator
	paths   []types.Path
	ttl     time.Duration
	enabled atomic.Bool
	now     func() time.Time
}

// NewTriangularDetector creates a detector over the given paths.
// Paths are expected in priority order.
func NewTriangularDetector(cfg config.ModelConfig, paths []types.Path, ttl time.Duration) *TriangularDetector {
	d := &TriangularDetector{
		cfg:   cfg,
		sim:   NewSimulator(cfg),
		paths: paths,
		ttl:   ttl,
		now:   time.Now,
	}
	d.enabled.Store(true)

	log.Info().
		Int("paths", len(paths)).
		Str("fee", cfg.TriangularFee.String()).
		Str("base_slippage", cfg.BaseSlippage.String()).
		Msg("🔺 Triangular detector initialized")

	return d
}

// Name implements Detector
func (d *TriangularDetector) Name() string { return NameTriangular }

// Enabled implements Detector
func (d *TriangularDetector) Enabled() bool { return d.enabled.Load() }

// SetEnabled implements Detector
func (d *TriangularDetector) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// Scan implements Detector
func (d *TriangularDetector) Scan(ctx context.Context, prices PriceSource) ([]*types.Opportunity, error) {
	var out []*types.Opportunity
	for _, path := range d.paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if opp := d.Analyze(path, prices); opp != nil {
			out = append(out, opp)
		}
	}
	return out, nil
}

// Analyze evaluates one cycle and returns an opportunity or nil
func (d *TriangularDetector) Analyze(path types.Path, prices PriceSource) *types.Opportunity {
	snaps, ok := resolvePrices(path, prices)
	if !ok {
		log.Debug().Str("path", path.String()).Msg("Missing price data")
		return nil
	}

	// Slippage only grows with size, so the smallest size is the best case.
	probe, ok := d.sim.simulate(path, snaps, d.cfg.MinTradeAmount)
	if !ok || probe.ProfitRatio.LessThan(d.cfg.MinProfitThreshold) {
		return nil
	}

	profitFn := func(amount decimal.Decimal) decimal.Decimal {
		res, ok := d.sim.simulate(path, snaps, amount)
		if !ok {
			return decimal.Zero
		}
		return res.Profit
	}
	best := Optimize(d.cfg.MinTradeAmount, d.cfg.MaxTradeAmount, profitFn, d.cfg.OptimizerPrecision)
	if !best.Profit.IsPositive() {
		return nil
	}

	gas := TriangularGas(d.cfg, len(path.Instruments))
	if !ProfitableAfterGas(best.Profit, gas, d.cfg.MinProfitThreshold, best.Amount) {
		log.Debug().
			Str("path", path.String()).
			Str("profit", best.Profit.StringFixed(6)).
			Str("gas", gas.StringFixed(6)).
			Msg("Cycle does not clear gas")
		return nil
	}

	ratio := quo(best.Profit, best.Amount)
	now := d.now()
	opp := &types.Opportunity{
		ID:             fmt.Sprintf("triangular-%s-%s", strings.Join(path.Assets[:], "-"), uuid.New().String()),
		Kind:           types.KindTriangular,
		TradeAmount:    best.Amount,
		ExpectedProfit: best.Profit,
		ProfitRatio:    ratio,
		GasEstimate:    gas,
		Confidence:     TriangularConfidence(d.cfg, ratio, len(path.Instruments)),
		CreatedAt:      now,
		Deadline:       now.Add(d.ttl),
		Triangular: &types.TriangularLeg{
			Assets:      path.Assets,
			Instruments: path.Instruments,
		},
	}

	log.Info().
		Str("path", path.String()).
		Str("amount", best.Amount.StringFixed(4)).
		Str("profit", best.Profit.StringFixed(6)).
		Str("ratio", ratio.StringFixed(6)).
		Int("iterations", best.Iterations).
		Msg("🔺 Triangular opportunity found")

	return opp
}
