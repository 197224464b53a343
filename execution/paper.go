package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER EXECUTOR - simulated settlement for dry runs
// ═══════════════════════════════════════════════════════════════════════════════
//
// Fills every opportunity at its modelled profit, scaled to the size the risk
// engine approved, less an optional slippage haircut. Gas is charged as cost.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PaperConfig holds paper executor settings
type PaperConfig struct {
	Latency     time.Duration // simulated settlement delay
	SlippageBps int           // haircut on realized profit, in bps of trade amount
}

// DefaultPaperConfig returns the settings used in dry-run mode
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		Latency:     50 * time.Millisecond,
		SlippageBps: 0,
	}
}

// PaperExecutor implements Executor without touching a chain
type PaperExecutor struct {
	mu     sync.Mutex
	config PaperConfig

	// Stats
	executed    int
	expired     int
	totalProfit decimal.Decimal
	totalCost   decimal.Decimal
}

// NewPaperExecutor creates a paper executor
func NewPaperExecutor(config PaperConfig) *PaperExecutor {
	log.Info().
		Str("mode", "PAPER").
		Dur("latency", config.Latency).
		Int("slippage_bps", config.SlippageBps).
		Msg("⚡ Executor initialized")

	return &PaperExecutor{
		config:      config,
		totalProfit: decimal.Zero,
		totalCost:   decimal.Zero,
	}
}

// Execute implements Executor
func (p *PaperExecutor) Execute(ctx context.Context, opp *types.Opportunity) Result {
	started := time.Now()

	if opp == nil {
		return Failed(fmt.Errorf("nil opportunity"), started)
	}
	if opp.Expired(started) {
		p.countExpired()
		return Failed(ErrExpired, started)
	}

	if p.config.Latency > 0 {
		timer := time.NewTimer(p.config.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			p.countExpired()
			return Failed(fmt.Errorf("%w: %v", ErrExpired, ctx.Err()), started)
		case <-timer.C:
		}
	}

	profit := p.realizedProfit(opp)
	cost := opp.GasEstimate

	p.mu.Lock()
	p.executed++
	p.totalProfit = p.totalProfit.Add(profit)
	p.totalCost = p.totalCost.Add(cost)
	p.mu.Unlock()

	log.Info().
		Str("opportunity", opp.ID).
		Str("kind", string(opp.Kind)).
		Str("route", opp.Route()).
		Str("amount", opp.TradeAmount.StringFixed(4)).
		Str("profit", profit.StringFixed(6)).
		Str("gas", cost.StringFixed(6)).
		Msg("✅ Opportunity filled (PAPER)")

	return Result{
		Success:        true,
		RealizedProfit: &profit,
		Cost:           cost,
		Duration:       time.Since(started),
	}
}

// realizedProfit applies the modelled profit ratio to the amount actually
// traded, so a clamped trade earns proportionally less
func (p *PaperExecutor) realizedProfit(opp *types.Opportunity) decimal.Decimal {
	profit := opp.TradeAmount.Mul(opp.ProfitRatio).Truncate(18)

	if p.config.SlippageBps > 0 {
		haircut := opp.TradeAmount.
			Mul(decimal.NewFromInt(int64(p.config.SlippageBps))).
			Div(decimal.NewFromInt(10000))
		profit = profit.Sub(haircut)
	}
	return profit
}

func (p *PaperExecutor) countExpired() {
	p.mu.Lock()
	p.expired++
	p.mu.Unlock()
}

// GetMetrics returns execution metrics
func (p *PaperExecutor) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"executed":     p.executed,
		"expired":      p.expired,
		"total_profit": p.totalProfit.StringFixed(4),
		"total_cost":   p.totalCost.StringFixed(4),
	}
}
