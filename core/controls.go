package core

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// OPERATOR CONTROLS
// ═══════════════════════════════════════════════════════════════════════════════

// SystemMetrics is the engine-level view for operators
type SystemMetrics struct {
	Uptime           time.Duration
	Scans            int
	LastScan         time.Time
	TotalTrades      int
	SuccessfulTrades int
	TotalProfit      decimal.Decimal
	TotalGasCost     decimal.Decimal
	AvgExecutionTime time.Duration
	ActiveTrades     int
	Halted           bool
	SnapshotAge      time.Duration // zero until the first market snapshot
	HeapAlloc        uint64
	Goroutines       int
}

// SetStrategyEnabled toggles a detector by name
func (e *Engine) SetStrategyEnabled(name string, enabled bool) error {
	for _, d := range e.detectors {
		if d.Name() == name {
			d.SetEnabled(enabled)
			log.Info().Str("strategy", name).Bool("enabled", enabled).Msg("Strategy toggled")
			return nil
		}
	}
	return fmt.Errorf("unknown strategy %q", name)
}

// Strategies returns each detector's enabled flag
func (e *Engine) Strategies() map[string]bool {
	out := make(map[string]bool, len(e.detectors))
	for _, d := range e.detectors {
		out[d.Name()] = d.Enabled()
	}
	return out
}

// UpdateRiskLimits applies a partial update. Non-positive values are rejected
// and leave every limit unchanged.
func (e *Engine) UpdateRiskLimits(update types.RiskLimitsUpdate) (types.RiskLimits, error) {
	next := update.Apply(e.risk.Limits())
	if !next.MaxPositionSize.IsPositive() || !next.MaxDailyLoss.IsPositive() {
		return e.risk.Limits(), fmt.Errorf("max position size and max daily loss must be positive")
	}
	if next.MaxSlippage.IsNegative() || next.StopLossRatio.IsNegative() {
		return e.risk.Limits(), fmt.Errorf("slippage and stop loss must not be negative")
	}
	if next.MaxConcurrentTrades <= 0 {
		return e.risk.Limits(), fmt.Errorf("max concurrent trades must be positive")
	}
	return e.risk.UpdateLimits(update), nil
}

// RiskLimits returns the limits in force
func (e *Engine) RiskLimits() types.RiskLimits { return e.risk.Limits() }

// RiskSummary returns the risk level, utilisations and recommendations
func (e *Engine) RiskSummary() risk.Summary { return e.risk.Summary() }

// RiskMetrics returns the risk engine metrics
func (e *Engine) RiskMetrics() risk.Metrics { return e.risk.RiskMetrics() }

// PerformanceHistory returns per-day results over the last days days
func (e *Engine) PerformanceHistory(days int) risk.PerformanceHistory {
	return e.risk.PerformanceHistory(days)
}

// Halted reports whether an emergency shutdown stopped new trades
func (e *Engine) Halted() bool { return e.halted.Load() }

// Resume clears an emergency halt. The next scan halts again if the
// shutdown conditions still hold. Cached external quotes are dropped so the
// first scan after a halt prices against fresh data.
func (e *Engine) Resume() {
	if e.halted.CompareAndSwap(true, false) {
		if e.quotes != nil {
			e.quotes.ClearCache()
		}
		log.Warn().Msg("▶️ Trading resumed by operator")
	}
}

// SystemMetrics returns uptime, trade totals and process stats
func (e *Engine) SystemMetrics() SystemMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	e.mu.RLock()
	defer e.mu.RUnlock()

	m := SystemMetrics{
		Scans:            e.scans,
		LastScan:         e.lastScan,
		TotalTrades:      e.totalTrades,
		SuccessfulTrades: e.successfulTrades,
		TotalProfit:      e.totalProfit,
		TotalGasCost:     e.totalGas,
		ActiveTrades:     e.risk.ActiveTrades(),
		Halted:           e.halted.Load(),
		HeapAlloc:        mem.HeapAlloc,
		Goroutines:       runtime.NumGoroutine(),
	}
	if !e.startedAt.IsZero() {
		m.Uptime = e.now().Sub(e.startedAt)
	}
	if at := e.market.UpdatedAt(); !at.IsZero() {
		m.SnapshotAge = e.now().Sub(at)
	}
	if len(e.execTimes) > 0 {
		var total time.Duration
		for _, d := range e.execTimes {
			total += d
		}
		m.AvgExecutionTime = total / time.Duration(len(e.execTimes))
	}
	return m
}
