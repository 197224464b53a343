package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/internal/config"
	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK ENGINE - Central approval system
// ═══════════════════════════════════════════════════════════════════════════════
//
// Detector finds → Risk approves/clamps/rejects → Executor executes
//
// All state lives behind one mutex. An evaluation holds it from the first
// check to the last, so limits and counters cannot change mid-evaluation.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxReturnHistory  = 1000
	keptReturnHistory = 500
)

// Engine is the stateful risk gate
type Engine struct {
	mu sync.Mutex

	params config.RiskConfig
	limits types.RiskLimits

	// State
	exposure     decimal.Decimal
	dailyPnL     decimal.Decimal
	activeTrades int
	returns      []decimal.Decimal
	logs         []types.TradeLog
	logIndex     map[string]int // trade ID -> position in logs
	nextReset    time.Time

	now func() time.Time
}

// NewEngine creates the risk engine
func NewEngine(params config.RiskConfig) *Engine {
	return newEngine(params, time.Now)
}

func newEngine(params config.RiskConfig, now func() time.Time) *Engine {
	e := &Engine{
		params:   params,
		limits:   params.Limits,
		exposure: decimal.Zero,
		dailyPnL: decimal.Zero,
		logIndex: make(map[string]int),
		now:      now,
	}
	e.nextReset = nextUTCMidnight(now())

	log.Info().
		Str("max_position", e.limits.MaxPositionSize.String()).
		Str("max_daily_loss", e.limits.MaxDailyLoss.String()).
		Str("max_slippage", e.limits.MaxSlippage.String()).
		Int("max_concurrent", e.limits.MaxConcurrentTrades).
		Msg("🛡️ Risk engine initialized")

	return e
}

// ═══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ═══════════════════════════════════════════════════════════════════════════════

// Evaluate checks an opportunity against the limits. Checks run in a fixed
// order, clamps accumulate and the first rejection wins.
func (e *Engine) Evaluate(opp *types.Opportunity) (decision Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			id := ""
			if opp != nil {
				id = opp.ID
			}
			log.Error().
				Str("opportunity", id).
				Interface("panic", r).
				Msg("Risk evaluation failed")
			decision = reject("risk evaluation error")
		}
	}()

	e.checkDayReset()
	decision = e.evaluate(opp)

	if decision.Approved {
		amount := opp.TradeAmount
		if decision.AdjustedAmount != nil {
			amount = *decision.AdjustedAmount
		}
		log.Debug().
			Str("opportunity", opp.ID).
			Str("amount", amount.StringFixed(4)).
			Bool("clamped", decision.AdjustedAmount != nil).
			Msg("✅ Opportunity approved")
	} else {
		log.Debug().
			Str("opportunity", opp.ID).
			Str("reason", decision.Reason).
			Msg("🚫 Opportunity rejected")
	}
	return decision
}

func (e *Engine) evaluate(opp *types.Opportunity) Decision {
	limits := e.limits
	amount := opp.TradeAmount
	clamped := false

	// 1. Concurrency
	if e.activeTrades >= limits.MaxConcurrentTrades {
		return reject("maximum concurrent trades limit reached")
	}

	// 2. Daily loss
	if e.dailyPnL.LessThan(limits.MaxDailyLoss.Neg()) {
		return reject("daily loss limit exceeded")
	}

	// 3. Position size
	if amount.GreaterThan(limits.MaxPositionSize) {
		log.Debug().
			Str("opportunity", opp.ID).
			Str("original", amount.StringFixed(4)).
			Str("adjusted", limits.MaxPositionSize.StringFixed(4)).
			Msg("📉 Size reduced to max position limit")
		amount = limits.MaxPositionSize
		clamped = true
	}

	// 4. Edge must beat slippage tolerance plus the gas buffer
	required := limits.MaxSlippage.Add(e.params.GasBuffer)
	if opp.ProfitRatio.LessThan(required) {
		return reject(fmt.Sprintf("profit %s%% below required threshold %s%%",
			opp.ProfitRatio.Mul(decimal.NewFromInt(100)).StringFixed(2),
			required.Mul(decimal.NewFromInt(100)).StringFixed(2)))
	}

	// 5. Aggregate exposure
	maxExposure := e.maxExposure()
	if e.exposure.Add(amount).GreaterThan(maxExposure) {
		headroom := maxExposure.Sub(e.exposure)
		if !headroom.IsPositive() {
			return reject("maximum exposure limit reached")
		}
		amount = headroom
		clamped = true
	}

	// 6. Kelly sizing
	if sized := e.kellySize(opp); sized.LessThan(amount) {
		amount = sized
		clamped = true
	}

	if clamped {
		return Decision{Approved: true, AdjustedAmount: &amount}
	}
	return Decision{Approved: true}
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE RECORDING
// ═══════════════════════════════════════════════════════════════════════════════

// RecordTrade applies a trade lifecycle transition. A pending record opens
// the trade; a terminal record with the same ID closes it and replaces the
// pending entry in the log.
func (e *Engine) RecordTrade(entry types.TradeLog) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkDayReset()

	if entry.Status == types.TradePending {
		if _, seen := e.logIndex[entry.ID]; seen {
			log.Warn().Str("trade", entry.ID).Msg("Duplicate pending record ignored")
			return
		}
		e.appendLog(entry)
		e.activeTrades++
		e.exposure = e.exposure.Add(e.params.ExposurePerTrade)
	} else {
		if i, seen := e.logIndex[entry.ID]; seen {
			e.logs[i] = entry
		} else {
			e.appendLog(entry)
		}

		if e.activeTrades > 0 {
			e.activeTrades--
		}
		e.exposure = decimal.Max(decimal.Zero, e.exposure.Sub(e.params.ExposurePerTrade))

		if entry.Profit != nil {
			net := entry.Profit.Sub(entry.Cost)
			e.dailyPnL = e.dailyPnL.Add(net)
			e.returns = append(e.returns, net)
			if len(e.returns) > maxReturnHistory {
				e.returns = append([]decimal.Decimal(nil), e.returns[len(e.returns)-keptReturnHistory:]...)
			}
		}
	}

	ev := log.Debug().
		Str("trade", entry.ID).
		Str("status", string(entry.Status)).
		Str("daily_pnl", e.dailyPnL.StringFixed(4)).
		Int("active", e.activeTrades)
	if entry.Profit != nil {
		ev = ev.Str("profit", entry.Profit.StringFixed(4))
	}
	ev.Msg("📝 Trade recorded")
}

func (e *Engine) appendLog(entry types.TradeLog) {
	e.logIndex[entry.ID] = len(e.logs)
	e.logs = append(e.logs, entry)
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATE MANAGEMENT
// ═══════════════════════════════════════════════════════════════════════════════

// checkDayReset zeroes daily P&L at UTC midnight and prunes old trade logs.
// Caller must hold e.mu.
func (e *Engine) checkDayReset() {
	now := e.now()
	if now.Before(e.nextReset) {
		return
	}

	e.dailyPnL = decimal.Zero

	cutoff := now.Add(-e.params.LogRetention)
	kept := e.logs[:0]
	for _, l := range e.logs {
		if l.Timestamp.After(cutoff) {
			kept = append(kept, l)
		}
	}
	pruned := len(e.logs) - len(kept)
	e.logs = kept
	e.logIndex = make(map[string]int, len(e.logs))
	for i, l := range e.logs {
		e.logIndex[l.ID] = i
	}

	e.nextReset = nextUTCMidnight(now)

	log.Info().
		Int("pruned_logs", pruned).
		Time("next_reset", e.nextReset).
		Msg("📅 Daily risk stats reset")
}

// Tick applies the UTC-midnight reset if it is due
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkDayReset()
}

// UpdateLimits applies a partial limits update
func (e *Engine) UpdateLimits(update types.RiskLimitsUpdate) types.RiskLimits {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.limits = update.Apply(e.limits)

	log.Info().
		Str("max_position", e.limits.MaxPositionSize.String()).
		Str("max_daily_loss", e.limits.MaxDailyLoss.String()).
		Str("max_slippage", e.limits.MaxSlippage.String()).
		Str("stop_loss", e.limits.StopLossRatio.String()).
		Int("max_concurrent", e.limits.MaxConcurrentTrades).
		Msg("🛡️ Risk limits updated")

	return e.limits
}

// Limits returns the current limits
func (e *Engine) Limits() types.RiskLimits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

// ActiveTrades returns the number of trades awaiting a result
func (e *Engine) ActiveTrades() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeTrades
}

// TradeLogs returns a copy of the trade log in record order
func (e *Engine) TradeLogs() []types.TradeLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.TradeLog(nil), e.logs...)
}
