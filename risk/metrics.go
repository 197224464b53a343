package risk

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS - read-only views over risk state
// ═══════════════════════════════════════════════════════════════════════════════
//
// None of these mutate state or trigger the daily reset, so calling them any
// number of times returns the same answer. ShouldEmergencyShutdown is the
// exception: it rolls the day over first so a new day starts from zero P&L.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	highUtilization   = decimal.NewFromFloat(0.8)
	mediumUtilization = decimal.NewFromFloat(0.5)
	half              = decimal.NewFromFloat(0.5)
)

const (
	shutdownWinRate       = 0.3
	lowWinRate            = 0.5
	lowWinRateMinLogs     = 10
	exposureWarnRatio     = 0.8
	dailyLossWarnRatio    = 0.7
	activeTradesWarnRatio = 0.8
)

// Metrics is a snapshot of the engine's risk state
type Metrics struct {
	TotalExposure decimal.Decimal
	DailyPnL      decimal.Decimal
	WinRate       float64
	MaxDrawdown   decimal.Decimal
	SharpeRatio   float64
	CurrentRisk   types.RiskLevel
	ActiveTrades  int
	TotalTrades   int
}

// Summary is the operator-facing view with recommendations
type Summary struct {
	CurrentRisk          types.RiskLevel
	DailyPnL             decimal.Decimal
	ActiveTrades         int
	ExposureUtilization  float64
	DailyLossUtilization float64
	Recommendations      []string
}

// DailyReturn is the summed profit of one UTC day
type DailyReturn struct {
	Date string // YYYY-MM-DD
	PnL  decimal.Decimal
}

// PerformanceHistory summarises recent days
type PerformanceHistory struct {
	DailyReturns     []DailyReturn
	CumulativeReturn decimal.Decimal
	Volatility       decimal.Decimal
	MaxDrawdown      decimal.Decimal
}

// RiskMetrics returns the current metrics
func (e *Engine) RiskMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics()
}

func (e *Engine) metrics() Metrics {
	return Metrics{
		TotalExposure: e.exposure,
		DailyPnL:      e.dailyPnL,
		WinRate:       e.winRate(),
		MaxDrawdown:   maxDrawdown(e.logs),
		SharpeRatio:   sharpeRatio(e.returns),
		CurrentRisk:   e.riskLevel(),
		ActiveTrades:  e.activeTrades,
		TotalTrades:   len(e.logs),
	}
}

func (e *Engine) winRate() float64 {
	if len(e.logs) == 0 {
		return 0
	}
	wins := 0
	for _, l := range e.logs {
		if l.Status == types.TradeSuccess {
			wins++
		}
	}
	return float64(wins) / float64(len(e.logs))
}

func (e *Engine) exposureUtilization() decimal.Decimal {
	if !e.limits.MaxPositionSize.IsPositive() {
		return decimal.Zero
	}
	return e.exposure.Div(e.limits.MaxPositionSize)
}

func (e *Engine) dailyLossUtilization() decimal.Decimal {
	if !e.dailyPnL.IsNegative() || !e.limits.MaxDailyLoss.IsPositive() {
		return decimal.Zero
	}
	return e.dailyPnL.Neg().Div(e.limits.MaxDailyLoss)
}

func (e *Engine) riskLevel() types.RiskLevel {
	exposure := e.exposureUtilization()
	loss := e.dailyLossUtilization()

	switch {
	case exposure.GreaterThan(highUtilization) || loss.GreaterThan(highUtilization):
		return types.RiskHigh
	case exposure.GreaterThan(mediumUtilization) || loss.GreaterThan(mediumUtilization):
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// maxDrawdown is the largest drop from a running peak over the profit
// sequence, in log order
func maxDrawdown(logs []types.TradeLog) decimal.Decimal {
	var running, peak, worst decimal.Decimal
	for _, l := range logs {
		if l.Profit == nil {
			continue
		}
		running = running.Add(*l.Profit)
		peak = decimal.Max(peak, running)
		worst = decimal.Max(worst, peak.Sub(running))
	}
	return worst
}

// sharpeRatio is mean over population stddev of the returns, with a zero
// risk-free rate. Fewer than two samples or zero variance give 0.
func sharpeRatio(returns []decimal.Decimal) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := meanStdDev(returns)
	if std == 0 {
		return 0
	}
	return mean.InexactFloat64() / std
}

func meanStdDev(values []decimal.Decimal) (decimal.Decimal, float64) {
	n := decimal.NewFromInt(int64(len(values)))
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	mean := sum.Div(n)

	sq := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean)
		sq = sq.Add(d.Mul(d))
	}
	variance := sq.Div(n).InexactFloat64()
	if variance <= 0 {
		return mean, 0
	}
	return mean, math.Sqrt(variance)
}

// ═══════════════════════════════════════════════════════════════════════════════
// EMERGENCY SHUTDOWN
// ═══════════════════════════════════════════════════════════════════════════════

// ShouldEmergencyShutdown reports whether trading must stop. Daily P&L is
// reset at UTC midnight before the conditions are checked.
func (e *Engine) ShouldEmergencyShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkDayReset()

	reasons := e.shutdownReasons()
	if len(reasons) == 0 {
		return false
	}

	log.Error().
		Strs("reasons", reasons).
		Str("daily_pnl", e.dailyPnL.StringFixed(4)).
		Msg("🚨 EMERGENCY SHUTDOWN CONDITIONS MET")
	return true
}

func (e *Engine) shutdownReasons() []string {
	m := e.metrics()
	var reasons []string

	if e.dailyPnL.LessThan(e.limits.MaxDailyLoss.Neg()) {
		reasons = append(reasons, "daily loss limit exceeded")
	}
	if m.CurrentRisk == types.RiskHigh && e.dailyPnL.IsNegative() {
		reasons = append(reasons, "high risk while losing")
	}
	if m.WinRate < shutdownWinRate && e.dailyPnL.LessThan(e.params.EmergencyLossFloor.Neg()) {
		reasons = append(reasons, "low win rate with significant losses")
	}
	if m.MaxDrawdown.GreaterThan(e.limits.MaxDailyLoss.Mul(half)) {
		reasons = append(reasons, "drawdown above half the daily loss limit")
	}
	return reasons
}

// ═══════════════════════════════════════════════════════════════════════════════
// MONITORING
// ═══════════════════════════════════════════════════════════════════════════════

// Summary returns the risk level, utilisations and recommendations
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	exposure := e.exposureUtilization().InexactFloat64()
	loss := e.dailyLossUtilization().InexactFloat64()

	var recs []string
	if exposure > exposureWarnRatio {
		recs = append(recs, "High exposure - consider reducing position sizes")
	}
	if loss > dailyLossWarnRatio {
		recs = append(recs, "Approaching daily loss limit - be cautious")
	}
	if float64(e.activeTrades) >= float64(e.limits.MaxConcurrentTrades)*activeTradesWarnRatio {
		recs = append(recs, "High number of active trades - monitor closely")
	}
	if e.winRate() < lowWinRate && len(e.logs) > lowWinRateMinLogs {
		recs = append(recs, "Low win rate - review strategy parameters")
	}

	return Summary{
		CurrentRisk:          e.riskLevel(),
		DailyPnL:             e.dailyPnL,
		ActiveTrades:         e.activeTrades,
		ExposureUtilization:  exposure,
		DailyLossUtilization: loss,
		Recommendations:      recs,
	}
}

// PerformanceHistory groups logged profit by UTC day over the last days days
func (e *Engine) PerformanceHistory(days int) PerformanceHistory {
	e.mu.Lock()
	defer e.mu.Unlock()

	if days <= 0 {
		days = 7
	}
	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)

	byDay := make(map[string]decimal.Decimal)
	for _, l := range e.logs {
		if !l.Timestamp.After(cutoff) {
			continue
		}
		date := l.Timestamp.UTC().Format("2006-01-02")
		pnl := byDay[date]
		if l.Profit != nil {
			pnl = pnl.Add(*l.Profit)
		}
		byDay[date] = pnl
	}

	history := PerformanceHistory{
		CumulativeReturn: decimal.Zero,
		Volatility:       decimal.Zero,
		MaxDrawdown:      maxDrawdown(e.logs),
	}
	returns := make([]decimal.Decimal, 0, len(byDay))
	for date, pnl := range byDay {
		history.DailyReturns = append(history.DailyReturns, DailyReturn{Date: date, PnL: pnl})
	}
	sort.Slice(history.DailyReturns, func(i, j int) bool {
		return history.DailyReturns[i].Date < history.DailyReturns[j].Date
	})
	for _, d := range history.DailyReturns {
		history.CumulativeReturn = history.CumulativeReturn.Add(d.PnL)
		returns = append(returns, d.PnL)
	}
	if len(returns) >= 2 {
		_, std := meanStdDev(returns)
		history.Volatility = decimal.NewFromFloat(std)
	}

	return history
}
