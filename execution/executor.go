package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION HAND-OFF - boundary to the settlement layer
// ═══════════════════════════════════════════════════════════════════════════════
//
// Engine → Risk → Executor → settlement
//                    ↓
//                  Result → Risk bookkeeping
//
// An executor receives an approved, possibly resized opportunity and reports
// what happened. Building and signing the settlement transaction is the
// executor's business; the engine only sees the Result.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrExpired is reported when an opportunity's deadline passed before it
// could be handed off
var ErrExpired = errors.New("opportunity expired")

// Result is the outcome of one execution
type Result struct {
	Success        bool
	RealizedProfit *decimal.Decimal // nil when nothing was realized
	Cost           decimal.Decimal
	Error          error
	Duration       time.Duration
}

// Executor hands approved opportunities to a settlement layer.
// ctx carries the opportunity's deadline; implementations treat it as advisory
// but must return once ctx is done.
type Executor interface {
	Execute(ctx context.Context, opp *types.Opportunity) Result
}

// Failed builds a failure result
func Failed(err error, started time.Time) Result {
	return Result{
		Success:  false,
		Cost:     decimal.Zero,
		Error:    err,
		Duration: time.Since(started),
	}
}

// TradeLog converts a result into the terminal trade log entry for tradeID
func (r Result) TradeLog(tradeID string, opp *types.Opportunity, at time.Time) types.TradeLog {
	entry := types.TradeLog{
		ID:            tradeID,
		OpportunityID: opp.ID,
		Timestamp:     at,
		Strategy:      string(opp.Kind),
		Status:        types.TradeFailed,
		Cost:          r.Cost,
		Duration:      r.Duration,
	}
	if r.Success {
		entry.Status = types.TradeSuccess
		entry.Profit = r.RealizedProfit
	}
	if r.Error != nil {
		entry.Error = r.Error.Error()
	}
	return entry
}
