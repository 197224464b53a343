package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/deeparb/execution"
	"github.com/web3guy0/deeparb/feeds"
	"github.com/web3guy0/deeparb/internal/config"
	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/strategy"
	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Market snapshot → Detectors → Ranker → Risk → Executor → Risk bookkeeping
//
// Evaluation and the pending record happen under one lock, so two candidates
// in the same cycle never see the same counters. Executions run in their own
// goroutines and report back through the same lock.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxExecutionSamples  = 100
	keptExecutionSamples = 50
)

// TradeRecorder persists trades and evaluated opportunities
type TradeRecorder interface {
	SaveTrade(ctx context.Context, entry types.TradeLog) error
	SaveOpportunity(ctx context.Context, opp *types.Opportunity, decision risk.Decision) error
}

// Notifier receives execution results and halts (Telegram)
type Notifier interface {
	NotifyTrade(opp *types.Opportunity, entry types.TradeLog)
	NotifyHalt(summary risk.Summary)
}

// QuoteCache is the external price cache
type QuoteCache interface {
	ClearCache()
}

// Observer receives engine measurements (Prometheus)
type Observer interface {
	ObserveScan(duration time.Duration, candidates, ranked int)
	ObserveDecision(kind types.OpportunityKind, approved bool)
	ObserveTrade(entry types.TradeLog)
	ObserveRisk(m risk.Metrics, halted bool)
}

// Engine runs the scan loop and owns the operator controls
type Engine struct {
	mu sync.RWMutex

	// Components
	cfg       *config.Config
	market    *feeds.MarketStore
	source    feeds.MarketSource // nil disables periodic refresh
	detectors []strategy.Detector
	risk      *risk.Engine
	executor  execution.Executor

	// Optional collaborators
	recorder TradeRecorder
	notifier Notifier
	observer Observer
	quotes   QuoteCache

	// evalMu serializes risk evaluation with the pending record
	evalMu sync.Mutex

	// State
	running  bool
	halted   atomic.Bool
	stopCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	inflight sync.WaitGroup

	// Stats
	startedAt        time.Time
	scans            int
	lastScan         time.Time
	totalTrades      int
	successfulTrades int
	totalProfit      decimal.Decimal
	totalGas         decimal.Decimal
	execTimes        []time.Duration

	now func() time.Time
}

// NewEngine creates the engine. source may be nil when the market store is
// fed some other way.
func NewEngine(
	cfg *config.Config,
	market *feeds.MarketStore,
	source feeds.MarketSource,
	detectors []strategy.Detector,
	riskEngine *risk.Engine,
	executor execution.Executor,
) *Engine {
	return &Engine{
		cfg:         cfg,
		market:      market,
		source:      source,
		detectors:   detectors,
		risk:        riskEngine,
		executor:    executor,
		totalProfit: decimal.Zero,
		totalGas:    decimal.Zero,
		now:         time.Now,
	}
}

// SetRecorder sets the persistence layer
func (e *Engine) SetRecorder(r TradeRecorder) { e.recorder = r }

// SetNotifier sets the callback for trade and halt notifications
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetObserver sets the metrics sink
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// SetQuoteCache sets the external quote cache cleared on resume
func (e *Engine) SetQuoteCache(c QuoteCache) { e.quotes = c }

// Start begins the engine loops
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.startedAt = e.now()
	e.mu.Unlock()

	e.runLoop(e.cfg.ScanInterval, func(ctx context.Context) { e.scanOnce(ctx) })
	if e.source != nil && e.cfg.RefreshInterval > 0 {
		e.runLoop(e.cfg.RefreshInterval, e.refresh)
	}
	if e.cfg.StatusInterval > 0 {
		e.runLoop(e.cfg.StatusInterval, func(context.Context) { e.logStatus() })
	}
	if e.cfg.RiskInterval > 0 {
		e.runLoop(e.cfg.RiskInterval, func(context.Context) { e.assessRisk() })
	}

	log.Info().
		Int("detectors", len(e.detectors)).
		Dur("scan_interval", e.cfg.ScanInterval).
		Int("top_n", e.cfg.TopN).
		Msg("⚡ Engine started")
}

// Stop stops the loops and waits for in-flight executions to be recorded
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.cancel()
	e.mu.Unlock()

	e.loops.Wait()
	e.inflight.Wait()

	log.Info().Msg("Engine stopped")
}

func (e *Engine) runLoop(interval time.Duration, fn func(ctx context.Context)) {
	e.loops.Add(1)
	go func() {
		defer e.loops.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C:
				fn(e.ctx)
			}
		}
	}()
}

func (e *Engine) refresh(ctx context.Context) {
	if err := e.market.Refresh(ctx, e.source); err != nil {
		log.Warn().Err(err).Msg("Market refresh failed, keeping previous snapshot")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SCAN CYCLE
// ═══════════════════════════════════════════════════════════════════════════════

// scanOnce runs one detection cycle and returns the number of hand-offs
func (e *Engine) scanOnce(ctx context.Context) int {
	if e.halted.Load() {
		return 0
	}
	if e.risk.ShouldEmergencyShutdown() {
		e.halt()
		return 0
	}

	started := e.now()
	candidates := e.detect(ctx)
	ranked := Rank(candidates, e.cfg.Model.MinProfitThreshold, e.cfg.TopN)

	e.mu.Lock()
	e.scans++
	e.lastScan = started
	e.mu.Unlock()

	if e.observer != nil {
		e.observer.ObserveScan(e.now().Sub(started), len(candidates), len(ranked))
	}

	dispatched := 0
	for _, opp := range ranked {
		if e.dispatch(opp) {
			dispatched++
		}
	}

	if len(ranked) > 0 {
		log.Info().
			Int("candidates", len(candidates)).
			Int("ranked", len(ranked)).
			Int("dispatched", dispatched).
			Msg("🔍 Scan complete")
	}
	return dispatched
}

// detect runs the enabled detectors in parallel against one market snapshot
func (e *Engine) detect(ctx context.Context) []*types.Opportunity {
	results := make([][]*types.Opportunity, len(e.detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		if !d.Enabled() {
			continue
		}
		i, d := i, d
		g.Go(func() error {
			opps, err := d.Scan(gctx, e.market)
			if err != nil {
				log.Debug().Err(err).Str("detector", d.Name()).Msg("Scan cut short")
			}
			results[i] = opps
			return nil
		})
	}
	_ = g.Wait()

	var merged []*types.Opportunity
	for _, opps := range results {
		merged = append(merged, opps...)
	}
	return merged
}

// dispatch evaluates one ranked candidate and hands it off when approved
func (e *Engine) dispatch(opp *types.Opportunity) bool {
	if opp.Expired(e.now()) {
		log.Debug().Str("opportunity", opp.ID).Msg("Opportunity expired before evaluation")
		return false
	}

	e.evalMu.Lock()
	decision := e.risk.Evaluate(opp)
	var tradeID string
	if decision.Approved {
		decision.Apply(opp)
		tradeID = uuid.NewString()
		e.risk.RecordTrade(types.TradeLog{
			ID:            tradeID,
			OpportunityID: opp.ID,
			Timestamp:     e.now(),
			Strategy:      string(opp.Kind),
			Status:        types.TradePending,
			Cost:          decimal.Zero,
		})
	}
	e.evalMu.Unlock()

	if e.observer != nil {
		e.observer.ObserveDecision(opp.Kind, decision.Approved)
	}
	if e.recorder != nil {
		if err := e.recorder.SaveOpportunity(e.ctxOrBackground(), opp, decision); err != nil {
			log.Warn().Err(err).Str("opportunity", opp.ID).Msg("Failed to persist opportunity")
		}
	}

	if !decision.Approved {
		return false
	}

	log.Info().
		Str("trade", tradeID).
		Str("kind", string(opp.Kind)).
		Str("route", opp.Route()).
		Str("amount", opp.TradeAmount.StringFixed(4)).
		Str("expected_profit", opp.ExpectedProfit.StringFixed(6)).
		Str("ratio", opp.ProfitRatio.StringFixed(6)).
		Float64("confidence", opp.Confidence).
		Msg("🎯 OPPORTUNITY APPROVED")

	e.inflight.Add(1)
	go e.execute(tradeID, opp)
	return true
}

// execute hands off to the executor and records the terminal state
func (e *Engine) execute(tradeID string, opp *types.Opportunity) {
	defer e.inflight.Done()

	deadline := opp.Deadline
	if deadline.IsZero() {
		deadline = e.now().Add(e.cfg.OpportunityTTL)
	}
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	result := e.executor.Execute(ctx, opp)
	entry := result.TradeLog(tradeID, opp, e.now())

	e.evalMu.Lock()
	e.risk.RecordTrade(entry)
	e.evalMu.Unlock()

	e.recordStats(entry)

	ev := log.Info()
	if entry.Status == types.TradeFailed {
		ev = log.Warn().Str("error", entry.Error)
	}
	profit := "0"
	if entry.Profit != nil {
		profit = entry.Profit.StringFixed(6)
	}
	ev.Str("trade", tradeID).
		Str("status", string(entry.Status)).
		Str("profit", profit).
		Str("cost", entry.Cost.StringFixed(6)).
		Dur("duration", entry.Duration).
		Msg("📊 Trade finished")

	if e.recorder != nil {
		if err := e.recorder.SaveTrade(context.Background(), entry); err != nil {
			log.Warn().Err(err).Str("trade", tradeID).Msg("Failed to persist trade")
		}
	}
	if e.observer != nil {
		e.observer.ObserveTrade(entry)
	}
	if e.notifier != nil {
		e.notifier.NotifyTrade(opp, entry)
	}
}

func (e *Engine) recordStats(entry types.TradeLog) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalTrades++
	e.totalGas = e.totalGas.Add(entry.Cost)
	if entry.Status == types.TradeSuccess {
		e.successfulTrades++
		if entry.Profit != nil {
			e.totalProfit = e.totalProfit.Add(*entry.Profit)
		}
	}

	e.execTimes = append(e.execTimes, entry.Duration)
	if len(e.execTimes) > maxExecutionSamples {
		e.execTimes = append([]time.Duration(nil), e.execTimes[len(e.execTimes)-keptExecutionSamples:]...)
	}
}

// halt stops new evaluations. In-flight executions still finish.
func (e *Engine) halt() {
	if !e.halted.CompareAndSwap(false, true) {
		return
	}

	summary := e.risk.Summary()
	log.Error().
		Str("daily_pnl", summary.DailyPnL.StringFixed(4)).
		Str("risk", string(summary.CurrentRisk)).
		Msg("🛑 EMERGENCY SHUTDOWN - new trades halted")

	if e.observer != nil {
		e.observer.ObserveRisk(e.risk.RiskMetrics(), true)
	}
	if e.notifier != nil {
		e.notifier.NotifyHalt(summary)
	}
}

func (e *Engine) ctxOrBackground() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

// ═══════════════════════════════════════════════════════════════════════════════
// PERIODIC REPORTS
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Engine) logStatus() {
	m := e.SystemMetrics()
	log.Info().
		Dur("uptime", m.Uptime.Round(time.Second)).
		Int("scans", m.Scans).
		Int("trades", m.TotalTrades).
		Int("successful", m.SuccessfulTrades).
		Str("profit", m.TotalProfit.StringFixed(4)).
		Str("gas", m.TotalGasCost.StringFixed(4)).
		Int("active", m.ActiveTrades).
		Bool("halted", m.Halted).
		Msg("📈 Status")
}

func (e *Engine) assessRisk() {
	e.risk.Tick()
	m := e.risk.RiskMetrics()
	summary := e.risk.Summary()

	ev := log.Info()
	if summary.CurrentRisk == types.RiskHigh {
		ev = log.Warn()
	}
	ev.Str("risk", string(m.CurrentRisk)).
		Str("exposure", m.TotalExposure.StringFixed(4)).
		Str("daily_pnl", m.DailyPnL.StringFixed(4)).
		Float64("win_rate", m.WinRate).
		Str("max_drawdown", m.MaxDrawdown.StringFixed(4)).
		Float64("sharpe", m.SharpeRatio).
		Strs("recommendations", summary.Recommendations).
		Msg("🛡️ Risk assessment")

	if e.observer != nil {
		e.observer.ObserveRisk(m, e.halted.Load())
	}
}
