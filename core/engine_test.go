package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/deeparb/execution"
	"github.com/web3guy0/deeparb/feeds"
	"github.com/web3guy0/deeparb/internal/config"
	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/strategy"
	"github.com/web3guy0/deeparb/types"
)

type fakeDetector struct {
	name    string
	enabled bool
	opps    func() []*types.Opportunity
	calls   int
}

func (d *fakeDetector) Name() string            { return d.name }
func (d *fakeDetector) Enabled() bool           { return d.enabled }
func (d *fakeDetector) SetEnabled(enabled bool) { d.enabled = enabled }

func (d *fakeDetector) Scan(ctx context.Context, _ strategy.PriceSource) ([]*types.Opportunity, error) {
	d.calls++
	return d.opps(), nil
}

type fakeRecorder struct {
	mu            sync.Mutex
	trades        []types.TradeLog
	opportunities []risk.Decision
}

func (r *fakeRecorder) SaveTrade(_ context.Context, entry types.TradeLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, entry)
	return nil
}

func (r *fakeRecorder) SaveOpportunity(_ context.Context, _ *types.Opportunity, d risk.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opportunities = append(r.opportunities, d)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	trades []types.TradeLog
	halts  int
}

func (n *fakeNotifier) NotifyTrade(_ *types.Opportunity, entry types.TradeLog) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, entry)
}

func (n *fakeNotifier) NotifyHalt(risk.Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.halts++
}

type fakeObserver struct {
	mu        sync.Mutex
	scans     int
	approved  int
	rejected  int
	trades    int
	haltedObs bool
}

func (o *fakeObserver) ObserveScan(time.Duration, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scans++
}

func (o *fakeObserver) ObserveDecision(_ types.OpportunityKind, approved bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if approved {
		o.approved++
	} else {
		o.rejected++
	}
}

func (o *fakeObserver) ObserveTrade(types.TradeLog) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trades++
}

func (o *fakeObserver) ObserveRisk(_ risk.Metrics, halted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.haltedObs = halted
}

type fakeQuoteCache struct{ cleared int }

func (c *fakeQuoteCache) ClearCache() { c.cleared++ }

func triangularOpp(id string, ratio string) *types.Opportunity {
	now := time.Now()
	return &types.Opportunity{
		ID:             id,
		Kind:           types.KindTriangular,
		TradeAmount:    decimal.NewFromInt(10),
		ExpectedProfit: decimal.NewFromInt(1),
		ProfitRatio:    decimal.RequireFromString(ratio),
		GasEstimate:    decimal.RequireFromString("0.11"),
		Confidence:     0.9,
		CreatedAt:      now,
		Deadline:       now.Add(time.Minute),
		Triangular:     &types.TriangularLeg{Assets: [3]string{"SUI", "USDC", "DEEP"}},
	}
}

type harness struct {
	engine   *Engine
	risk     *risk.Engine
	detector *fakeDetector
	recorder *fakeRecorder
	notifier *fakeNotifier
	observer *fakeObserver
}

func newHarness(t *testing.T, opps func() []*types.Opportunity) *harness {
	t.Helper()
	cfg := config.Default()
	h := &harness{
		risk:     risk.NewEngine(cfg.Risk),
		detector: &fakeDetector{name: strategy.NameTriangular, enabled: true, opps: opps},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		observer: &fakeObserver{},
	}
	executor := execution.NewPaperExecutor(execution.PaperConfig{})
	h.engine = NewEngine(cfg, feeds.NewMarketStore(), nil, []strategy.Detector{h.detector}, h.risk, executor)
	h.engine.SetRecorder(h.recorder)
	h.engine.SetNotifier(h.notifier)
	h.engine.SetObserver(h.observer)
	return h
}

func TestScanOnce_ApprovedTradeIsRecorded(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity {
		return []*types.Opportunity{triangularOpp("opp-1", "0.1")}
	})

	dispatched := h.engine.scanOnce(context.Background())
	h.engine.inflight.Wait()

	assert.Equal(t, 1, dispatched)

	m := h.engine.SystemMetrics()
	assert.Equal(t, 1, m.Scans)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.SuccessfulTrades)
	assert.True(t, m.TotalProfit.IsPositive())
	assert.True(t, m.TotalGasCost.Equal(decimal.RequireFromString("0.11")))
	assert.Zero(t, m.ActiveTrades)

	logs := h.risk.TradeLogs()
	require.Len(t, logs, 1, "terminal record replaces the pending one")
	assert.Equal(t, types.TradeSuccess, logs[0].Status)
	assert.Equal(t, "opp-1", logs[0].OpportunityID)

	require.Len(t, h.recorder.opportunities, 1)
	assert.True(t, h.recorder.opportunities[0].Approved)
	require.Len(t, h.recorder.trades, 1)
	assert.Equal(t, logs[0].ID, h.recorder.trades[0].ID)

	assert.Len(t, h.notifier.trades, 1)
	assert.Equal(t, 1, h.observer.scans)
	assert.Equal(t, 1, h.observer.approved)
	assert.Equal(t, 1, h.observer.trades)
}

func TestScanOnce_RejectedAndExpired(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity {
		expired := triangularOpp("stale", "0.2")
		expired.Deadline = time.Now().Add(-time.Second)
		return []*types.Opportunity{
			triangularOpp("thin-edge", "0.01"),
			expired,
		}
	})

	dispatched := h.engine.scanOnce(context.Background())
	h.engine.inflight.Wait()

	assert.Zero(t, dispatched)
	assert.Empty(t, h.risk.TradeLogs())
	require.Len(t, h.recorder.opportunities, 1, "expired candidates are not evaluated")
	assert.False(t, h.recorder.opportunities[0].Approved)
	assert.Contains(t, h.recorder.opportunities[0].Reason, "below required threshold")
	assert.Equal(t, 1, h.observer.rejected)
}

func TestScanOnce_DisabledDetectorSkipped(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity {
		return []*types.Opportunity{triangularOpp("opp-1", "0.1")}
	})
	require.NoError(t, h.engine.SetStrategyEnabled(strategy.NameTriangular, false))

	assert.Zero(t, h.engine.scanOnce(context.Background()))
	assert.Zero(t, h.detector.calls)
	assert.Equal(t, map[string]bool{strategy.NameTriangular: false}, h.engine.Strategies())

	assert.Error(t, h.engine.SetStrategyEnabled("momentum", true))
}

func TestScanOnce_EmergencyShutdownHalts(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity {
		return []*types.Opportunity{triangularOpp("opp-1", "0.1")}
	})

	loss := decimal.NewFromInt(-150)
	h.risk.RecordTrade(types.TradeLog{ID: "t0", Timestamp: time.Now(), Strategy: "triangular", Status: types.TradePending})
	h.risk.RecordTrade(types.TradeLog{ID: "t0", Timestamp: time.Now(), Strategy: "triangular", Status: types.TradeFailed, Profit: &loss})

	assert.Zero(t, h.engine.scanOnce(context.Background()))
	assert.True(t, h.engine.Halted())
	assert.Zero(t, h.detector.calls)
	assert.Equal(t, 1, h.notifier.halts)
	assert.True(t, h.observer.haltedObs)

	// a halted engine stays quiet
	assert.Zero(t, h.engine.scanOnce(context.Background()))
	assert.Equal(t, 1, h.notifier.halts)

	quotes := &fakeQuoteCache{}
	h.engine.SetQuoteCache(quotes)
	h.engine.Resume()
	assert.False(t, h.engine.Halted())
	assert.Equal(t, 1, quotes.cleared, "resume drops cached quotes")
	h.engine.Resume()
	assert.Equal(t, 1, quotes.cleared, "resume on a running engine is a no-op")

	assert.Zero(t, h.engine.scanOnce(context.Background()), "conditions still hold")
	assert.True(t, h.engine.Halted())
}

func TestSystemMetrics_SnapshotAge(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity { return nil })
	assert.Zero(t, h.engine.SystemMetrics().SnapshotAge, "no snapshot yet")

	h.engine.market.Replace(nil, nil)
	h.engine.now = func() time.Time { return time.Now().Add(time.Minute) }

	age := h.engine.SystemMetrics().SnapshotAge
	assert.GreaterOrEqual(t, age, time.Minute)
	assert.Less(t, age, 2*time.Minute)
}

func TestUpdateRiskLimits(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity { return nil })
	pos := decimal.NewFromInt(25)
	neg := decimal.NewFromInt(-1)
	zero := 0

	limits, err := h.engine.UpdateRiskLimits(types.RiskLimitsUpdate{MaxPositionSize: &pos})
	require.NoError(t, err)
	assert.True(t, limits.MaxPositionSize.Equal(pos))
	assert.True(t, h.engine.RiskLimits().MaxPositionSize.Equal(pos))

	_, err = h.engine.UpdateRiskLimits(types.RiskLimitsUpdate{MaxDailyLoss: &neg})
	assert.Error(t, err)
	_, err = h.engine.UpdateRiskLimits(types.RiskLimitsUpdate{MaxSlippage: &neg})
	assert.Error(t, err)
	_, err = h.engine.UpdateRiskLimits(types.RiskLimitsUpdate{MaxConcurrentTrades: &zero})
	assert.Error(t, err)

	assert.True(t, h.engine.RiskLimits().MaxDailyLoss.Equal(decimal.NewFromInt(100)), "rejected update leaves limits unchanged")
	assert.Equal(t, 3, h.engine.RiskLimits().MaxConcurrentTrades)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity { return nil })
	h.engine.cfg.ScanInterval = 5 * time.Millisecond

	h.engine.Start()
	h.engine.Start()
	require.Eventually(t, func() bool {
		return h.engine.SystemMetrics().Scans > 0
	}, time.Second, 5*time.Millisecond)
	h.engine.Stop()
	h.engine.Stop()

	m := h.engine.SystemMetrics()
	assert.Positive(t, m.Uptime)
	assert.Positive(t, m.Goroutines)
	assert.False(t, m.Halted)
}

func TestRecordStatsTrimsSamples(t *testing.T) {
	h := newHarness(t, func() []*types.Opportunity { return nil })

	for i := 0; i < maxExecutionSamples+1; i++ {
		h.engine.recordStats(types.TradeLog{Status: types.TradeFailed, Cost: decimal.Zero, Duration: time.Millisecond})
	}

	assert.Len(t, h.engine.execTimes, keptExecutionSamples)
	m := h.engine.SystemMetrics()
	assert.Equal(t, maxExecutionSamples+1, m.TotalTrades)
	assert.Zero(t, m.SuccessfulTrades)
	assert.Equal(t, time.Millisecond, m.AvgExecutionTime)
}
