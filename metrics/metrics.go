package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/types"
)

// Recorder holds the engine collectors on its own registry
type Recorder struct {
	registry *prometheus.Registry

	scans        prometheus.Counter
	scanDuration prometheus.Histogram
	candidates   prometheus.Counter
	ranked       prometheus.Counter
	decisions    *prometheus.CounterVec
	trades       *prometheus.CounterVec
	profit       prometheus.Counter
	gas          prometheus.Counter
	execLatency  prometheus.Histogram

	exposure     prometheus.Gauge
	dailyPnL     prometheus.Gauge
	activeTrades prometheus.Gauge
	winRate      prometheus.Gauge
	drawdown     prometheus.Gauge
	riskLevel    *prometheus.GaugeVec
	halted       prometheus.Gauge
}

// NewRecorder creates and registers every collector
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeparb_scans_total",
			Help: "Completed scan cycles",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deeparb_scan_duration_seconds",
			Help:    "Time spent detecting and ranking per cycle",
			Buckets: prometheus.DefBuckets,
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeparb_candidates_total",
			Help: "Opportunities produced by detectors",
		}),
		ranked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeparb_ranked_total",
			Help: "Opportunities that passed the gas filter and top-N cut",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deeparb_risk_decisions_total",
			Help: "Risk decisions by opportunity kind and outcome",
		}, []string{"kind", "outcome"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deeparb_trades_total",
			Help: "Finished trades by strategy and status",
		}, []string{"strategy", "status"}),
		profit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeparb_realized_profit_total",
			Help: "Realized profit of successful trades, quote units",
		}),
		gas: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deeparb_gas_cost_total",
			Help: "Gas paid by finished trades",
		}),
		execLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deeparb_execution_duration_seconds",
			Help:    "Hand-off to result latency",
			Buckets: prometheus.DefBuckets,
		}),

		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeparb_risk_exposure",
			Help: "Current booked exposure",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeparb_risk_daily_pnl",
			Help: "Net P&L since the last UTC midnight",
		}),
		activeTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeparb_risk_active_trades",
			Help: "Trades handed off and not yet finished",
		}),
		winRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeparb_risk_win_rate",
			Help: "Share of logged trades with positive profit",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeparb_risk_max_drawdown",
			Help: "Peak-to-trough of cumulative logged profit",
		}),
		riskLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "deeparb_risk_level",
			Help: "1 for the current risk level, 0 otherwise",
		}, []string{"level"}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeparb_halted",
			Help: "1 while an emergency shutdown is in force",
		}),
	}

	r.registry.MustRegister(
		r.scans, r.scanDuration, r.candidates, r.ranked,
		r.decisions, r.trades, r.profit, r.gas, r.execLatency,
		r.exposure, r.dailyPnL, r.activeTrades, r.winRate, r.drawdown, r.riskLevel, r.halted,
	)
	return r
}

// Registry returns the registry the collectors live on
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveScan records one scan cycle
func (r *Recorder) ObserveScan(duration time.Duration, candidates, ranked int) {
	r.scans.Inc()
	r.scanDuration.Observe(duration.Seconds())
	r.candidates.Add(float64(candidates))
	r.ranked.Add(float64(ranked))
}

// ObserveDecision records one risk decision
func (r *Recorder) ObserveDecision(kind types.OpportunityKind, approved bool) {
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	r.decisions.WithLabelValues(string(kind), outcome).Inc()
}

// ObserveTrade records a finished trade
func (r *Recorder) ObserveTrade(entry types.TradeLog) {
	r.trades.WithLabelValues(entry.Strategy, string(entry.Status)).Inc()
	r.execLatency.Observe(entry.Duration.Seconds())
	r.gas.Add(entry.Cost.InexactFloat64())
	if entry.Status == types.TradeSuccess && entry.Profit != nil && entry.Profit.IsPositive() {
		r.profit.Add(entry.Profit.InexactFloat64())
	}
}

// ObserveRisk publishes the risk engine state
func (r *Recorder) ObserveRisk(m risk.Metrics, halted bool) {
	r.exposure.Set(m.TotalExposure.InexactFloat64())
	r.dailyPnL.Set(m.DailyPnL.InexactFloat64())
	r.activeTrades.Set(float64(m.ActiveTrades))
	r.winRate.Set(m.WinRate)
	r.drawdown.Set(m.MaxDrawdown.InexactFloat64())

	for _, level := range []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh} {
		v := 0.0
		if level == m.CurrentRisk {
			v = 1
		}
		r.riskLevel.WithLabelValues(string(level)).Set(v)
	}

	if halted {
		r.halted.Set(1)
	} else {
		r.halted.Set(0)
	}
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
// An empty addr disables the server.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) {
	if addr == "" {
		log.Info().Msg("Metrics disabled: empty addr")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("📊 Metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown error")
		} else {
			log.Info().Msg("Metrics server stopped")
		}
	}()
}
