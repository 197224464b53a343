package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/deeparb/bot"
	"github.com/web3guy0/deeparb/core"
	"github.com/web3guy0/deeparb/execution"
	"github.com/web3guy0/deeparb/feeds"
	"github.com/web3guy0/deeparb/internal/config"
	"github.com/web3guy0/deeparb/metrics"
	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/storage"
	"github.com/web3guy0/deeparb/strategy"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("         DEEPARB - OPPORTUNITY DETECTION & RISK ENGINE")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Storage
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, continuing without persistence")
	} else {
		if n, err := db.PruneBefore(ctx, time.Now().Add(-cfg.Risk.LogRetention)); err != nil {
			log.Warn().Err(err).Msg("Failed to prune old records")
		} else if n > 0 {
			log.Info().Int64("rows", n).Msg("Pruned old records")
		}
		log.Info().Msg("✅ Storage layer initialized")
	}

	// 2. Reference market snapshot
	market := feeds.NewMarketStore()
	indexer := feeds.NewIndexerClient(cfg.IndexerURL)
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	err = market.Refresh(loadCtx, indexer)
	loadCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load initial market snapshot")
	}
	log.Info().Int("instruments", len(market.Instruments())).Msg("✅ Market snapshot loaded")

	// 3. Registry
	specs, err := core.ParsePairSpecs(cfg.CrossVenuePairs)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid CROSS_VENUE_PAIRS")
	}
	registry := core.NewRegistry(market, cfg.TriangularAnchors, specs)

	// 4. External prices: stream first, REST and Coinbase as fallbacks
	symbols := make([]string, 0, len(registry.Pairs()))
	for _, p := range registry.Pairs() {
		symbols = append(symbols, p.ExternalSymbol)
	}
	stream := feeds.NewBinanceStream(cfg.BinanceWSURL, symbols)
	stream.Start()
	external := feeds.NewExternalFeed(feeds.DefaultCacheTTL,
		stream,
		feeds.NewBinanceREST(cfg.BinanceRESTURL),
		feeds.NewCoinbaseRates(cfg.CoinbaseURL),
	)
	log.Info().Msg("✅ External price feed initialized")

	// 5. Detectors
	triangular := strategy.NewTriangularDetector(cfg.Model, registry.Paths(), cfg.OpportunityTTL)
	triangular.SetEnabled(cfg.TriangularEnabled)
	crossVenue := strategy.NewCrossVenueDetector(cfg.Model, registry.Pairs(), external, strategy.DefaultRates(), cfg.OpportunityTTL)
	crossVenue.SetEnabled(cfg.CrossVenueEnabled)
	detectors := []strategy.Detector{triangular, crossVenue}
	log.Info().Int("count", len(detectors)).Msg("✅ Detectors loaded")

	// 6. Risk engine
	riskEngine := risk.NewEngine(cfg.Risk)
	log.Info().Msg("✅ Risk layer initialized")

	// 7. Execution hand-off
	if !cfg.DryRun {
		log.Warn().Msg("No settlement executor configured, trades are paper-filled")
	}
	executor := execution.NewPaperExecutor(execution.DefaultPaperConfig())
	log.Info().Msg("✅ Execution layer initialized")

	// 8. Core engine
	engine := core.NewEngine(cfg, market, indexer, detectors, riskEngine, executor)
	engine.SetQuoteCache(external)
	if db != nil {
		engine.SetRecorder(db)
	}
	log.Info().Msg("✅ Core engine initialized")

	// 9. Metrics
	recorder := metrics.NewRecorder()
	engine.SetObserver(recorder)
	metrics.Serve(ctx, cfg.MetricsAddr, recorder.Registry())

	// 10. Telegram
	var tgBot *bot.TelegramBot
	if cfg.TelegramToken != "" {
		tgBot, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, engine, cfg.DryRun)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram bot disabled")
		} else {
			if db != nil {
				tgBot.SetTradeHistory(db)
			}
			engine.SetNotifier(tgBot)
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════════
	// PRINT CONFIG
	// ═══════════════════════════════════════════════════════════════════════════════

	mode := "LIVE"
	if cfg.DryRun {
		mode = "PAPER"
	}
	log.Info().
		Str("mode", mode).
		Int("paths", len(registry.Paths())).
		Int("pairs", len(registry.Pairs())).
		Strs("anchors", cfg.TriangularAnchors).
		Str("min_profit", cfg.Model.MinProfitThreshold.String()).
		Str("max_position", cfg.Risk.Limits.MaxPositionSize.String()).
		Str("max_daily_loss", cfg.Risk.Limits.MaxDailyLoss.String()).
		Int("top_n", cfg.TopN).
		Msg("⚙️ Configuration")

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	engine.Start()
	if tgBot != nil {
		tgBot.Start()
		tgBot.NotifyStartup()
	}

	log.Info().Msg("🚀 All systems running...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	if tgBot != nil {
		tgBot.Stop()
	}
	engine.Stop()
	stream.Stop()
	cancel()

	final := engine.SystemMetrics()
	log.Info().
		Int("trades", final.TotalTrades).
		Int("successful", final.SuccessfulTrades).
		Str("profit", final.TotalProfit.StringFixed(4)).
		Str("gas", final.TotalGasCost.StringFixed(4)).
		Interface("executor", executor.GetMetrics()).
		Msg("📊 Final stats")

	if db != nil {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}

	log.Info().Msg("👋 Goodbye")
}
