package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Data sources
	IndexerURL     string
	BinanceRESTURL string
	BinanceWSURL   string
	CoinbaseURL    string

	// Loops
	ScanInterval    time.Duration
	RefreshInterval time.Duration
	StatusInterval  time.Duration
	RiskInterval    time.Duration
	OpportunityTTL  time.Duration
	TopN            int

	// Strategies
	TriangularEnabled bool
	CrossVenueEnabled bool
	TriangularAnchors []string // cycles start and end in one of these assets
	CrossVenuePairs   string   // "SUI_USDC=SUI/USDT,..."

	Model ModelConfig
	Risk  RiskConfig

	// Persistence and observability
	DatabasePath string
	MetricsAddr  string
}

// ModelConfig carries the heuristic constants of the profit model.
// They encode policy, so every one of them is overridable.
type ModelConfig struct {
	MinProfitThreshold decimal.Decimal // 0.005 = 0.5%

	// Triangular
	BaseSlippage       decimal.Decimal // per-leg slippage at zero size
	ReferenceLiquidity decimal.Decimal // size at which slippage doubles
	TriangularFee      decimal.Decimal
	MinTradeAmount     decimal.Decimal
	MaxTradeAmount     decimal.Decimal
	OptimizerPrecision decimal.Decimal
	BaseGas            decimal.Decimal
	PerLegGas          decimal.Decimal

	// Cross-venue
	CrossVenueFee  decimal.Decimal
	BaseLiquidity  decimal.Decimal
	LiquidityShare decimal.Decimal // share of 24h volume treated as depth
	CrossVenueGas  decimal.Decimal

	// Confidence
	TriangularConfidenceBase    float64
	TriangularConfidenceCeiling float64
	CrossVenueConfidenceBase    float64
	CrossVenueConfidenceCeiling float64
}

// RiskConfig holds the limits and the fixed parameters of the risk engine
type RiskConfig struct {
	Limits types.RiskLimits

	GasBuffer          decimal.Decimal // added to max slippage as the minimum edge
	ExposureMultiple   decimal.Decimal // max exposure = multiple * max position
	ExposurePerTrade   decimal.Decimal // exposure booked per pending trade
	KellyMultiplier    decimal.Decimal
	KellyMinFraction   decimal.Decimal
	KellyMaxFraction   decimal.Decimal
	FallbackFraction   decimal.Decimal // sizing when inputs are degenerate
	EmergencyLossFloor decimal.Decimal // absolute daily loss paired with a low win rate
	LogRetention       time.Duration
}

// Default returns the built-in configuration without reading the environment
func Default() *Config {
	return &Config{
		DryRun:          true,
		IndexerURL:      "https://deepbook-indexer.mainnet.mystenlabs.com",
		BinanceRESTURL:  "https://api.binance.com",
		BinanceWSURL:    "wss://stream.binance.com:9443",
		CoinbaseURL:     "https://api.coinbase.com",
		ScanInterval:    2 * time.Second,
		RefreshInterval: time.Minute,
		StatusInterval:  30 * time.Second,
		RiskInterval:    5 * time.Minute,
		OpportunityTTL:  30 * time.Second,
		TopN:            3,

		TriangularEnabled: true,
		CrossVenueEnabled: true,
		TriangularAnchors: []string{"SUI", "USDC"},
		CrossVenuePairs:   "SUI_USDC=SUI/USDT",

		Model: ModelConfig{
			MinProfitThreshold: decimal.NewFromFloat(0.005),
			BaseSlippage:       decimal.NewFromFloat(0.001),
			ReferenceLiquidity: decimal.NewFromInt(1000),
			TriangularFee:      decimal.NewFromFloat(0.0025),
			MinTradeAmount:     decimal.NewFromFloat(0.1),
			MaxTradeAmount:     decimal.NewFromInt(100),
			OptimizerPrecision: decimal.NewFromFloat(0.001),
			BaseGas:            decimal.NewFromFloat(0.05),
			PerLegGas:          decimal.NewFromFloat(0.02),
			CrossVenueFee:      decimal.NewFromFloat(0.005),
			BaseLiquidity:      decimal.NewFromInt(10),
			LiquidityShare:     decimal.NewFromFloat(0.1),
			CrossVenueGas:      decimal.NewFromFloat(0.08),

			TriangularConfidenceBase:    0.5,
			TriangularConfidenceCeiling: 0.95,
			CrossVenueConfidenceBase:    0.3,
			CrossVenueConfidenceCeiling: 0.85,
		},

		Risk: RiskConfig{
			Limits: types.RiskLimits{
				MaxPositionSize:     decimal.NewFromInt(50),
				MaxDailyLoss:        decimal.NewFromInt(100),
				MaxSlippage:         decimal.NewFromFloat(0.03),
				StopLossRatio:       decimal.NewFromFloat(0.02),
				MaxConcurrentTrades: 3,
			},
			GasBuffer:          decimal.NewFromFloat(0.002),
			ExposureMultiple:   decimal.NewFromInt(3),
			ExposurePerTrade:   decimal.NewFromFloat(0.1),
			KellyMultiplier:    decimal.NewFromFloat(0.5),
			KellyMinFraction:   decimal.NewFromFloat(0.01),
			KellyMaxFraction:   decimal.NewFromFloat(0.25),
			FallbackFraction:   decimal.NewFromFloat(0.1),
			EmergencyLossFloor: decimal.NewFromInt(1),
			LogRetention:       7 * 24 * time.Hour,
		},

		DatabasePath: "data/deeparb.db",
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	d := Default()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DryRun: getEnvBool("DRY_RUN", d.DryRun),
		Debug:  getEnvBool("DEBUG", d.Debug),

		IndexerURL:     strings.TrimRight(getEnv("INDEXER_URL", d.IndexerURL), "/"),
		BinanceRESTURL: strings.TrimRight(getEnv("BINANCE_REST_URL", d.BinanceRESTURL), "/"),
		BinanceWSURL:   strings.TrimRight(getEnv("BINANCE_WS_URL", d.BinanceWSURL), "/"),
		CoinbaseURL:    strings.TrimRight(getEnv("COINBASE_URL", d.CoinbaseURL), "/"),

		ScanInterval:    getEnvDuration("SCAN_INTERVAL", d.ScanInterval),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", d.RefreshInterval),
		StatusInterval:  getEnvDuration("STATUS_INTERVAL", d.StatusInterval),
		RiskInterval:    getEnvDuration("RISK_INTERVAL", d.RiskInterval),
		OpportunityTTL:  getEnvDuration("OPPORTUNITY_TTL", d.OpportunityTTL),
		TopN:            getEnvInt("TOP_N", d.TopN),

		TriangularEnabled: getEnvBool("TRIANGULAR_ARBITRAGE_ENABLED", d.TriangularEnabled),
		CrossVenueEnabled: getEnvBool("CROSS_VENUE_ARBITRAGE_ENABLED", d.CrossVenueEnabled),
		TriangularAnchors: getEnvList("TRIANGULAR_ANCHORS", d.TriangularAnchors),
		CrossVenuePairs:   getEnv("CROSS_VENUE_PAIRS", d.CrossVenuePairs),

		Model: ModelConfig{
			MinProfitThreshold: getEnvDecimal("MIN_PROFIT_THRESHOLD", d.Model.MinProfitThreshold),
			BaseSlippage:       getEnvDecimal("BASE_SLIPPAGE", d.Model.BaseSlippage),
			ReferenceLiquidity: getEnvDecimal("REFERENCE_LIQUIDITY", d.Model.ReferenceLiquidity),
			TriangularFee:      getEnvDecimal("TRIANGULAR_FEE", d.Model.TriangularFee),
			MinTradeAmount:     getEnvDecimal("MIN_TRADE_AMOUNT", d.Model.MinTradeAmount),
			MaxTradeAmount:     getEnvDecimal("MAX_TRADE_AMOUNT", d.Model.MaxTradeAmount),
			OptimizerPrecision: getEnvDecimal("OPTIMIZER_PRECISION", d.Model.OptimizerPrecision),
			BaseGas:            getEnvDecimal("BASE_GAS", d.Model.BaseGas),
			PerLegGas:          getEnvDecimal("PER_LEG_GAS", d.Model.PerLegGas),
			CrossVenueFee:      getEnvDecimal("CROSS_VENUE_FEE", d.Model.CrossVenueFee),
			BaseLiquidity:      getEnvDecimal("CROSS_VENUE_BASE_LIQUIDITY", d.Model.BaseLiquidity),
			LiquidityShare:     getEnvDecimal("CROSS_VENUE_LIQUIDITY_SHARE", d.Model.LiquidityShare),
			CrossVenueGas:      getEnvDecimal("CROSS_VENUE_GAS", d.Model.CrossVenueGas),

			TriangularConfidenceBase:    getEnvFloat("TRIANGULAR_CONFIDENCE_BASE", d.Model.TriangularConfidenceBase),
			TriangularConfidenceCeiling: getEnvFloat("TRIANGULAR_CONFIDENCE_CEILING", d.Model.TriangularConfidenceCeiling),
			CrossVenueConfidenceBase:    getEnvFloat("CROSS_VENUE_CONFIDENCE_BASE", d.Model.CrossVenueConfidenceBase),
			CrossVenueConfidenceCeiling: getEnvFloat("CROSS_VENUE_CONFIDENCE_CEILING", d.Model.CrossVenueConfidenceCeiling),
		},

		Risk: RiskConfig{
			Limits: types.RiskLimits{
				MaxPositionSize:     getEnvDecimal("MAX_POSITION_SIZE", d.Risk.Limits.MaxPositionSize),
				MaxDailyLoss:        getEnvDecimal("MAX_DAILY_LOSS", d.Risk.Limits.MaxDailyLoss),
				MaxSlippage:         getEnvDecimal("MAX_SLIPPAGE", d.Risk.Limits.MaxSlippage),
				StopLossRatio:       getEnvDecimal("STOP_LOSS_PERCENTAGE", d.Risk.Limits.StopLossRatio),
				MaxConcurrentTrades: getEnvInt("MAX_CONCURRENT_TRADES", d.Risk.Limits.MaxConcurrentTrades),
			},
			GasBuffer:          getEnvDecimal("RISK_GAS_BUFFER", d.Risk.GasBuffer),
			ExposureMultiple:   getEnvDecimal("MAX_EXPOSURE_MULTIPLE", d.Risk.ExposureMultiple),
			ExposurePerTrade:   getEnvDecimal("EXPOSURE_PER_TRADE", d.Risk.ExposurePerTrade),
			KellyMultiplier:    getEnvDecimal("KELLY_MULTIPLIER", d.Risk.KellyMultiplier),
			KellyMinFraction:   getEnvDecimal("KELLY_MIN_FRACTION", d.Risk.KellyMinFraction),
			KellyMaxFraction:   getEnvDecimal("KELLY_MAX_FRACTION", d.Risk.KellyMaxFraction),
			FallbackFraction:   getEnvDecimal("FALLBACK_POSITION_FRACTION", d.Risk.FallbackFraction),
			EmergencyLossFloor: getEnvDecimal("EMERGENCY_LOSS_FLOOR", d.Risk.EmergencyLossFloor),
			LogRetention:       getEnvDuration("TRADE_LOG_RETENTION", d.Risk.LogRetention),
		},

		DatabasePath: getEnv("DATABASE_PATH", d.DatabasePath),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive")
	}
	if !c.Model.MinTradeAmount.IsPositive() || c.Model.MaxTradeAmount.LessThanOrEqual(c.Model.MinTradeAmount) {
		return fmt.Errorf("trade amount bounds must satisfy 0 < MIN_TRADE_AMOUNT < MAX_TRADE_AMOUNT")
	}
	if !c.Model.ReferenceLiquidity.IsPositive() {
		return fmt.Errorf("REFERENCE_LIQUIDITY must be positive")
	}
	if !c.Risk.Limits.MaxPositionSize.IsPositive() || !c.Risk.Limits.MaxDailyLoss.IsPositive() {
		return fmt.Errorf("MAX_POSITION_SIZE and MAX_DAILY_LOSS must be positive")
	}
	if c.Risk.Limits.MaxConcurrentTrades <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TRADES must be positive")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToUpper(item))
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
