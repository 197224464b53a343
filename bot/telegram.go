package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/core"
	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Operator controls & trade notifications
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Trade notifications (success/failed)
//   🛑 Emergency shutdown alerts
//   🎛️ Controls (/enable, /disable, /setlimit, /resume)
//   📊 Risk and system views (/status, /risk, /limits, /metrics, /history)
//
// ═══════════════════════════════════════════════════════════════════════════════

// Controller is the engine surface the bot drives
type Controller interface {
	SystemMetrics() core.SystemMetrics
	RiskSummary() risk.Summary
	RiskMetrics() risk.Metrics
	RiskLimits() types.RiskLimits
	UpdateRiskLimits(update types.RiskLimitsUpdate) (types.RiskLimits, error)
	SetStrategyEnabled(name string, enabled bool) error
	Strategies() map[string]bool
	PerformanceHistory(days int) risk.PerformanceHistory
	Halted() bool
	Resume()
}

// TradeHistory serves persisted trades for /trades
type TradeHistory interface {
	RecentTrades(ctx context.Context, limit int) ([]types.TradeLog, error)
}

// sender is the part of the Bot API used for output
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	out     sender
	chatID  int64
	dryRun  bool
	running bool
	stopCh  chan struct{}

	engine  Controller
	history TradeHistory // optional
}

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(token string, chatID int64, engine Controller, dryRun bool) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := newBot(api, chatID, engine, dryRun)
	bot.api = api

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

func newBot(out sender, chatID int64, engine Controller, dryRun bool) *TelegramBot {
	return &TelegramBot{
		out:    out,
		chatID: chatID,
		dryRun: dryRun,
		stopCh: make(chan struct{}),
		engine: engine,
	}
}

// SetTradeHistory enables /trades
func (b *TelegramBot) SetTradeHistory(h TradeHistory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = h
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running || b.api == nil {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	b.api.StopReceivingUpdates()
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyTrade sends a trade result alert
func (b *TelegramBot) NotifyTrade(opp *types.Opportunity, entry types.TradeLog) {
	b.sendMarkdown(formatTrade(opp, entry))
}

// NotifyHalt sends the emergency shutdown alert
func (b *TelegramBot) NotifyHalt(summary risk.Summary) {
	msg := fmt.Sprintf(`🛑 *EMERGENCY SHUTDOWN*
━━━━━━━━━━━━━━━━━━━━

New trades are halted.
⚠️ Risk: *%s*
💵 Daily P&L: *%s*
📦 Active trades: *%d*

Use /risk for details, /resume to restart`,
		strings.ToUpper(string(summary.CurrentRisk)),
		signed(summary.DailyPnL, 4),
		summary.ActiveTrades,
	)
	b.sendMarkdown(msg)
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup() {
	strategies := b.engine.Strategies()
	limits := b.engine.RiskLimits()

	msg := fmt.Sprintf(`🚀 *DEEPARB STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Mode: *%s*
🎯 Strategies: *%s*
🛡️ Max position: *%s* | Max daily loss: *%s*

Use /help for commands`,
		b.mode(),
		formatStrategies(strategies),
		limits.MaxPositionSize.String(),
		limits.MaxDailyLoss.String(),
	)
	b.sendMarkdown(msg)
}

func formatTrade(opp *types.Opportunity, entry types.TradeLog) string {
	if entry.Status != types.TradeSuccess {
		return fmt.Sprintf(`❌ *TRADE FAILED*

📊 %s
📦 Amount: *%s*
⚠️ %s`,
			opp.Route(),
			opp.TradeAmount.StringFixed(4),
			entry.Error,
		)
	}

	profit := decimal.Zero
	if entry.Profit != nil {
		profit = *entry.Profit
	}
	emoji := "💰"
	if profit.Sub(entry.Cost).IsNegative() {
		emoji = "📉"
	}
	return fmt.Sprintf(`%s *TRADE EXECUTED*

📊 %s
📦 Amount: *%s*
💵 Profit: *%s* | Gas: *%s*
⏱️ %v`,
		emoji,
		opp.Route(),
		opp.TradeAmount.StringFixed(4),
		signed(profit, 6),
		entry.Cost.StringFixed(4),
		entry.Duration.Round(time.Millisecond),
	)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.sendMarkdown(b.handleCommand(update.Message.Command(), update.Message.CommandArguments()))
		}
	}
}

// handleCommand returns the reply for one command
func (b *TelegramBot) handleCommand(cmd, args string) string {
	fields := strings.Fields(args)

	switch strings.ToLower(cmd) {
	case "start", "help":
		return helpText
	case "status":
		return b.cmdStatus()
	case "risk":
		return b.cmdRisk()
	case "limits":
		return b.cmdLimits()
	case "setlimit":
		return b.cmdSetLimit(fields)
	case "enable":
		return b.cmdToggle(fields, true)
	case "disable":
		return b.cmdToggle(fields, false)
	case "metrics":
		return b.cmdMetrics()
	case "history":
		return b.cmdHistory(fields)
	case "trades":
		return b.cmdTrades()
	case "resume":
		return b.cmdResume()
	case "ping":
		return "🏓 Pong!"
	default:
		return "❓ Unknown command. Use /help"
	}
}

const helpText = `🤖 *DEEPARB COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Engine status
🛡️ /risk — Risk summary
📏 /limits — Current risk limits
✏️ /setlimit <name> <value> — Change a limit
🟢 /enable <strategy> — Enable a strategy
🔴 /disable <strategy> — Disable a strategy
📈 /metrics — System metrics
🗓️ /history [days] — Daily P&L
📜 /trades — Last 10 trades
▶️ /resume — Clear an emergency halt
🏓 /ping — Test connection

Limits: position, dailyloss, slippage, stoploss, concurrent
Strategies: triangular, cross-venue`

func (b *TelegramBot) cmdStatus() string {
	m := b.engine.SystemMetrics()

	status := "🟢 RUNNING"
	if m.Halted {
		status = "🛑 HALTED"
	}

	return fmt.Sprintf(`📊 *ENGINE STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
📊 Mode: *%s*
🎯 Strategies: *%s*
⏱️ Uptime: *%v*
🔍 Scans: *%d*
🕒 Snapshot age: *%s*
📦 Active trades: *%d*`,
		status,
		b.mode(),
		formatStrategies(b.engine.Strategies()),
		m.Uptime.Round(time.Second),
		m.Scans,
		snapshotAge(m.SnapshotAge),
		m.ActiveTrades,
	)
}

func snapshotAge(age time.Duration) string {
	if age <= 0 {
		return "no snapshot"
	}
	return age.Round(time.Second).String()
}

func (b *TelegramBot) cmdRisk() string {
	s := b.engine.RiskSummary()
	m := b.engine.RiskMetrics()

	msg := fmt.Sprintf(`🛡️ *RISK SUMMARY*
━━━━━━━━━━━━━━━━━━━━

⚠️ Level: *%s*
💵 Daily P&L: *%s*
📦 Active trades: *%d*
📊 Exposure used: *%.1f%%*
📉 Loss limit used: *%.1f%%*
✅ Win rate: *%.1f%%*
📉 Max drawdown: *%s*
📐 Sharpe: *%.2f*`,
		strings.ToUpper(string(s.CurrentRisk)),
		signed(s.DailyPnL, 4),
		s.ActiveTrades,
		s.ExposureUtilization*100,
		s.DailyLossUtilization*100,
		m.WinRate*100,
		m.MaxDrawdown.StringFixed(4),
		m.SharpeRatio,
	)

	if len(s.Recommendations) > 0 {
		msg += "\n\n━━━━━━━━━━━━━━━━━━━━\n"
		for _, r := range s.Recommendations {
			msg += "• " + r + "\n"
		}
	}
	return msg
}

func (b *TelegramBot) cmdLimits() string {
	return formatLimits(b.engine.RiskLimits())
}

func formatLimits(l types.RiskLimits) string {
	return fmt.Sprintf(`📏 *RISK LIMITS*
━━━━━━━━━━━━━━━━━━━━

📦 position: *%s*
📉 dailyloss: *%s*
〰️ slippage: *%s*
🛑 stoploss: *%s*
🔢 concurrent: *%d*`,
		l.MaxPositionSize.String(),
		l.MaxDailyLoss.String(),
		l.MaxSlippage.String(),
		l.StopLossRatio.String(),
		l.MaxConcurrentTrades,
	)
}

func (b *TelegramBot) cmdSetLimit(args []string) string {
	if len(args) != 2 {
		return "Usage: /setlimit <name> <value>"
	}

	update, err := parseLimitUpdate(args[0], args[1])
	if err != nil {
		return "❌ " + err.Error()
	}

	limits, err := b.engine.UpdateRiskLimits(update)
	if err != nil {
		return "❌ " + err.Error()
	}

	log.Info().Str("limit", args[0]).Str("value", args[1]).Msg("Risk limit changed via Telegram")
	return "✅ Limit updated\n\n" + formatLimits(limits)
}

// parseLimitUpdate builds a single-field update from operator input
func parseLimitUpdate(name, raw string) (types.RiskLimitsUpdate, error) {
	var update types.RiskLimitsUpdate

	if strings.ToLower(name) == "concurrent" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return update, fmt.Errorf("concurrent must be an integer")
		}
		update.MaxConcurrentTrades = &n
		return update, nil
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return update, fmt.Errorf("invalid number %q", raw)
	}

	switch strings.ToLower(name) {
	case "position":
		update.MaxPositionSize = &v
	case "dailyloss":
		update.MaxDailyLoss = &v
	case "slippage":
		update.MaxSlippage = &v
	case "stoploss":
		update.StopLossRatio = &v
	default:
		return update, fmt.Errorf("unknown limit %q", name)
	}
	return update, nil
}

func (b *TelegramBot) cmdToggle(args []string, enabled bool) string {
	if len(args) != 1 {
		return "Usage: /enable <strategy> or /disable <strategy>"
	}
	if err := b.engine.SetStrategyEnabled(strings.ToLower(args[0]), enabled); err != nil {
		return "❌ " + err.Error()
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return fmt.Sprintf("✅ %s %s", args[0], state)
}

func (b *TelegramBot) cmdMetrics() string {
	m := b.engine.SystemMetrics()

	successRate := 0.0
	if m.TotalTrades > 0 {
		successRate = float64(m.SuccessfulTrades) / float64(m.TotalTrades) * 100
	}

	return fmt.Sprintf(`📈 *SYSTEM METRICS*
━━━━━━━━━━━━━━━━━━━━

⏱️ Uptime: *%v*
🔍 Scans: *%d*
📊 Trades: *%d* (%.1f%% successful)
💵 Profit: *%s*
⛽ Gas: *%s*
⚡ Avg execution: *%v*
🧠 Heap: *%.1f MB* | Goroutines: *%d*`,
		m.Uptime.Round(time.Second),
		m.Scans,
		m.TotalTrades, successRate,
		signed(m.TotalProfit, 4),
		m.TotalGasCost.StringFixed(4),
		m.AvgExecutionTime.Round(time.Millisecond),
		float64(m.HeapAlloc)/1024/1024,
		m.Goroutines,
	)
}

func (b *TelegramBot) cmdHistory(args []string) string {
	days := 7
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 || n > 90 {
			return "Usage: /history [days], 1 to 90"
		}
		days = n
	}

	h := b.engine.PerformanceHistory(days)
	if len(h.DailyReturns) == 0 {
		return "📭 No trade history yet"
	}

	msg := fmt.Sprintf("🗓️ *LAST %d DAYS*\n━━━━━━━━━━━━━━━━━━━━\n\n", days)
	for _, d := range h.DailyReturns {
		msg += fmt.Sprintf("%s  %s\n", d.Date, signed(d.PnL, 4))
	}
	msg += fmt.Sprintf("\n💵 Cumulative: *%s*\n〰️ Volatility: *%s*\n📉 Max drawdown: *%s*",
		signed(h.CumulativeReturn, 4),
		h.Volatility.StringFixed(4),
		h.MaxDrawdown.StringFixed(4),
	)
	return msg
}

func (b *TelegramBot) cmdTrades() string {
	b.mu.RLock()
	history := b.history
	b.mu.RUnlock()

	if history == nil {
		return "❌ Trades not available"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	trades, err := history.RecentTrades(ctx, 10)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load trades for Telegram")
		return "❌ Failed to fetch trades"
	}
	if len(trades) == 0 {
		return "📭 No trade history yet"
	}

	msg := "📜 *LAST 10 TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, t := range trades {
		emoji := "⏳"
		switch t.Status {
		case types.TradeSuccess:
			emoji = "✅"
		case types.TradeFailed:
			emoji = "❌"
		}

		profit := ""
		if t.Profit != nil {
			profit = " | " + signed(*t.Profit, 4)
		}
		msg += fmt.Sprintf("%s %s %s%s\n   %s\n\n",
			emoji, t.Strategy, t.Status, profit,
			t.Timestamp.Format("Jan 2 15:04"),
		)
	}
	return msg
}

func (b *TelegramBot) cmdResume() string {
	if !b.engine.Halted() {
		return "🟢 Engine is not halted"
	}
	b.engine.Resume()
	log.Info().Msg("Trading resumed via Telegram")
	return "▶️ Trading resumed"
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) mode() string {
	if b.dryRun {
		return "PAPER"
	}
	return "LIVE"
}

func formatStrategies(s map[string]bool) string {
	names := make([]string, 0, len(s))
	for name, on := range s {
		if on {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func signed(d decimal.Decimal, places int32) string {
	if d.IsNegative() {
		return d.StringFixed(places)
	}
	return "+" + d.StringFixed(places)
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.out.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
