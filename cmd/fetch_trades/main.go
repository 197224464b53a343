package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/storage"
	"github.com/web3guy0/deeparb/types"
)

// Prints the most recent recorded trades with a per-strategy breakdown,
// followed by the latest evaluated opportunities and their risk decisions.
// Usage: fetch_trades [limit]
func main() {
	godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "data/deeparb.db"
	}
	limit := 100
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil || n <= 0 {
			fmt.Println("Usage: fetch_trades [limit]")
			return
		}
		limit = n
	}

	db, err := storage.New(dbPath)
	if err != nil {
		fmt.Println("Error opening database:", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	trades, err := db.RecentTrades(ctx, limit)
	if err != nil {
		fmt.Println("Error fetching trades:", err)
		return
	}

	fmt.Printf("📊 TRADE ANALYSIS - Total Trades: %d\n\n", len(trades))

	type strategyStats struct {
		trades, wins, losses, pending int
		profit, cost                  decimal.Decimal
	}
	byStrategy := make(map[string]*strategyStats)

	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	fmt.Println("│ TIME     │ STRATEGY    │ STATUS  │ PROFIT     │ GAS      │ NET        │ NOTES")
	fmt.Println("═══════════════════════════════════════════════════════════════════════")

	for _, t := range trades {
		s := byStrategy[t.Strategy]
		if s == nil {
			s = &strategyStats{}
			byStrategy[t.Strategy] = s
		}
		s.trades++

		profit := decimal.Zero
		if t.Profit != nil {
			profit = *t.Profit
		}
		net := profit.Sub(t.Cost)

		notes := ""
		switch t.Status {
		case types.TradePending:
			s.pending++
			notes = "⏳ IN FLIGHT"
		case types.TradeSuccess:
			s.profit = s.profit.Add(profit)
			s.cost = s.cost.Add(t.Cost)
			if net.IsPositive() {
				s.wins++
				notes = "✅ WIN"
			} else {
				s.losses++
				notes = "❌ GAS ATE THE EDGE"
			}
		default:
			s.losses++
			s.cost = s.cost.Add(t.Cost)
			notes = "🛑 " + t.Error
		}

		fmt.Printf("│ %s │ %-11s │ %-7s │ %+10.6f │ %8.6f │ %+10.6f │ %s\n",
			t.Timestamp.Format("15:04:05"),
			t.Strategy,
			t.Status,
			profit.InexactFloat64(),
			t.Cost.InexactFloat64(),
			net.InexactFloat64(),
			notes,
		)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	fmt.Printf("\n📈 SUMMARY:\n")

	names := make([]string, 0, len(byStrategy))
	for name := range byStrategy {
		names = append(names, name)
	}
	sort.Strings(names)

	totalNet := decimal.Zero
	for _, name := range names {
		s := byStrategy[name]
		net := s.profit.Sub(s.cost)
		totalNet = totalNet.Add(net)

		winRate := 0.0
		if closed := s.wins + s.losses; closed > 0 {
			winRate = float64(s.wins) / float64(closed) * 100
		}
		fmt.Printf("   %s: %d trades | Wins: %d | Losses: %d | Pending: %d | Win Rate: %.1f%% | Net: %+.6f\n",
			name, s.trades, s.wins, s.losses, s.pending, winRate, net.InexactFloat64())
	}
	fmt.Printf("   Total Net: %+.6f\n", totalNet.InexactFloat64())

	total, successful, profit, err := db.TradeStats(ctx, time.Now().Add(-24*time.Hour))
	if err == nil {
		fmt.Printf("\n   Last 24h: %d finished, %d successful, gross profit %s\n",
			total, successful, profit.StringFixed(6))
	}

	if len(trades) > 0 {
		first := trades[len(trades)-1]
		last := trades[0]
		fmt.Printf("\n   Date Range: %s to %s\n",
			first.Timestamp.Format("Jan 2 15:04"),
			last.Timestamp.Format("Jan 2 15:04"),
		)
	}

	printOpportunities(ctx, db, limit)
}

func printOpportunities(ctx context.Context, db *storage.Database, limit int) {
	opps, err := db.GetRecentOpportunities(ctx, limit)
	if err != nil {
		fmt.Println("Error fetching opportunities:", err)
		return
	}

	fmt.Printf("\n🔍 RECENT OPPORTUNITIES - %d evaluated\n\n", len(opps))
	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	fmt.Println("│ TIME     │ KIND        │ AMOUNT     │ PROFIT     │ RATIO   │ CONF │ DECISION")
	fmt.Println("═══════════════════════════════════════════════════════════════════════")

	approved := 0
	for _, o := range opps {
		decision := "✅ APPROVED"
		if o.Approved {
			approved++
		} else {
			decision = "🚫 " + o.Reason
		}
		fmt.Printf("│ %s │ %-11s │ %10.4f │ %+10.6f │ %6.2f%% │ %.2f │ %s  %s\n",
			o.CreatedAt.Format("15:04:05"),
			o.Kind,
			o.TradeAmount.InexactFloat64(),
			o.ExpectedProfit.InexactFloat64(),
			o.ProfitRatio.InexactFloat64()*100,
			o.Confidence,
			decision,
			o.Route,
		)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════════════")
	if len(opps) > 0 {
		fmt.Printf("   Approved: %d of %d (%.1f%%)\n",
			approved, len(opps), float64(approved)/float64(len(opps))*100)
	}
}
