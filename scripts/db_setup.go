package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/storage"
	"github.com/web3guy0/deeparb/types"
)

// Migrates the schema, optionally wipes it (--reset), then round-trips a
// test trade to confirm the database is usable.
func main() {
	godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "data/deeparb.db"
	}
	reset := len(os.Args) > 1 && os.Args[1] == "--reset"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("🔌 Connecting to database...")
	db, err := storage.New(dbPath)
	if err != nil {
		fmt.Printf("❌ Connection error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("✅ Database connected and migrated!")

	printCounts(ctx, db, "📊 Current row counts:")

	if reset {
		fmt.Println("\n🧹 DROPPING ALL TABLES...")
		if err := db.Reset(); err != nil {
			fmt.Printf("❌ Reset error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Schema recreated!")
	}

	// Test insert
	fmt.Println("\n🧪 Testing INSERT...")
	testID := fmt.Sprintf("TEST_%d", time.Now().UnixNano())
	profit := decimal.RequireFromString("0.25")
	err = db.SaveTrade(ctx, types.TradeLog{
		ID:            testID,
		OpportunityID: "setup-check",
		Timestamp:     time.Now(),
		Strategy:      "triangular",
		Status:        types.TradeSuccess,
		Profit:        &profit,
		Cost:          decimal.RequireFromString("0.11"),
	})
	if err != nil {
		fmt.Printf("❌ Insert error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Inserted test trade: %s\n", testID)

	// Test select
	fmt.Println("\n🧪 Testing SELECT...")
	trades, err := db.RecentTrades(ctx, 1)
	if err != nil || len(trades) == 0 || trades[0].ID != testID {
		fmt.Printf("❌ Select error: %v\n", err)
		os.Exit(1)
	}
	t := trades[0]
	fmt.Printf("✅ Retrieved: %s | %s | %s | profit %s | cost %s\n",
		t.ID, t.Strategy, t.Status, t.Profit.StringFixed(4), t.Cost.StringFixed(4))

	// Clean test data
	fmt.Println("\n🧹 Cleaning test data...")
	if err := db.DeleteTrade(ctx, testID); err != nil {
		fmt.Printf("⚠️ Delete error: %v\n", err)
	} else {
		fmt.Println("✅ Test data cleaned!")
	}

	printCounts(ctx, db, "\n📊 Final table counts:")

	fmt.Println("\n✅ DATABASE READY!")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("Tables:")
	fmt.Println("  • trade_records       - Trade lifecycle, pending to terminal")
	fmt.Println("  • opportunity_records - Every ranked opportunity and its risk decision")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func printCounts(ctx context.Context, db *storage.Database, title string) {
	fmt.Println(title)
	counts, err := db.TableCounts(ctx)
	if err != nil {
		fmt.Printf("  ⚠️ Count error: %v\n", err)
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  - %s: %d rows\n", name, counts[name])
	}
}
