package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/deeparb/risk"
	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Trade persistence layer
// ═══════════════════════════════════════════════════════════════════════════════
//
// PostgreSQL when the path is a postgres:// URL, SQLite file otherwise.
// Trade rows are upserted by trade ID, so the terminal record overwrites the
// pending one just like the risk engine's log.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

type TradeRecord struct {
	ID            string           `gorm:"primaryKey"`
	OpportunityID string           `gorm:"index"`
	Strategy      string           `gorm:"index"`
	Status        string           `gorm:"index"` // pending, success, failed
	Profit        *decimal.Decimal `gorm:"type:decimal(30,18)"`
	Cost          decimal.Decimal  `gorm:"type:decimal(30,18)"`
	ErrorMessage  string
	DurationMs    int64
	ExecutedAt    time.Time `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OpportunityRecord struct {
	ID             string `gorm:"primaryKey"`
	Kind           string `gorm:"index"`
	Route          string
	TradeAmount    decimal.Decimal `gorm:"type:decimal(30,18)"`
	ExpectedProfit decimal.Decimal `gorm:"type:decimal(30,18)"`
	ProfitRatio    decimal.Decimal `gorm:"type:decimal(30,18)"`
	GasEstimate    decimal.Decimal `gorm:"type:decimal(30,18)"`
	Confidence     float64
	Approved       bool   `gorm:"index"`
	Reason         string // rejection reason, empty when approved
	Deadline       time.Time
	CreatedAt      time.Time
}

// New opens the database and migrates the schema
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&TradeRecord{}, &OpportunityRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Close releases the underlying connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Trade operations

// SaveTrade inserts or replaces the record for entry.ID
func (d *Database) SaveTrade(ctx context.Context, entry types.TradeLog) error {
	rec := TradeRecord{
		ID:            entry.ID,
		OpportunityID: entry.OpportunityID,
		Strategy:      entry.Strategy,
		Status:        string(entry.Status),
		Profit:        entry.Profit,
		Cost:          entry.Cost,
		ErrorMessage:  entry.Error,
		DurationMs:    entry.Duration.Milliseconds(),
		ExecutedAt:    entry.Timestamp,
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// RecentTrades returns the latest trades, newest first
func (d *Database) RecentTrades(ctx context.Context, limit int) ([]types.TradeLog, error) {
	var recs []TradeRecord
	err := d.db.WithContext(ctx).Order("executed_at DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.TradeLog, len(recs))
	for i, r := range recs {
		out[i] = types.TradeLog{
			ID:            r.ID,
			OpportunityID: r.OpportunityID,
			Timestamp:     r.ExecutedAt,
			Strategy:      r.Strategy,
			Status:        types.TradeStatus(r.Status),
			Profit:        r.Profit,
			Cost:          r.Cost,
			Error:         r.ErrorMessage,
			Duration:      time.Duration(r.DurationMs) * time.Millisecond,
		}
	}
	return out, nil
}

// TradeStats returns terminal trade counts and summed profit since a time
func (d *Database) TradeStats(ctx context.Context, since time.Time) (total, successful int64, profit decimal.Decimal, err error) {
	profit = decimal.Zero

	err = d.db.WithContext(ctx).Model(&TradeRecord{}).
		Where("executed_at >= ? AND status <> ?", since, string(types.TradePending)).
		Count(&total).Error
	if err != nil {
		return 0, 0, profit, err
	}

	var wins []TradeRecord
	err = d.db.WithContext(ctx).
		Where("executed_at >= ? AND status = ?", since, string(types.TradeSuccess)).
		Find(&wins).Error
	if err != nil {
		return 0, 0, profit, err
	}

	successful = int64(len(wins))
	for _, w := range wins {
		if w.Profit != nil {
			profit = profit.Add(*w.Profit)
		}
	}
	return total, successful, profit, nil
}

// Opportunity operations

// SaveOpportunity stores an evaluated opportunity with the risk decision
func (d *Database) SaveOpportunity(ctx context.Context, opp *types.Opportunity, decision risk.Decision) error {
	rec := OpportunityRecord{
		ID:             opp.ID,
		Kind:           string(opp.Kind),
		Route:          opp.Route(),
		TradeAmount:    opp.TradeAmount,
		ExpectedProfit: opp.ExpectedProfit,
		ProfitRatio:    opp.ProfitRatio,
		GasEstimate:    opp.GasEstimate,
		Confidence:     opp.Confidence,
		Approved:       decision.Approved,
		Reason:         decision.Reason,
		Deadline:       opp.Deadline,
		CreatedAt:      opp.CreatedAt,
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
}

// GetRecentOpportunities returns the latest evaluated opportunities
func (d *Database) GetRecentOpportunities(ctx context.Context, limit int) ([]OpportunityRecord, error) {
	var opps []OpportunityRecord
	err := d.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&opps).Error
	return opps, err
}

// PruneBefore deletes records older than cutoff
func (d *Database) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Where("executed_at < ?", cutoff).Delete(&TradeRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	trades := res.RowsAffected

	res = d.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&OpportunityRecord{})
	if res.Error != nil {
		return trades, res.Error
	}
	return trades + res.RowsAffected, nil
}

// DeleteTrade removes one trade row
func (d *Database) DeleteTrade(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Delete(&TradeRecord{}, "id = ?", id).Error
}

// TableCounts returns the row count of each table
func (d *Database) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 2)
	for name, model := range map[string]interface{}{
		"trades":        &TradeRecord{},
		"opportunities": &OpportunityRecord{},
	} {
		var n int64
		if err := d.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

// Reset drops and recreates every table
func (d *Database) Reset() error {
	if err := d.db.Migrator().DropTable(&TradeRecord{}, &OpportunityRecord{}); err != nil {
		return err
	}
	return d.db.AutoMigrate(&TradeRecord{}, &OpportunityRecord{})
}
