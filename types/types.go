package types

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Instrument is a tradable pair as listed by the market data source
type Instrument struct {
	Base           string
	Quote          string
	Symbol         string // unique pair symbol, e.g. "SUI_USDC"
	PoolID         string
	MinTradeSize   decimal.Decimal
	LotSize        decimal.Decimal
	TickSize       decimal.Decimal
	BasePrecision  int32
	QuotePrecision int32
}

// Connects reports whether the instrument trades a against b in either orientation
func (i Instrument) Connects(a, b string) bool {
	return (i.Base == a && i.Quote == b) || (i.Base == b && i.Quote == a)
}

// PriceSnapshot is the latest market state for one instrument.
// Snapshots are replaced wholesale on refresh, never merged.
type PriceSnapshot struct {
	Price     decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h decimal.Decimal
	Change24h decimal.Decimal
	Timestamp time.Time
}

// ExternalPrice is a quote from a venue outside the reference market
type ExternalPrice struct {
	Symbol    string
	Price     decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp time.Time
	Source    string
}

// Path is a closed three-asset cycle. Instruments[i] connects Assets[i]
// to Assets[(i+1)%3]. Priority is fixed when the registry is built.
type Path struct {
	Assets      [3]string
	Instruments [3]Instrument
	Priority    decimal.Decimal
}

// String renders the cycle as "A -> B -> C -> A"
func (p Path) String() string {
	return strings.Join([]string{p.Assets[0], p.Assets[1], p.Assets[2], p.Assets[0]}, " -> ")
}

// MonitoredPair links a reference instrument to a symbol on an external venue.
// The observation fields are rewritten on every scan.
type MonitoredPair struct {
	Reference          Instrument
	ExternalSymbol     string
	ConversionRequired bool
	ConvertFrom        string // external quote unit, e.g. USDT
	ConvertTo          string // reference quote unit, e.g. USDC

	mu               sync.RWMutex
	lastPriceCheck   time.Time
	priceDiscrepancy decimal.Decimal
}

// Observe records the outcome of a price comparison
func (p *MonitoredPair) Observe(discrepancy decimal.Decimal, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceDiscrepancy = discrepancy
	p.lastPriceCheck = at
}

// LastObservation returns the most recent discrepancy and when it was measured
func (p *MonitoredPair) LastObservation() (decimal.Decimal, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.priceDiscrepancy, p.lastPriceCheck
}

// ═══════════════════════════════════════════════════════════════════════════════
// OPPORTUNITY - tagged union over detector kinds
// ═══════════════════════════════════════════════════════════════════════════════

// OpportunityKind tags the payload carried by an Opportunity
type OpportunityKind string

const (
	KindTriangular OpportunityKind = "triangular"
	KindCrossVenue OpportunityKind = "cross-venue"
)

// Direction of a cross-venue trade relative to the reference market
type Direction string

const (
	BuyReference  Direction = "buy-reference"
	SellReference Direction = "sell-reference"
)

// TriangularLeg is the payload of a triangular opportunity
type TriangularLeg struct {
	Assets      [3]string
	Instruments [3]Instrument
}

// CrossVenueLeg is the payload of a cross-venue opportunity
type CrossVenueLeg struct {
	Reference      Instrument
	ExternalSymbol string
	Direction      Direction
	ReferencePrice decimal.Decimal
	ExternalPrice  decimal.Decimal // after unit conversion
	Discrepancy    decimal.Decimal
}

// Opportunity is a candidate trade. Only TradeAmount may change after
// creation, and only when the risk engine clamps it.
type Opportunity struct {
	ID             string
	Kind           OpportunityKind
	TradeAmount    decimal.Decimal
	ExpectedProfit decimal.Decimal
	ProfitRatio    decimal.Decimal
	GasEstimate    decimal.Decimal
	Confidence     float64
	CreatedAt      time.Time
	Deadline       time.Time

	Triangular *TriangularLeg
	CrossVenue *CrossVenueLeg
}

// Expired reports whether the advisory deadline has passed
func (o *Opportunity) Expired(now time.Time) bool {
	return !o.Deadline.IsZero() && now.After(o.Deadline)
}

// Route renders the opportunity's path for logs and alerts
func (o *Opportunity) Route() string {
	switch o.Kind {
	case KindTriangular:
		if o.Triangular == nil {
			return ""
		}
		a := o.Triangular.Assets
		return strings.Join([]string{a[0], a[1], a[2], a[0]}, " -> ")
	case KindCrossVenue:
		if o.CrossVenue == nil {
			return ""
		}
		return fmt.Sprintf("%s/%s %s", o.CrossVenue.Reference.Symbol, o.CrossVenue.ExternalSymbol, o.CrossVenue.Direction)
	default:
		return ""
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RISK
// ═══════════════════════════════════════════════════════════════════════════════

// RiskLimits bound every risk evaluation
type RiskLimits struct {
	MaxPositionSize     decimal.Decimal
	MaxDailyLoss        decimal.Decimal
	MaxSlippage         decimal.Decimal
	StopLossRatio       decimal.Decimal
	MaxConcurrentTrades int
}

// RiskLimitsUpdate is a partial update; nil fields are left unchanged
type RiskLimitsUpdate struct {
	MaxPositionSize     *decimal.Decimal
	MaxDailyLoss        *decimal.Decimal
	MaxSlippage         *decimal.Decimal
	StopLossRatio       *decimal.Decimal
	MaxConcurrentTrades *int
}

// Apply returns l with the non-nil fields of u applied
func (u RiskLimitsUpdate) Apply(l RiskLimits) RiskLimits {
	if u.MaxPositionSize != nil {
		l.MaxPositionSize = *u.MaxPositionSize
	}
	if u.MaxDailyLoss != nil {
		l.MaxDailyLoss = *u.MaxDailyLoss
	}
	if u.MaxSlippage != nil {
		l.MaxSlippage = *u.MaxSlippage
	}
	if u.StopLossRatio != nil {
		l.StopLossRatio = *u.StopLossRatio
	}
	if u.MaxConcurrentTrades != nil {
		l.MaxConcurrentTrades = *u.MaxConcurrentTrades
	}
	return l
}

// RiskLevel is the coarse utilisation bucket
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE LOG
// ═══════════════════════════════════════════════════════════════════════════════

// TradeStatus is the lifecycle state of a trade log entry
type TradeStatus string

const (
	TradePending TradeStatus = "pending"
	TradeSuccess TradeStatus = "success"
	TradeFailed  TradeStatus = "failed"
)

// Terminal reports whether the status ends the trade lifecycle
func (s TradeStatus) Terminal() bool {
	return s == TradeSuccess || s == TradeFailed
}

// TradeLog records one trade from hand-off to result
type TradeLog struct {
	ID            string
	OpportunityID string
	Timestamp     time.Time
	Strategy      string
	Status        TradeStatus
	Profit        *decimal.Decimal // nil when nothing was realized
	Cost          decimal.Decimal
	Error         string
	Duration      time.Duration
}
