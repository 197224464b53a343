package feeds

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET STORE - current instruments and price snapshots
// ═══════════════════════════════════════════════════════════════════════════════
//
// Refresh builds a complete new snapshot and swaps it in with one atomic
// store. Readers never lock and never see a half-written snapshot; they may
// see the previous one.
//
// ═══════════════════════════════════════════════════════════════════════════════

// MarketSource loads instruments and prices from the reference market
type MarketSource interface {
	FetchInstruments(ctx context.Context) ([]types.Instrument, error)
	FetchPrices(ctx context.Context) (map[string]types.PriceSnapshot, error)
}

type marketSnapshot struct {
	instruments []types.Instrument
	prices      map[string]types.PriceSnapshot
	updatedAt   time.Time
}

// MarketStore holds the current market snapshot
type MarketStore struct {
	current atomic.Pointer[marketSnapshot]
}

// NewMarketStore creates an empty store
func NewMarketStore() *MarketStore {
	s := &MarketStore{}
	s.current.Store(&marketSnapshot{prices: map[string]types.PriceSnapshot{}})
	return s
}

// Price returns the snapshot for symbol
func (s *MarketStore) Price(symbol string) (types.PriceSnapshot, bool) {
	snap, ok := s.current.Load().prices[symbol]
	return snap, ok
}

// Instruments returns the listed instruments
func (s *MarketStore) Instruments() []types.Instrument {
	return s.current.Load().instruments
}

// UpdatedAt returns when the current snapshot was installed
func (s *MarketStore) UpdatedAt() time.Time {
	return s.current.Load().updatedAt
}

// Replace installs a new snapshot. The store keeps the given slice and map;
// callers must not modify them afterwards.
func (s *MarketStore) Replace(instruments []types.Instrument, prices map[string]types.PriceSnapshot) {
	if prices == nil {
		prices = map[string]types.PriceSnapshot{}
	}
	s.current.Store(&marketSnapshot{
		instruments: instruments,
		prices:      prices,
		updatedAt:   time.Now(),
	})
}

// Refresh loads a full snapshot from src and installs it. On error the
// previous snapshot stays in place.
func (s *MarketStore) Refresh(ctx context.Context, src MarketSource) error {
	instruments, err := src.FetchInstruments(ctx)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	prices, err := src.FetchPrices(ctx)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}

	s.Replace(instruments, prices)

	log.Info().
		Int("instruments", len(instruments)).
		Int("prices", len(prices)).
		Msg("📊 Market snapshot refreshed")

	return nil
}
