package feeds

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXTERNAL PRICE FEED - first available source, short cache
// ═══════════════════════════════════════════════════════════════════════════════

// DefaultCacheTTL is how long an external quote is reused
const DefaultCacheTTL = 5 * time.Second

// ErrNoPrice is returned by a source that has no quote for a symbol
var ErrNoPrice = errors.New("no price available")

// ExternalSource quotes symbols such as "SUI/USDT" on one venue
type ExternalSource interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string) (types.ExternalPrice, error)
}

type cachedPrice struct {
	price     types.ExternalPrice
	fetchedAt time.Time
}

// ExternalFeed asks its sources in order and caches the first answer
type ExternalFeed struct {
	sources []ExternalSource
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cachedPrice

	now func() time.Time
}

// NewExternalFeed creates a feed over the given sources, in priority order
func NewExternalFeed(ttl time.Duration, sources ...ExternalSource) *ExternalFeed {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	log.Info().
		Strs("sources", names).
		Dur("cache_ttl", ttl).
		Msg("🌍 External price feed initialized")

	return &ExternalFeed{
		sources: sources,
		ttl:     ttl,
		cache:   make(map[string]cachedPrice),
		now:     time.Now,
	}
}

// Price returns a quote for symbol, or false when no source has one
func (f *ExternalFeed) Price(ctx context.Context, symbol string) (types.ExternalPrice, bool) {
	if p, ok := f.cached(symbol); ok {
		return p, true
	}

	for _, src := range f.sources {
		p, err := src.FetchPrice(ctx, symbol)
		if err != nil {
			if !errors.Is(err, ErrNoPrice) {
				log.Debug().Err(err).Str("source", src.Name()).Str("symbol", symbol).Msg("External source failed")
			}
			continue
		}
		if !p.Price.IsPositive() {
			continue
		}

		f.mu.Lock()
		f.cache[symbol] = cachedPrice{price: p, fetchedAt: f.now()}
		f.mu.Unlock()
		return p, true
	}

	return types.ExternalPrice{}, false
}

func (f *ExternalFeed) cached(symbol string) (types.ExternalPrice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cache[symbol]
	if !ok || f.now().Sub(c.fetchedAt) >= f.ttl {
		return types.ExternalPrice{}, false
	}
	return c.price, true
}

// ClearCache drops every cached quote
func (f *ExternalFeed) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]cachedPrice)
}

// CacheSize returns the number of cached symbols
func (f *ExternalFeed) CacheSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

// splitSymbol turns "SUI/USDT" into ("SUI", "USDT")
func splitSymbol(symbol string) (base, quote string, ok bool) {
	parts := strings.FieldsFunc(strings.ToUpper(symbol), func(r rune) bool {
		return r == '/' || r == '_' || r == '-'
	})
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
