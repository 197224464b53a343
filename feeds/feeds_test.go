package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/deeparb/types"
)

type stubSource struct {
	name  string
	price types.ExternalPrice
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchPrice(_ context.Context, symbol string) (types.ExternalPrice, error) {
	s.calls.Add(1)
	if s.err != nil {
		return types.ExternalPrice{}, s.err
	}
	p := s.price
	p.Symbol = symbol
	return p, nil
}

func TestExternalFeed_FirstAvailable(t *testing.T) {
	down := &stubSource{name: "down", err: errors.New("connection refused")}
	missing := &stubSource{name: "missing", err: ErrNoPrice}
	up := &stubSource{name: "up", price: types.ExternalPrice{Price: decimal.NewFromFloat(4.25), Source: "up"}}
	never := &stubSource{name: "never", price: types.ExternalPrice{Price: decimal.NewFromInt(1)}}

	feed := NewExternalFeed(time.Second, down, missing, up, never)

	p, ok := feed.Price(context.Background(), "SUI/USDT")

	require.True(t, ok)
	assert.Equal(t, "up", p.Source)
	assert.True(t, p.Price.Equal(decimal.NewFromFloat(4.25)))
	assert.Equal(t, int32(0), never.calls.Load())
}

func TestExternalFeed_Cache(t *testing.T) {
	src := &stubSource{name: "src", price: types.ExternalPrice{Price: decimal.NewFromInt(2)}}
	feed := NewExternalFeed(DefaultCacheTTL, src)

	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	feed.now = func() time.Time { return now }

	_, ok := feed.Price(context.Background(), "SUI/USDT")
	require.True(t, ok)
	_, ok = feed.Price(context.Background(), "SUI/USDT")
	require.True(t, ok)
	assert.Equal(t, int32(1), src.calls.Load(), "second call served from cache")
	assert.Equal(t, 1, feed.CacheSize())

	now = now.Add(DefaultCacheTTL)
	_, ok = feed.Price(context.Background(), "SUI/USDT")
	require.True(t, ok)
	assert.Equal(t, int32(2), src.calls.Load(), "expired entry refetched")

	feed.ClearCache()
	assert.Zero(t, feed.CacheSize())
}

func TestExternalFeed_NoSource(t *testing.T) {
	feed := NewExternalFeed(time.Second, &stubSource{name: "x", err: ErrNoPrice})

	_, ok := feed.Price(context.Background(), "SUI/USDT")

	assert.False(t, ok)
	assert.Zero(t, feed.CacheSize())
}

func TestBinanceREST_FetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "SUIUSDT":
			fmt.Fprint(w, `{"symbol":"SUIUSDT","lastPrice":"4.2500","volume":"123456.7"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
		}
	}))
	defer srv.Close()

	b := NewBinanceREST(srv.URL)

	p, err := b.FetchPrice(context.Background(), "SUI/USDT")
	require.NoError(t, err)
	assert.Equal(t, "SUI/USDT", p.Symbol)
	assert.Equal(t, "binance", p.Source)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("4.25")))
	assert.True(t, p.Volume24h.Equal(decimal.RequireFromString("123456.7")))

	_, err = b.FetchPrice(context.Background(), "FOO/USDT")
	assert.ErrorIs(t, err, ErrNoPrice)

	_, err = b.FetchPrice(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestCoinbaseRates_FetchPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SUI", r.URL.Query().Get("currency"))
		fmt.Fprint(w, `{"data":{"currency":"SUI","rates":{"USD":"4.26","EUR":"3.9"}}}`)
	}))
	defer srv.Close()

	c := NewCoinbaseRates(srv.URL)

	p, err := c.FetchPrice(context.Background(), "SUI/USDT")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("4.26")))
	assert.True(t, p.Volume24h.IsZero())

	_, err = c.FetchPrice(context.Background(), "SUI/JPY")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestIndexerClient_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_pools":
			fmt.Fprint(w, `[
				{"pool_id":"0x1","pool_name":"SUI_USDC","base_asset_symbol":"SUI","base_asset_decimals":9,
				 "quote_asset_symbol":"USDC","quote_asset_decimals":6,"min_size":1,"lot_size":0.1,"tick_size":0.0001},
				{"pool_id":"0x2","pool_name":"","base_asset_symbol":"X","quote_asset_symbol":"Y"}
			]`)
		case "/ticker":
			fmt.Fprint(w, `{
				"SUI_USDC":{"last_price":4.25,"base_volume":1000,"quote_volume":4250,"isFrozen":0},
				"DEEP_SUI":{"last_price":0.236,"base_volume":50,"quote_volume":11.8,"isFrozen":1},
				"WAL_USDC":{"last_price":0,"base_volume":0,"quote_volume":0,"isFrozen":0}
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := NewMarketStore()
	require.NoError(t, store.Refresh(context.Background(), NewIndexerClient(srv.URL)))

	instruments := store.Instruments()
	require.Len(t, instruments, 1)
	assert.Equal(t, "SUI", instruments[0].Base)
	assert.Equal(t, "USDC", instruments[0].Quote)
	assert.Equal(t, int32(9), instruments[0].BasePrecision)

	snap, ok := store.Price("SUI_USDC")
	require.True(t, ok)
	assert.True(t, snap.Price.Equal(decimal.NewFromFloat(4.25)))
	assert.True(t, snap.Volume24h.Equal(decimal.NewFromInt(1000)))

	_, ok = store.Price("DEEP_SUI")
	assert.False(t, ok, "frozen pools are skipped")
	_, ok = store.Price("WAL_USDC")
	assert.False(t, ok, "pools without a price are skipped")
}

func TestMarketStore_RefreshErrorKeepsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewMarketStore()
	store.Replace(
		[]types.Instrument{{Base: "SUI", Quote: "USDC", Symbol: "SUI_USDC"}},
		map[string]types.PriceSnapshot{"SUI_USDC": {Price: decimal.NewFromInt(4)}},
	)

	err := store.Refresh(context.Background(), NewIndexerClient(srv.URL))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load instruments")
	_, ok := store.Price("SUI_USDC")
	assert.True(t, ok)
}

func TestBinanceStream_HandleMessage(t *testing.T) {
	s := NewBinanceStream("wss://example", []string{"SUI/USDT"})
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.FetchPrice(context.Background(), "SUI/USDT")
	assert.ErrorIs(t, err, ErrNoPrice)

	s.handleMessage([]byte(`{"stream":"suiusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1,"s":"SUIUSDT","c":"4.31","v":"999"}}`))
	s.handleMessage([]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"60000","v":"1"}}`))

	p, err := s.FetchPrice(context.Background(), "SUI/USDT")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("4.31")))
	assert.Equal(t, "binance-ws", p.Source)

	now = now.Add(streamStaleAfter + time.Second)
	_, err = s.FetchPrice(context.Background(), "SUI/USDT")
	assert.ErrorIs(t, err, ErrNoPrice, "stale quotes are not served")

	assert.Contains(t, s.streamURL(), "suiusdt@miniTicker")
}
