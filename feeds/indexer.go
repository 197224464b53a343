package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INDEXER CLIENT - reference market pools and tickers over HTTP
// ═══════════════════════════════════════════════════════════════════════════════
//
// GET /get_pools   → pool metadata (one Instrument per pool)
// GET /ticker      → map of pool name → last price and 24h volume
//
// ═══════════════════════════════════════════════════════════════════════════════

const indexerTimeout = 10 * time.Second

// IndexerClient implements MarketSource against the market indexer
type IndexerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIndexerClient creates an indexer client
func NewIndexerClient(baseURL string) *IndexerClient {
	return &IndexerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: indexerTimeout},
	}
}

type indexerPool struct {
	PoolID             string  `json:"pool_id"`
	PoolName           string  `json:"pool_name"`
	BaseAssetSymbol    string  `json:"base_asset_symbol"`
	BaseAssetDecimals  int32   `json:"base_asset_decimals"`
	QuoteAssetSymbol   string  `json:"quote_asset_symbol"`
	QuoteAssetDecimals int32   `json:"quote_asset_decimals"`
	MinSize            float64 `json:"min_size"`
	LotSize            float64 `json:"lot_size"`
	TickSize           float64 `json:"tick_size"`
}

type indexerTicker struct {
	LastPrice   float64 `json:"last_price"`
	BaseVolume  float64 `json:"base_volume"`
	QuoteVolume float64 `json:"quote_volume"`
	IsFrozen    int     `json:"isFrozen"`
}

// FetchInstruments implements MarketSource
func (c *IndexerClient) FetchInstruments(ctx context.Context) ([]types.Instrument, error) {
	var pools []indexerPool
	if err := c.getJSON(ctx, "/get_pools", &pools); err != nil {
		return nil, err
	}

	instruments := make([]types.Instrument, 0, len(pools))
	for _, p := range pools {
		if p.PoolName == "" || p.BaseAssetSymbol == "" || p.QuoteAssetSymbol == "" {
			continue
		}
		instruments = append(instruments, types.Instrument{
			Base:           p.BaseAssetSymbol,
			Quote:          p.QuoteAssetSymbol,
			Symbol:         p.PoolName,
			PoolID:         p.PoolID,
			MinTradeSize:   decimal.NewFromFloat(p.MinSize),
			LotSize:        decimal.NewFromFloat(p.LotSize),
			TickSize:       decimal.NewFromFloat(p.TickSize),
			BasePrecision:  p.BaseAssetDecimals,
			QuotePrecision: p.QuoteAssetDecimals,
		})
	}

	log.Debug().Int("pools", len(instruments)).Msg("Loaded pools")
	return instruments, nil
}

// FetchPrices implements MarketSource. Frozen pools and pools without a
// last price are left out.
func (c *IndexerClient) FetchPrices(ctx context.Context) (map[string]types.PriceSnapshot, error) {
	var tickers map[string]indexerTicker
	if err := c.getJSON(ctx, "/ticker", &tickers); err != nil {
		return nil, err
	}

	now := time.Now()
	prices := make(map[string]types.PriceSnapshot, len(tickers))
	for name, t := range tickers {
		if t.IsFrozen != 0 || t.LastPrice <= 0 {
			continue
		}
		prices[name] = types.PriceSnapshot{
			Price:     decimal.NewFromFloat(t.LastPrice),
			Bid:       decimal.Zero,
			Ask:       decimal.Zero,
			Volume24h: decimal.NewFromFloat(t.BaseVolume),
			Change24h: decimal.Zero,
			Timestamp: now,
		}
	}
	return prices, nil
}

func (c *IndexerClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, truncateBody(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
