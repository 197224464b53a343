package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE REST - 24h ticker statistics
// ═══════════════════════════════════════════════════════════════════════════════

const binanceTimeout = 5 * time.Second

// BinanceREST quotes symbols from the 24h ticker endpoint
type BinanceREST struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceREST creates a Binance REST source
func NewBinanceREST(baseURL string) *BinanceREST {
	return &BinanceREST{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: binanceTimeout},
	}
}

// Name implements ExternalSource
func (b *BinanceREST) Name() string { return "binance" }

// FetchPrice implements ExternalSource
func (b *BinanceREST) FetchPrice(ctx context.Context, symbol string) (types.ExternalPrice, error) {
	pair, ok := binanceSymbol(symbol)
	if !ok {
		return types.ExternalPrice{}, ErrNoPrice
	}

	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", b.baseURL, pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.ExternalPrice{}, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return types.ExternalPrice{}, fmt.Errorf("binance ticker %s: %w", pair, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.ExternalPrice{}, fmt.Errorf("binance ticker %s: %w", pair, err)
	}
	if resp.StatusCode == http.StatusBadRequest {
		// unknown symbol
		return types.ExternalPrice{}, ErrNoPrice
	}
	if resp.StatusCode != http.StatusOK {
		return types.ExternalPrice{}, fmt.Errorf("binance ticker %s: status %d", pair, resp.StatusCode)
	}

	var result struct {
		LastPrice string `json:"lastPrice"`
		Volume    string `json:"volume"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return types.ExternalPrice{}, fmt.Errorf("binance ticker %s: %w", pair, err)
	}

	price, err := decimal.NewFromString(result.LastPrice)
	if err != nil {
		return types.ExternalPrice{}, fmt.Errorf("binance ticker %s: bad price: %w", pair, err)
	}
	volume, err := decimal.NewFromString(result.Volume)
	if err != nil {
		volume = decimal.Zero
	}

	return types.ExternalPrice{
		Symbol:    symbol,
		Price:     price,
		Volume24h: volume,
		Timestamp: time.Now(),
		Source:    b.Name(),
	}, nil
}

// binanceSymbol turns "SUI/USDT" into "SUIUSDT"
func binanceSymbol(symbol string) (string, bool) {
	base, quote, ok := splitSymbol(symbol)
	if !ok {
		return "", false
	}
	return base + quote, true
}
