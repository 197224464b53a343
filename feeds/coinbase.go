package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// CoinbaseRates is a fallback source using the public exchange-rates
// endpoint. It reports no volume and treats USDT quotes as USD.
type CoinbaseRates struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinbaseRates creates a Coinbase source
func NewCoinbaseRates(baseURL string) *CoinbaseRates {
	return &CoinbaseRates{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: binanceTimeout},
	}
}

// Name implements ExternalSource
func (c *CoinbaseRates) Name() string { return "coinbase" }

// FetchPrice implements ExternalSource
func (c *CoinbaseRates) FetchPrice(ctx context.Context, symbol string) (types.ExternalPrice, error) {
	base, quote, ok := splitSymbol(symbol)
	if !ok {
		return types.ExternalPrice{}, ErrNoPrice
	}
	if quote == "USDT" || quote == "USDC" {
		quote = "USD"
	}

	url := fmt.Sprintf("%s/v2/exchange-rates?currency=%s", c.baseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.ExternalPrice{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.ExternalPrice{}, fmt.Errorf("coinbase rates %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.ExternalPrice{}, fmt.Errorf("coinbase rates %s: status %d", base, resp.StatusCode)
	}

	var result struct {
		Data struct {
			Rates map[string]string `json:"rates"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.ExternalPrice{}, fmt.Errorf("coinbase rates %s: %w", base, err)
	}

	raw, ok := result.Data.Rates[quote]
	if !ok {
		return types.ExternalPrice{}, ErrNoPrice
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return types.ExternalPrice{}, fmt.Errorf("coinbase rates %s: bad rate: %w", base, err)
	}

	return types.ExternalPrice{
		Symbol:    symbol,
		Price:     price,
		Volume24h: decimal.Zero,
		Timestamp: time.Now(),
		Source:    c.Name(),
	}, nil
}
