package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE STREAM - mini-ticker push feed
// ═══════════════════════════════════════════════════════════════════════════════
//
// Keeps the latest mini-ticker per subscribed symbol. As an ExternalSource it
// answers from memory, so the REST source is only hit when the stream is
// stale or down.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	streamStaleAfter     = 10 * time.Second
	streamReconnectDelay = 5 * time.Second
)

type miniTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
}

type streamEnvelope struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// BinanceStream subscribes to mini-ticker streams for a fixed symbol set
type BinanceStream struct {
	wsURL   string
	symbols map[string]string // "SUIUSDT" -> "SUI/USDT"

	mu      sync.RWMutex
	latest  map[string]types.ExternalPrice // keyed by the caller's symbol
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

// NewBinanceStream creates a stream over symbols in "BASE/QUOTE" form
func NewBinanceStream(wsURL string, symbols []string) *BinanceStream {
	m := make(map[string]string, len(symbols))
	for _, s := range symbols {
		if pair, ok := binanceSymbol(s); ok {
			m[pair] = s
		}
	}
	return &BinanceStream{
		wsURL:   wsURL,
		symbols: m,
		latest:  make(map[string]types.ExternalPrice),
		now:     time.Now,
	}
}

// Name implements ExternalSource
func (b *BinanceStream) Name() string { return "binance-ws" }

// FetchPrice implements ExternalSource from the last pushed update
func (b *BinanceStream) FetchPrice(_ context.Context, symbol string) (types.ExternalPrice, error) {
	b.mu.RLock()
	p, ok := b.latest[symbol]
	b.mu.RUnlock()

	if !ok || b.now().Sub(p.Timestamp) > streamStaleAfter {
		return types.ExternalPrice{}, ErrNoPrice
	}
	return p, nil
}

// Start connects and keeps the stream alive until Stop
func (b *BinanceStream) Start() {
	b.mu.Lock()
	if b.running || len(b.symbols) == 0 {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	go b.run()
	log.Info().Int("symbols", len(b.symbols)).Msg("📈 Binance stream started")
}

// Stop closes the connection and waits for the reader to exit
func (b *BinanceStream) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	if b.conn != nil {
		b.conn.Close()
	}
	done := b.doneCh
	b.mu.Unlock()

	<-done
	log.Info().Msg("Binance stream stopped")
}

func (b *BinanceStream) run() {
	defer close(b.doneCh)

	for {
		if err := b.connect(); err != nil {
			log.Error().Err(err).Msg("Binance stream connection failed")
		} else {
			b.readMessages()
		}

		select {
		case <-b.stopCh:
			return
		case <-time.After(streamReconnectDelay):
			log.Warn().Msg("Binance stream disconnected, reconnecting...")
		}
	}
}

func (b *BinanceStream) streamURL() string {
	streams := make([]string, 0, len(b.symbols))
	for pair := range b.symbols {
		streams = append(streams, strings.ToLower(pair)+"@miniTicker")
	}
	return fmt.Sprintf("%s/stream?streams=%s", b.wsURL, strings.Join(streams, "/"))
}

func (b *BinanceStream) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.Dial(b.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		conn.Close()
		return fmt.Errorf("stream stopped")
	}
	b.conn = conn
	b.mu.Unlock()

	log.Info().Msg("🔌 WebSocket connected to Binance")
	return nil
}

func (b *BinanceStream) readMessages() {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			b.mu.RLock()
			running := b.running
			b.mu.RUnlock()
			if running {
				log.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}
		b.handleMessage(message)
	}
}

func (b *BinanceStream) handleMessage(data []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	t := env.Data
	if t.EventType != "24hrMiniTicker" {
		return
	}

	symbol, ok := b.symbols[t.Symbol]
	if !ok {
		return
	}
	price, err := decimal.NewFromString(t.Close)
	if err != nil || !price.IsPositive() {
		return
	}
	volume, err := decimal.NewFromString(t.Volume)
	if err != nil {
		volume = decimal.Zero
	}

	b.mu.Lock()
	b.latest[symbol] = types.ExternalPrice{
		Symbol:    symbol,
		Price:     price,
		Volume24h: volume,
		Timestamp: b.now(),
		Source:    b.Name(),
	}
	b.mu.Unlock()
}
