package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"

	appconfig "github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// BinanceFeed streams mark price updates from Binance futures websockets
// into the price cache, one connection per symbol.
type BinanceFeed struct {
	config  appconfig.PriceSourceConfig
	cache   *PriceCache
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	symbols []string
}

// NewBinanceFeed constructs a feed for the configured symbols.
func NewBinanceFeed(cfg appconfig.PriceSourceConfig, cache *PriceCache) *BinanceFeed {
	return &BinanceFeed{
		config:  cfg,
		cache:   cache,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
		symbols: cfg.Symbols,
	}
}

// Start launches websocket workers per symbol.
func (f *BinanceFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("binance price feed already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	if !f.config.Enabled {
		return fmt.Errorf("binance price feed disabled via configuration")
	}
	if len(f.symbols) == 0 {
		return fmt.Errorf("no symbols configured for binance price feed")
	}

	for _, sym := range f.symbols {
		symbol := strings.ToUpper(sym)
		f.wg.Add(1)
		go f.streamSymbol(symbol)
	}

	f.log.WithComponent("binance_price_feed").WithFields(logger.Fields{
		"symbols": f.symbols,
	}).Info("binance price feed started")
	return nil
}

// Stop waits for all websocket workers to exit.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("binance_price_feed").Info("stopping binance price feed")
	f.wg.Wait()
	f.log.WithComponent("binance_price_feed").Info("binance price feed stopped")
}

type binanceMarkPricePayload struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	MarkPrice  string `json:"p"`
	IndexPrice string `json:"i"`
}

func (f *BinanceFeed) streamSymbol(symbol string) {
	defer f.wg.Done()

	baseURL := strings.TrimSpace(f.config.URL)
	if baseURL == "" {
		baseURL = futures.BaseWsMainUrl
	}
	baseURL = strings.TrimRight(baseURL, "/")

	reconnect := f.config.ReconnectDelay
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}

	endpoint := fmt.Sprintf("%s/%s@markPrice@1s", baseURL, strings.ToLower(symbol))

	log := f.log.WithComponent("binance_price_feed").WithFields(logger.Fields{
		"symbol":   symbol,
		"endpoint": endpoint,
	})

	dialer := websocket.Dialer{}
	for {
		if f.ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.Dial(endpoint, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect to binance mark-price websocket")
			select {
			case <-time.After(reconnect):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				log.WithError(err).Warn("binance mark-price stream error, reconnecting")
				break
			}
			f.handleMessage(symbol, raw)
		}

		select {
		case <-time.After(reconnect):
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *BinanceFeed) handleMessage(symbol string, raw []byte) {
	var payload binanceMarkPricePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		f.log.WithComponent("binance_price_feed").WithError(err).Debug("failed to decode binance mark-price payload")
		return
	}

	price := parseFloat(payload.IndexPrice)
	if price <= 0 {
		price = parseFloat(payload.MarkPrice)
	}
	if price <= 0 {
		return
	}

	observed := time.Now().UTC()
	if payload.EventTime > 0 {
		observed = time.UnixMilli(payload.EventTime).UTC()
	}

	f.cache.Put(models.TickerPrice{
		Symbol:     BaseSymbol(symbol),
		Source:     "binance_ws",
		Price:      price,
		ObservedAt: observed,
	})
}

func parseFloat(v string) float64 {
	if v == "" {
		return 0
	}
	val, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return val
}
