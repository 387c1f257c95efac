package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bybit_connector "github.com/bybit-exchange/bybit.go.api"

	appconfig "github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// BybitFeed subscribes to Bybit linear ticker topics over the public
// websocket and writes mark prices into the price cache.
type BybitFeed struct {
	config    appconfig.PriceSourceConfig
	cache     *PriceCache
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	running   bool
	log       *logger.Log
	symbols   []string
	symbolSet map[string]struct{}
	ws        *bybit_connector.WebSocket
}

// NewBybitFeed creates a feed for the configured symbols.
func NewBybitFeed(cfg appconfig.PriceSourceConfig, cache *PriceCache) *BybitFeed {
	return &BybitFeed{
		config:  cfg,
		cache:   cache,
		log:     logger.GetLogger(),
		symbols: cfg.Symbols,
	}
}

// Start establishes the websocket connection and subscriptions.
func (f *BybitFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("bybit price feed already running")
	}
	f.running = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	if !f.config.Enabled {
		return fmt.Errorf("bybit price feed disabled via configuration")
	}
	if len(f.symbols) == 0 {
		return fmt.Errorf("no symbols configured for bybit price feed")
	}

	f.symbolSet = make(map[string]struct{}, len(f.symbols))
	args := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		symbol := strings.ToUpper(strings.TrimSpace(sym))
		if symbol == "" {
			continue
		}
		f.symbolSet[symbol] = struct{}{}
		args = append(args, fmt.Sprintf("tickers.linear.%s", symbol))
	}
	if len(args) == 0 {
		return fmt.Errorf("no valid symbols configured for bybit price feed")
	}

	wsURL := f.config.URL
	if wsURL == "" {
		wsURL = "wss://stream.bybit.com/v5/public/linear"
	}

	handler := func(message string) error {
		return f.handleMessage(message)
	}

	ws := bybit_connector.NewBybitPublicWebSocket(wsURL, handler)
	if ws == nil {
		return fmt.Errorf("failed to create bybit websocket client")
	}
	if ws.Connect() == nil {
		return fmt.Errorf("failed to connect to bybit websocket")
	}
	if _, err := ws.SendSubscription(args); err != nil {
		return fmt.Errorf("failed to subscribe to bybit tickers: %w", err)
	}

	f.ws = ws
	go f.monitorContext()

	f.log.WithComponent("bybit_price_feed").WithFields(logger.Fields{
		"symbols": f.symbols,
	}).Info("bybit price feed started")
	return nil
}

// Stop disconnects the websocket.
func (f *BybitFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	ws := f.ws
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Disconnect()
	}
	f.log.WithComponent("bybit_price_feed").Info("bybit price feed stopped")
}

func (f *BybitFeed) monitorContext() {
	<-f.ctx.Done()
	f.Stop()
}

type bybitTickerPayload struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  []struct {
		Symbol     string `json:"symbol"`
		LastPrice  string `json:"lastPrice"`
		MarkPrice  string `json:"markPrice"`
		IndexPrice string `json:"indexPrice"`
	} `json:"data"`
}

func (f *BybitFeed) handleMessage(raw string) error {
	var ack struct {
		Op      string `json:"op"`
		Success bool   `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := json.Unmarshal([]byte(raw), &ack); err == nil && ack.Op != "" {
		if !ack.Success {
			f.log.WithComponent("bybit_price_feed").WithFields(logger.Fields{
				"op":      ack.Op,
				"message": ack.RetMsg,
			}).Warn("bybit subscription acknowledgement failure")
		}
		return nil
	}

	var payload bybitTickerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	if !strings.HasPrefix(payload.Topic, "tickers") {
		return nil
	}

	observed := time.Now().UTC()
	if payload.Ts > 0 {
		observed = time.UnixMilli(payload.Ts).UTC()
	}

	for _, entry := range payload.Data {
		symbol := strings.ToUpper(entry.Symbol)
		if len(f.symbolSet) > 0 {
			if _, ok := f.symbolSet[symbol]; !ok {
				continue
			}
		}

		price := parseFloat(entry.IndexPrice)
		if price <= 0 {
			price = parseFloat(entry.MarkPrice)
		}
		if price <= 0 {
			price = parseFloat(entry.LastPrice)
		}
		if price <= 0 {
			continue
		}

		f.cache.Put(models.TickerPrice{
			Symbol:     BaseSymbol(symbol),
			Source:     "bybit_ws",
			Price:      price,
			ObservedAt: observed,
		})
	}
	return nil
}
