package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"golang.org/x/time/rate"

	appconfig "github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// KucoinFeed polls contract mark prices from the KuCoin futures REST API.
type KucoinFeed struct {
	config    appconfig.PriceSourceConfig
	cache     *PriceCache
	marketAPI futuresmarket.MarketAPI

	ctx context.Context
	wg  *sync.WaitGroup
	mu  sync.RWMutex

	log      *logger.Log
	running  bool
	symbols  []string
	limiter  *rate.Limiter
	interval time.Duration
}

// NewKucoinFeed creates a polling feed for the configured symbols.
func NewKucoinFeed(cfg appconfig.PriceSourceConfig, cache *PriceCache) *KucoinFeed {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = "https://api-futures.kucoin.com"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(cfg.ConnectionPool.MaxIdleConns).
		SetMaxIdleConnsPerHost(cfg.ConnectionPool.MaxIdleConns).
		SetMaxConnsPerHost(cfg.ConnectionPool.MaxConnsPerHost).
		SetIdleConnTimeout(cfg.ConnectionPool.IdleConnTimeout).
		SetTimeout(timeout).
		Build()

	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(baseURL).
		WithTransportOption(transportOpt).
		Build()

	client := api.NewClient(option)
	marketAPI := client.RestService().GetFuturesService().GetMarketAPI()

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &KucoinFeed{
		config:    cfg,
		cache:     cache,
		marketAPI: marketAPI,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		symbols:   cfg.Symbols,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Start schedules polling loops per symbol.
func (f *KucoinFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("kucoin price feed already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	if !f.config.Enabled {
		return fmt.Errorf("kucoin price feed disabled via configuration")
	}
	if len(f.symbols) == 0 {
		return fmt.Errorf("no symbols configured for kucoin price feed")
	}

	interval := f.config.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	f.interval = interval

	for _, symbol := range f.symbols {
		s := strings.ToUpper(symbol)
		f.wg.Add(1)
		go f.pollSymbol(s)
	}

	f.log.WithComponent("kucoin_price_feed").WithFields(logger.Fields{
		"symbols":  f.symbols,
		"interval": interval.String(),
	}).Info("kucoin price feed started")
	return nil
}

// Stop waits for all polling goroutines to finish.
func (f *KucoinFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("kucoin_price_feed").Info("stopping kucoin price feed")
	f.wg.Wait()
	f.log.WithComponent("kucoin_price_feed").Info("kucoin price feed stopped")
}

func (f *KucoinFeed) pollSymbol(symbol string) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.fetchOnce(symbol); err != nil {
			f.log.WithComponent("kucoin_price_feed").WithFields(logger.Fields{
				"symbol": symbol,
			}).WithError(err).Debug("failed to fetch kucoin mark price")
		}

		select {
		case <-ticker.C:
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *KucoinFeed) fetchOnce(symbol string) error {
	if err := f.limiter.Wait(f.ctx); err != nil {
		return err
	}

	req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(symbol).Build()
	resp, err := f.marketAPI.GetSymbol(req, f.ctx)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("empty response for symbol %s", symbol)
	}

	price := resp.MarkPrice
	if price <= 0 {
		price = resp.LastTradePrice
	}
	if price <= 0 {
		return nil
	}

	f.cache.Put(models.TickerPrice{
		Symbol:     BaseSymbol(symbol),
		Source:     "kucoin_rest",
		Price:      price,
		ObservedAt: time.Now().UTC(),
	})
	return nil
}
