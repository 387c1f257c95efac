package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/models"
)

func TestValidateBlock(t *testing.T) {
	cases := []struct {
		name    string
		params  *models.OracleParams
		wantErr error
	}{
		{"nil params", nil, models.ErrOracleBlockMismatch},
		{"earlier block", &models.OracleParams{OracleBlockNumber: 9}, models.ErrStaleOracleData},
		{"later block", &models.OracleParams{OracleBlockNumber: 11}, models.ErrOracleBlockMismatch},
		{"matching block", &models.OracleParams{OracleBlockNumber: 10}, nil},
	}

	for _, c := range cases {
		err := ValidateBlock(c.params, 10)
		if c.wantErr == nil {
			if err != nil {
				t.Errorf("%s: unexpected error %v", c.name, err)
			}
			continue
		}
		if !errors.Is(err, c.wantErr) {
			t.Errorf("%s: got %v, want %v", c.name, err, c.wantErr)
		}
	}
}

func TestPriceCacheQuote(t *testing.T) {
	cache := NewPriceCache()
	now := time.Now().UTC()

	cache.Put(models.TickerPrice{Symbol: "eth", Source: "a", Price: 5000, ObservedAt: now})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "b", Price: 5010, ObservedAt: now})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "c", Price: 5002, ObservedAt: now})

	q, err := cache.Quote("ETH", time.Minute)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.Min != 5000 || q.Max != 5010 || q.Median != 5002 {
		t.Errorf("unexpected quote: %+v", q)
	}
	if q.Sources != 3 {
		t.Errorf("expected 3 sources, got %d", q.Sources)
	}
}

func TestPriceCacheEvenMedian(t *testing.T) {
	cache := NewPriceCache()
	now := time.Now().UTC()

	cache.Put(models.TickerPrice{Symbol: "BTC", Source: "a", Price: 100, ObservedAt: now})
	cache.Put(models.TickerPrice{Symbol: "BTC", Source: "b", Price: 102, ObservedAt: now})

	q, err := cache.Quote("BTC", time.Minute)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.Median != 101 {
		t.Errorf("expected median 101, got %v", q.Median)
	}
}

func TestPriceCacheStaleness(t *testing.T) {
	cache := NewPriceCache()

	cache.Put(models.TickerPrice{
		Symbol: "ETH", Source: "a", Price: 5000,
		ObservedAt: time.Now().Add(-time.Hour),
	})
	if _, err := cache.Quote("ETH", time.Minute); !errors.Is(err, models.ErrMissingOraclePrice) {
		t.Errorf("stale observation should not quote, got %v", err)
	}

	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: 5005, ObservedAt: time.Now()})
	q, err := cache.Quote("ETH", time.Minute)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.Median != 5005 {
		t.Errorf("expected refreshed price, got %v", q.Median)
	}
}

func TestPriceCacheKeepsNewestPerSource(t *testing.T) {
	cache := NewPriceCache()
	now := time.Now().UTC()

	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: 5000, ObservedAt: now})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: 4000, ObservedAt: now.Add(-time.Second)})

	q, err := cache.Quote("ETH", time.Minute)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.Median != 5000 {
		t.Errorf("older observation overwrote newer one: %v", q.Median)
	}
}

func TestPriceCacheIgnoresInvalid(t *testing.T) {
	cache := NewPriceCache()

	cache.Put(models.TickerPrice{Symbol: "", Source: "a", Price: 1})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "", Price: 1})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: 0})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: -5})

	if got := cache.Symbols(); len(got) != 0 {
		t.Errorf("invalid observations should not be stored: %v", got)
	}
}

func TestBaseSymbol(t *testing.T) {
	cases := map[string]string{
		"ETHUSDT":   "ETH",
		"ethusdt":   "ETH",
		"BTCUSD":    "BTC",
		"XBTUSDTM":  "BTC",
		"SOLPERP":   "SOL",
		"AVAXUSDC":  "AVAX",
		"ETH":       "ETH",
		" ETHUSDT ": "ETH",
	}
	for in, want := range cases {
		if got := BaseSymbol(in); got != want {
			t.Errorf("BaseSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFeedSymbol(t *testing.T) {
	cases := map[string]string{
		"WETH": "ETH",
		"WBTC": "BTC",
		"SOL":  "SOL",
		"usdc": "",
		"USDT": "",
		"DAI":  "",
	}
	for in, want := range cases {
		if got := FeedSymbol(in); got != want {
			t.Errorf("FeedSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func snapshotRegistry(t *testing.T) *config.TokenRegistry {
	t.Helper()
	reg, err := config.NewTokenRegistry("hardhat", []config.TokenConfig{
		{Symbol: "WETH", Address: "0x82af49447d8a07e3bd95bd0d56f35241523fbab1", Decimals: 18, WrappedNative: true},
		{Symbol: "USDC", Address: "0xaf88d065e77c8cc2239327c5edb3a432268e5831", Decimals: 6},
	})
	if err != nil {
		t.Fatalf("NewTokenRegistry failed: %v", err)
	}
	return reg
}

func snapshotMarket() models.Market {
	return models.Market{
		MarketToken: models.Address("0xbeef"),
		IndexToken:  models.Address("0x82af49447d8a07e3bd95bd0d56f35241523fbab1"),
		LongToken:   models.Address("0x82af49447d8a07e3bd95bd0d56f35241523fbab1"),
		ShortToken:  models.Address("0xaf88d065e77c8cc2239327c5edb3a432268e5831"),
		IndexSymbol: "WETH",
		LongSymbol:  "WETH",
		ShortSymbol: "USDC",
	}
}

func TestBuildParams(t *testing.T) {
	cache := NewPriceCache()
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: 5000, ObservedAt: time.Now()})

	builder := NewSnapshotBuilder(snapshotRegistry(t), cache, time.Minute)
	market := snapshotMarket()

	params, err := builder.BuildParams(market, 42)
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	if params.OracleBlockNumber != 42 {
		t.Errorf("snapshot not pinned to the requested block: %d", params.OracleBlockNumber)
	}
	if len(params.Tokens) != 2 {
		t.Fatalf("expected 2 token entries, got %d", len(params.Tokens))
	}

	eth, ok := params.PriceFor(market.LongToken)
	if !ok {
		t.Fatal("no entry for the long token")
	}
	// 30 USD decimals minus 18 token decimals minus 8 raw decimals.
	if eth.Precision != 4 {
		t.Errorf("unexpected precision for WETH: %d", eth.Precision)
	}
	if eth.MinPrice.Cmp(big.NewInt(5000_0000_0000)) != 0 {
		t.Errorf("unexpected raw price: %v", eth.MinPrice)
	}

	usdc, ok := params.PriceFor(market.ShortToken)
	if !ok {
		t.Fatal("no entry for the short token")
	}
	if usdc.Precision != 16 {
		t.Errorf("unexpected precision for USDC: %d", usdc.Precision)
	}
	// Stablecoins are attested at exactly one dollar.
	if usdc.MinPrice.Cmp(big.NewInt(1_0000_0000)) != 0 || usdc.MaxPrice.Cmp(usdc.MinPrice) != 0 {
		t.Errorf("unexpected stablecoin attestation: min %v max %v", usdc.MinPrice, usdc.MaxPrice)
	}
}

func TestBuildParamsMissingPrice(t *testing.T) {
	builder := NewSnapshotBuilder(snapshotRegistry(t), NewPriceCache(), time.Minute)

	if _, err := builder.BuildParams(snapshotMarket(), 42); !errors.Is(err, models.ErrMissingOraclePrice) {
		t.Errorf("expected ErrMissingOraclePrice, got %v", err)
	}
}

func TestBuildParamsMinMaxSpread(t *testing.T) {
	cache := NewPriceCache()
	now := time.Now()
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "a", Price: 4990, ObservedAt: now})
	cache.Put(models.TickerPrice{Symbol: "ETH", Source: "b", Price: 5010, ObservedAt: now})

	builder := NewSnapshotBuilder(snapshotRegistry(t), cache, time.Minute)

	params, err := builder.BuildParams(snapshotMarket(), 1)
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	eth, _ := params.PriceFor(models.Address("0x82af49447d8a07e3bd95bd0d56f35241523fbab1"))
	if eth.MinPrice.Cmp(big.NewInt(4990_0000_0000)) != 0 {
		t.Errorf("unexpected min price: %v", eth.MinPrice)
	}
	if eth.MaxPrice.Cmp(big.NewInt(5010_0000_0000)) != 0 {
		t.Errorf("unexpected max price: %v", eth.MaxPrice)
	}
}
