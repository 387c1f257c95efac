package oracle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/internal/pricing"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// rawPriceDecimals is the fixed-point scale of raw snapshot prices: a feed
// quote of 5000.0 USD becomes the raw integer 5000e8, and the entry's
// precision exponent lifts it the rest of the way to USD scale.
const rawPriceDecimals = 8

// wrappedBases maps wrapped token symbols to the asset their price tracks.
var wrappedBases = map[string]string{
	"WETH":  "ETH",
	"WBTC":  "BTC",
	"WAVAX": "AVAX",
	"WBNB":  "BNB",
	"WSOL":  "SOL",
}

// stableSymbols are tokens attested at exactly one dollar when no venue
// quotes them directly.
var stableSymbols = map[string]struct{}{
	"USDC":   {},
	"USDC.E": {},
	"USDT":   {},
	"USDT.E": {},
	"DAI":    {},
	"DAI.E":  {},
	"MIM":    {},
	"FRAX":   {},
}

// SnapshotBuilder assembles block-pinned oracle params from the live price
// cache. One builder serves all markets of a network.
type SnapshotBuilder struct {
	registry *config.TokenRegistry
	cache    *PriceCache
	maxAge   time.Duration
}

func NewSnapshotBuilder(registry *config.TokenRegistry, cache *PriceCache, maxAge time.Duration) *SnapshotBuilder {
	return &SnapshotBuilder{
		registry: registry,
		cache:    cache,
		maxAge:   maxAge,
	}
}

// FeedSymbol returns the cache symbol a token's price is read from, or ""
// when the token is a stablecoin attested at one dollar.
func FeedSymbol(tokenSymbol string) string {
	if _, ok := stableSymbols[normalize(tokenSymbol)]; ok {
		return ""
	}
	if base, ok := wrappedBases[normalize(tokenSymbol)]; ok {
		return base
	}
	return normalize(tokenSymbol)
}

func normalize(symbol string) string {
	out := make([]byte, len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// BuildParams builds oracle params for the given market, pinned to
// blockNumber. Every token of the market must have either a fresh cached
// quote or a stablecoin attestation, otherwise ErrMissingOraclePrice is
// returned and nothing is built.
func (b *SnapshotBuilder) BuildParams(market models.Market, blockNumber uint64) (*models.OracleParams, error) {
	tokens := market.Tokens()
	params := &models.OracleParams{
		OracleBlockNumber: blockNumber,
		Tokens:            make([]models.TokenPriceParams, 0, len(tokens)),
	}

	for _, addr := range tokens {
		entry, err := b.tokenPrice(addr)
		if err != nil {
			return nil, err
		}
		params.Tokens = append(params.Tokens, entry)
	}
	return params, nil
}

func (b *SnapshotBuilder) tokenPrice(addr models.Address) (models.TokenPriceParams, error) {
	token, err := b.registry.ByAddress(addr)
	if err != nil {
		return models.TokenPriceParams{}, err
	}

	precision := int(pricing.USDDecimals) - int(token.Decimals) - rawPriceDecimals
	if precision < 0 {
		return models.TokenPriceParams{}, fmt.Errorf("token %s decimals %d exceed price precision range",
			token.Symbol, token.Decimals)
	}

	entry := models.TokenPriceParams{
		Token:      addr,
		OracleType: models.OracleTypeDefault,
		Precision:  uint32(precision),
	}

	feedSymbol := FeedSymbol(token.Symbol)
	if feedSymbol == "" {
		one := rawPrice(1)
		entry.MinPrice = one
		entry.MaxPrice = new(big.Int).Set(one)
		return entry, nil
	}

	quote, err := b.cache.Quote(feedSymbol, b.maxAge)
	if err != nil {
		return models.TokenPriceParams{}, err
	}
	entry.MinPrice = rawPrice(quote.Min)
	entry.MaxPrice = rawPrice(quote.Max)
	if entry.MinPrice.Sign() <= 0 || entry.MaxPrice.Sign() <= 0 {
		return models.TokenPriceParams{}, fmt.Errorf("%w: non-positive quote for %s",
			models.ErrMissingOraclePrice, feedSymbol)
	}
	return entry, nil
}

// rawPrice converts a float USD quote to a raw fixed-point integer with
// rawPriceDecimals fractional digits.
func rawPrice(usd float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(usd), big.NewFloat(1e8))
	out, _ := scaled.Int(nil)
	return out
}
