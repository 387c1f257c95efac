package oracle

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// PriceCache holds the latest observation per symbol and source. Feeds write
// into the cache concurrently; the keeper reads aggregated quotes out of it
// when assembling oracle snapshots.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]map[string]models.TickerPrice
}

// Quote is the aggregate of all fresh observations of one symbol. Min and
// Max span the sources, Median is the attested settlement price.
type Quote struct {
	Min        float64
	Median     float64
	Max        float64
	Sources    int
	ObservedAt time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices: make(map[string]map[string]models.TickerPrice),
	}
}

// Put stores an observation, replacing any older one from the same source.
func (c *PriceCache) Put(p models.TickerPrice) {
	if p.Symbol == "" || p.Source == "" || p.Price <= 0 {
		return
	}
	symbol := strings.ToUpper(p.Symbol)
	if p.ObservedAt.IsZero() {
		p.ObservedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	bySource, ok := c.prices[symbol]
	if !ok {
		bySource = make(map[string]models.TickerPrice, 4)
		c.prices[symbol] = bySource
	}
	if prev, ok := bySource[p.Source]; ok && prev.ObservedAt.After(p.ObservedAt) {
		return
	}
	bySource[p.Source] = p
}

// Quote aggregates the observations of symbol that are younger than maxAge.
func (c *PriceCache) Quote(symbol string, maxAge time.Duration) (Quote, error) {
	symbol = strings.ToUpper(symbol)
	cutoff := time.Now().Add(-maxAge)

	c.mu.RLock()
	bySource := c.prices[symbol]
	fresh := make([]models.TickerPrice, 0, len(bySource))
	for _, p := range bySource {
		if p.ObservedAt.After(cutoff) {
			fresh = append(fresh, p)
		}
	}
	c.mu.RUnlock()

	if len(fresh) == 0 {
		return Quote{}, fmt.Errorf("%w: no fresh price for %s", models.ErrMissingOraclePrice, symbol)
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Price < fresh[j].Price })

	q := Quote{
		Min:     fresh[0].Price,
		Max:     fresh[len(fresh)-1].Price,
		Sources: len(fresh),
	}
	mid := len(fresh) / 2
	if len(fresh)%2 == 0 {
		q.Median = (fresh[mid-1].Price + fresh[mid].Price) / 2
	} else {
		q.Median = fresh[mid].Price
	}
	for _, p := range fresh {
		if p.ObservedAt.After(q.ObservedAt) {
			q.ObservedAt = p.ObservedAt
		}
	}
	return q, nil
}

// Symbols returns every symbol with at least one observation.
func (c *PriceCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.prices))
	for s := range c.prices {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// BaseSymbol reduces an exchange ticker symbol to the asset it prices, e.g.
// ETHUSDT -> ETH, XBTUSDTM -> BTC. Feeds store observations under the base
// symbol so quotes from different venues aggregate.
func BaseSymbol(exchangeSymbol string) string {
	s := strings.ToUpper(strings.TrimSpace(exchangeSymbol))
	for _, suffix := range []string{"USDTM", "USDM", "USDT", "USDC", "USD", "PERP"} {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	if s == "XBT" {
		return "BTC"
	}
	return s
}
