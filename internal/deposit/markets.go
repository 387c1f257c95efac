package deposit

import (
	"fmt"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// MarketSet is the immutable collection of usable markets, indexed by market
// token address. It is built once from the network profile at startup.
type MarketSet struct {
	byToken map[models.Address]models.Market
	order   []models.Address
}

// NewMarketSet indexes the given markets.
func NewMarketSet(markets []models.Market) *MarketSet {
	set := &MarketSet{
		byToken: make(map[models.Address]models.Market, len(markets)),
		order:   make([]models.Address, 0, len(markets)),
	}
	for _, m := range markets {
		if _, ok := set.byToken[m.MarketToken]; ok {
			continue
		}
		set.byToken[m.MarketToken] = m
		set.order = append(set.order, m.MarketToken)
	}
	return set
}

// Get resolves a market token address to its market.
func (s *MarketSet) Get(marketToken models.Address) (models.Market, error) {
	m, ok := s.byToken[marketToken]
	if !ok {
		return models.Market{}, fmt.Errorf("%w: %s", models.ErrInvalidMarket, marketToken)
	}
	return m, nil
}

// All returns the markets in configuration order.
func (s *MarketSet) All() []models.Market {
	out := make([]models.Market, 0, len(s.order))
	for _, token := range s.order {
		out = append(out, s.byToken[token])
	}
	return out
}
