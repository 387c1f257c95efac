package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// MarketConfig is one entry of a network's market table. Tokens lists the
// index, long and short token symbols in that order, mirroring the
// deployment profiles.
type MarketConfig struct {
	Tokens        [3]string `yaml:"tokens"`
	ReserveFactor [2]int64  `yaml:"reserve_factor"`

	PositionFeeFactor            int64 `yaml:"position_fee_factor"`
	PositivePositionImpactFactor int64 `yaml:"positive_position_impact_factor"`
	NegativePositionImpactFactor int64 `yaml:"negative_position_impact_factor"`
	PositionImpactExponentFactor int64 `yaml:"position_impact_exponent_factor"`

	SwapFeeFactor            int64 `yaml:"swap_fee_factor"`
	PositiveSwapImpactFactor int64 `yaml:"positive_swap_impact_factor"`
	NegativeSwapImpactFactor int64 `yaml:"negative_swap_impact_factor"`
	SwapImpactExponentFactor int64 `yaml:"swap_impact_exponent_factor"`
}

type marketsFile struct {
	Networks map[string][]MarketConfig `yaml:"networks"`
}

// LoadMarkets reads the market table for a network and resolves every token
// reference against the registry. A market referencing a token that does not
// exist on the network is a configuration error, caught before any market
// becomes usable.
func LoadMarkets(path string, network string, registry *TokenRegistry) ([]models.Market, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markets file: %w", err)
	}

	var file marketsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse markets file: %w", err)
	}

	network = ResolveNetwork(network)
	return BuildMarkets(network, file.Networks[network], registry)
}

// BuildMarkets validates a market table against the token registry and
// returns the usable markets. The network may legitimately have no markets
// configured, in which case the result is empty.
func BuildMarkets(network string, configs []MarketConfig, registry *TokenRegistry) ([]models.Market, error) {
	markets := make([]models.Market, 0, len(configs))
	seen := make(map[models.Address]struct{}, len(configs))

	for _, mc := range configs {
		for _, symbol := range mc.Tokens {
			if _, err := registry.Resolve(symbol); err != nil {
				return nil, fmt.Errorf("market %s uses token that does not exist: %s",
					strings.Join(mc.Tokens[:], ":"), symbol)
			}
		}
		if mc.ReserveFactor[1] == 0 {
			return nil, fmt.Errorf("market %s has a zero reserve factor denominator",
				strings.Join(mc.Tokens[:], ":"))
		}

		index, _ := registry.Resolve(mc.Tokens[0])
		long, _ := registry.Resolve(mc.Tokens[1])
		short, _ := registry.Resolve(mc.Tokens[2])

		market := models.Market{
			MarketToken: marketTokenAddress(network, index, long, short),
			IndexToken:  index,
			LongToken:   long,
			ShortToken:  short,
			IndexSymbol: mc.Tokens[0],
			LongSymbol:  mc.Tokens[1],
			ShortSymbol: mc.Tokens[2],
			ReserveFactor: models.ReserveFactor{
				Numerator:   mc.ReserveFactor[0],
				Denominator: mc.ReserveFactor[1],
			},
			Fees: models.FeeFactors{
				PositionFeeFactor:            mc.PositionFeeFactor,
				PositivePositionImpactFactor: mc.PositivePositionImpactFactor,
				NegativePositionImpactFactor: mc.NegativePositionImpactFactor,
				PositionImpactExponentFactor: mc.PositionImpactExponentFactor,
				SwapFeeFactor:                mc.SwapFeeFactor,
				PositiveSwapImpactFactor:     mc.PositiveSwapImpactFactor,
				NegativeSwapImpactFactor:     mc.NegativeSwapImpactFactor,
				SwapImpactExponentFactor:     mc.SwapImpactExponentFactor,
			},
		}

		if _, dup := seen[market.MarketToken]; dup {
			return nil, fmt.Errorf("duplicate market %s on network %s", market.Name(), network)
		}
		seen[market.MarketToken] = struct{}{}
		markets = append(markets, market)
	}

	return markets, nil
}

// marketTokenAddress derives a stable pool token address from the network
// and the token triple. Deployments on the same network always produce the
// same market token for the same triple.
func marketTokenAddress(network string, index, long, short models.Address) models.Address {
	h := sha256.Sum256([]byte(network + "|" + string(index) + "|" + string(long) + "|" + string(short)))
	return models.Address("0x" + hex.EncodeToString(h[:20]))
}
