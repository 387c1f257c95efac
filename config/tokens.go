package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// TokenConfig describes one deployed token on a network.
type TokenConfig struct {
	Symbol        string `yaml:"symbol"`
	Address       string `yaml:"address"`
	Decimals      uint32 `yaml:"decimals"`
	Synthetic     bool   `yaml:"synthetic"`
	WrappedNative bool   `yaml:"wrapped_native"`
}

// tokensFile is the on-disk shape: a token table per network.
type tokensFile struct {
	Networks map[string][]TokenConfig `yaml:"networks"`
}

// TokenRegistry maps token symbols to their deployed configuration for a
// single network. The registry is built once at startup and handed to every
// component that needs symbol resolution; there is no global lookup.
type TokenRegistry struct {
	network string
	bySym   map[string]TokenConfig
	byAddr  map[models.Address]TokenConfig
}

// LoadTokens reads the token table for the given network from path.
func LoadTokens(path, network string) (*TokenRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens file: %w", err)
	}

	var file tokensFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tokens file: %w", err)
	}

	network = ResolveNetwork(network)
	tokens, ok := file.Networks[network]
	if !ok {
		return nil, fmt.Errorf("no token table for network %s", network)
	}

	return NewTokenRegistry(network, tokens)
}

// NewTokenRegistry builds a registry from an explicit token list. Duplicate
// symbols and empty addresses are configuration errors.
func NewTokenRegistry(network string, tokens []TokenConfig) (*TokenRegistry, error) {
	reg := &TokenRegistry{
		network: network,
		bySym:   make(map[string]TokenConfig, len(tokens)),
		byAddr:  make(map[models.Address]TokenConfig, len(tokens)),
	}
	for _, t := range tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token with empty symbol on network %s", network)
		}
		if t.Address == "" {
			return nil, fmt.Errorf("token %s has no address on network %s", t.Symbol, network)
		}
		if _, exists := reg.bySym[t.Symbol]; exists {
			return nil, fmt.Errorf("duplicate token symbol %s on network %s", t.Symbol, network)
		}
		addr := models.Address(t.Address).Normalize()
		t.Address = string(addr)
		reg.bySym[t.Symbol] = t
		reg.byAddr[addr] = t
	}
	return reg, nil
}

// Network returns the network the registry was built for.
func (r *TokenRegistry) Network() string {
	return r.network
}

// Resolve maps a token symbol to its deployed address.
func (r *TokenRegistry) Resolve(symbol string) (models.Address, error) {
	t, ok := r.bySym[symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnknownToken, symbol)
	}
	return models.Address(t.Address), nil
}

// Token returns the full configuration for a symbol.
func (r *TokenRegistry) Token(symbol string) (TokenConfig, error) {
	t, ok := r.bySym[symbol]
	if !ok {
		return TokenConfig{}, fmt.Errorf("%w: %s", models.ErrUnknownToken, symbol)
	}
	return t, nil
}

// ByAddress returns the token configuration for a deployed address.
func (r *TokenRegistry) ByAddress(addr models.Address) (TokenConfig, error) {
	t, ok := r.byAddr[addr.Normalize()]
	if !ok {
		return TokenConfig{}, fmt.Errorf("%w: %s", models.ErrUnknownToken, addr)
	}
	return t, nil
}

// Symbols returns all registered symbols, useful for wiring price feeds.
func (r *TokenRegistry) Symbols() []string {
	out := make([]string, 0, len(r.bySym))
	for s := range r.bySym {
		out = append(out, s)
	}
	return out
}
