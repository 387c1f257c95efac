package config

import (
	"os"
	"strings"
)

const (
	networkEnvVar = "SYNTHETICS_NETWORK"

	// Canonical network names, matching the deployment profiles.
	NetworkArbitrum       = "arbitrum"
	NetworkArbitrumGoerli = "arbitrumGoerli"
	NetworkAvalanche      = "avalanche"
	NetworkAvalancheFuji  = "avalancheFuji"
	NetworkHardhat        = "hardhat"
	NetworkLocalhost      = "localhost"
)

var networkAliases = map[string]string{
	"arb":        NetworkArbitrum,
	"arbgoerli":  NetworkArbitrumGoerli,
	"avax":       NetworkAvalanche,
	"fuji":       NetworkAvalancheFuji,
	"avaxfuji":   NetworkAvalancheFuji,
	"local":      NetworkLocalhost,
	"dev":        NetworkLocalhost,
}

var knownNetworks = map[string]struct{}{
	NetworkArbitrum:       {},
	NetworkArbitrumGoerli: {},
	NetworkAvalanche:      {},
	NetworkAvalancheFuji:  {},
	NetworkHardhat:        {},
	NetworkLocalhost:      {},
}

// ResolveNetwork normalises a network name through the alias table. An empty
// name falls back to the SYNTHETICS_NETWORK environment variable and finally
// to localhost.
func ResolveNetwork(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		n = strings.TrimSpace(os.Getenv(networkEnvVar))
	}
	if n == "" {
		return NetworkLocalhost
	}
	if canonical, ok := networkAliases[strings.ToLower(n)]; ok {
		return canonical
	}
	return n
}

// IsKnownNetwork reports whether the name is one of the supported deployment
// networks after alias resolution.
func IsKnownNetwork(name string) bool {
	_, ok := knownNetworks[ResolveNetwork(name)]
	return ok
}

// IsLiveNetwork reports whether the network is a real deployment rather than
// a local development chain. Live networks are stricter about configuration
// errors such as markets referencing unknown tokens.
func IsLiveNetwork(name string) bool {
	switch ResolveNetwork(name) {
	case NetworkArbitrum, NetworkAvalanche:
		return true
	default:
		return false
	}
}
