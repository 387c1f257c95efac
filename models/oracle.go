package models

import (
	"math/big"
	"time"
)

// OracleType identifies how a token price was attested. The default type
// covers keeper-signed median prices; other types are reserved.
type OracleType string

const (
	// OracleTypeDefault is the standard one-percent-per-minute keeper feed.
	OracleTypeDefault OracleType = "one-percent-per-minute"
)

// TokenPriceParams is one entry of an oracle snapshot: the attested min/max
// price of a single token. Raw prices are scaled by 10^Precision to reach
// the USD precision used by pricing, so
//
//	usd(amount) = amount * price * 10^Precision
//
// holds for token amounts in native units.
type TokenPriceParams struct {
	Token      Address    `json:"token"`
	OracleType OracleType `json:"oracle_type"`
	Precision  uint32     `json:"precision"`
	MinPrice   *big.Int   `json:"min_price"`
	MaxPrice   *big.Int   `json:"max_price"`
}

// OracleParams is the externally supplied price snapshot consumed by the
// execute phase. OracleBlockNumber must equal the deposit's UpdatedAtBlock.
// Tokens carries exactly one entry per token relevant to the deposit's
// market; the set is never assumed to have a fixed size.
type OracleParams struct {
	OracleBlockNumber uint64             `json:"oracle_block_number"`
	Tokens            []TokenPriceParams `json:"tokens"`
}

// PriceFor returns the snapshot entry for the given token.
func (p *OracleParams) PriceFor(token Address) (TokenPriceParams, bool) {
	for _, tp := range p.Tokens {
		if tp.Token == token {
			return tp, true
		}
	}
	return TokenPriceParams{}, false
}

// TickerPrice is a single observation from one price source, used by the
// keeper to assemble oracle snapshots. Prices are quoted in USD as floats
// and converted to fixed-point min/max pairs when a snapshot is built.
type TickerPrice struct {
	Symbol     string    `json:"symbol"`
	Source     string    `json:"source"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
