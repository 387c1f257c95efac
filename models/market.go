package models

import "strings"

// Address identifies an account, token or contract. Addresses are stored in
// their canonical lowercase hex form.
type Address string

// ZeroAddress is the sentinel for "no address". A deposit with a zero
// callback contract has no post-settlement callback.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// IsZero reports whether the address is unset or the zero sentinel.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// Normalize returns the canonical lowercase form of the address.
func (a Address) Normalize() Address {
	return Address(strings.ToLower(string(a)))
}

// ReserveFactor is a ratio pair limiting how much of the pool may back open
// interest, e.g. [2, 1] allows reserves up to 2x the pool.
type ReserveFactor struct {
	Numerator   int64 `json:"numerator" yaml:"numerator"`
	Denominator int64 `json:"denominator" yaml:"denominator"`
}

// FeeFactors holds the optional fee and price-impact configuration of a
// market. All factors are fixed-point values at 10 decimals, so 5_000_000
// is 0.05%. A zero value means the factor is unset and pricing treats it as
// neutral.
type FeeFactors struct {
	PositionFeeFactor            int64 `json:"position_fee_factor" yaml:"position_fee_factor"`
	PositivePositionImpactFactor int64 `json:"positive_position_impact_factor" yaml:"positive_position_impact_factor"`
	NegativePositionImpactFactor int64 `json:"negative_position_impact_factor" yaml:"negative_position_impact_factor"`
	PositionImpactExponentFactor int64 `json:"position_impact_exponent_factor" yaml:"position_impact_exponent_factor"`

	SwapFeeFactor            int64 `json:"swap_fee_factor" yaml:"swap_fee_factor"`
	PositiveSwapImpactFactor int64 `json:"positive_swap_impact_factor" yaml:"positive_swap_impact_factor"`
	NegativeSwapImpactFactor int64 `json:"negative_swap_impact_factor" yaml:"negative_swap_impact_factor"`
	SwapImpactExponentFactor int64 `json:"swap_impact_exponent_factor" yaml:"swap_impact_exponent_factor"`
}

// Market is a pool defined by an index token and a long/short collateral
// pair. Markets are created once at startup from the network profile and are
// immutable afterwards.
type Market struct {
	MarketToken Address `json:"market_token"`
	IndexToken  Address `json:"index_token"`
	LongToken   Address `json:"long_token"`
	ShortToken  Address `json:"short_token"`

	IndexSymbol string `json:"index_symbol"`
	LongSymbol  string `json:"long_symbol"`
	ShortSymbol string `json:"short_symbol"`

	ReserveFactor ReserveFactor `json:"reserve_factor"`
	Fees          FeeFactors    `json:"fees"`
}

// Name returns the conventional "INDEX:LONG:SHORT" market label used in logs.
func (m *Market) Name() string {
	return m.IndexSymbol + ":" + m.LongSymbol + ":" + m.ShortSymbol
}

// Tokens returns the distinct collateral tokens of the market in long, short
// order. Single-token markets (long == short) report the token once.
func (m *Market) Tokens() []Address {
	if m.LongToken == m.ShortToken {
		return []Address{m.LongToken}
	}
	return []Address{m.LongToken, m.ShortToken}
}
