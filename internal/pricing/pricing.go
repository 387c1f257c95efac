// Package pricing implements the deterministic deposit pricing math. USD
// values are fixed-point integers at 30 decimals; an oracle price is raised
// to that precision with its per-token precision exponent, so
//
//	usd(amount) = amount * rawPrice * 10^precision
//
// holds for amounts in native token units. Market pool tokens use 18
// decimals. The same inputs always produce the same mint amount; there is no
// hidden state.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// USDDecimals is the fixed-point precision of USD values.
const USDDecimals = 30

// MarketTokenDecimals is the precision of minted pool shares.
const MarketTokenDecimals = 18

var (
	// usdToShares converts a 30-decimal USD value into 18-decimal pool
	// shares when the pool is empty.
	usdToShares = new(big.Int).Exp(big.NewInt(10), big.NewInt(USDDecimals-MarketTokenDecimals), nil)

	// FactorPrecision is the fixed-point base of fee and impact factors,
	// 10 decimals: a factor of 5_000_000 is 0.05%.
	FactorPrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)
)

// AdjustedMinPrice returns the token's attested minimum price raised to USD
// precision.
func AdjustedMinPrice(tp models.TokenPriceParams) *big.Int {
	return adjust(tp.MinPrice, tp.Precision)
}

// AdjustedMaxPrice returns the token's attested maximum price raised to USD
// precision.
func AdjustedMaxPrice(tp models.TokenPriceParams) *big.Int {
	return adjust(tp.MaxPrice, tp.Precision)
}

// MidPrice returns the midpoint of the adjusted min/max pair.
func MidPrice(tp models.TokenPriceParams) *big.Int {
	sum := new(big.Int).Add(AdjustedMinPrice(tp), AdjustedMaxPrice(tp))
	return sum.Rsh(sum, 1)
}

func adjust(raw *big.Int, precision uint32) *big.Int {
	if raw == nil {
		return new(big.Int)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	return scale.Mul(raw, scale)
}

// TokenUSD values an amount of a token at the given adjusted price.
func TokenUSD(amount, adjustedPrice *big.Int) *big.Int {
	if amount == nil || adjustedPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(amount, adjustedPrice)
}

// DepositUSD values the escrowed long/short amounts of a deposit using the
// attested minimum prices, the conservative side for incoming collateral.
func DepositUSD(longAmount, shortAmount *big.Int, longPrice, shortPrice models.TokenPriceParams) *big.Int {
	usd := TokenUSD(longAmount, AdjustedMinPrice(longPrice))
	return usd.Add(usd, TokenUSD(shortAmount, AdjustedMinPrice(shortPrice)))
}

// PoolValueUSD values the market's pool holdings at mid prices.
func PoolValueUSD(longPoolAmount, shortPoolAmount *big.Int, longPrice, shortPrice models.TokenPriceParams) *big.Int {
	usd := TokenUSD(longPoolAmount, MidPrice(longPrice))
	return usd.Add(usd, TokenUSD(shortPoolAmount, MidPrice(shortPrice)))
}

// ApplyFactor returns value scaled by a fixed-point factor.
func ApplyFactor(value *big.Int, factor int64) *big.Int {
	if factor == 0 || value == nil || value.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(value, big.NewInt(factor))
	return out.Quo(out, FactorPrecision)
}

// SwapFeeUSD computes the fee charged on a deposit's USD value from the
// market's swap fee factor. An unset factor is neutral.
func SwapFeeUSD(depositUSD *big.Int, market *models.Market) *big.Int {
	return ApplyFactor(depositUSD, market.Fees.SwapFeeFactor)
}

// MarketTokenMintAmount converts a deposit's net USD value into pool shares.
// With an empty pool one USD mints one share; afterwards shares are priced
// by the pool value so later depositors cannot dilute earlier ones.
func MarketTokenMintAmount(depositUSD, poolValueUSD, supply *big.Int) (*big.Int, error) {
	if depositUSD == nil || depositUSD.Sign() < 0 {
		return nil, fmt.Errorf("%w: deposit usd %v", models.ErrInvalidAmount, depositUSD)
	}

	if supply == nil || supply.Sign() == 0 {
		return new(big.Int).Quo(depositUSD, usdToShares), nil
	}

	if poolValueUSD == nil || poolValueUSD.Sign() <= 0 {
		// Shares exist but the pool values to zero; minting against it
		// would be unbounded.
		return nil, fmt.Errorf("market has supply %v but zero pool value", supply)
	}

	out := new(big.Int).Mul(depositUSD, supply)
	return out.Quo(out, poolValueUSD), nil
}
