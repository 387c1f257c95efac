package pricing

import (
	"math/big"
	"testing"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// ethPrice attests ETH at $5000 with 8 raw decimals and an 18-decimals
// token, so precision is 30 - 18 - 8 = 4.
func ethPrice() models.TokenPriceParams {
	return models.TokenPriceParams{
		Token:     models.Address("0xweth"),
		Precision: 4,
		MinPrice:  big.NewInt(5000_0000_0000), // $5000 at 8 decimals
		MaxPrice:  big.NewInt(5010_0000_0000),
	}
}

// usdcPrice attests USDC at exactly $1 with 8 raw decimals and a 6-decimals
// token, so precision is 30 - 6 - 8 = 16.
func usdcPrice() models.TokenPriceParams {
	return models.TokenPriceParams{
		Token:     models.Address("0xusdc"),
		Precision: 16,
		MinPrice:  big.NewInt(1_0000_0000),
		MaxPrice:  big.NewInt(1_0000_0000),
	}
}

func bigPow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

func TestAdjustedPrices(t *testing.T) {
	eth := ethPrice()

	// 5000e8 * 10^4 = 5000e12: the USD value of one wei of an 18-decimals
	// token priced at $5000.
	want := new(big.Int).Mul(big.NewInt(5000), bigPow10(12))
	if got := AdjustedMinPrice(eth); got.Cmp(want) != 0 {
		t.Errorf("AdjustedMinPrice = %v, want %v", got, want)
	}

	usdc := usdcPrice()
	want = bigPow10(24) // 1e8 * 10^16
	if got := AdjustedMinPrice(usdc); got.Cmp(want) != 0 {
		t.Errorf("AdjustedMinPrice = %v, want %v", got, want)
	}
	if got := AdjustedMaxPrice(usdc); got.Cmp(want) != 0 {
		t.Errorf("AdjustedMaxPrice = %v, want %v", got, want)
	}
}

func TestMidPrice(t *testing.T) {
	eth := ethPrice()
	min := AdjustedMinPrice(eth)
	max := AdjustedMaxPrice(eth)

	want := new(big.Int).Add(min, max)
	want.Rsh(want, 1)
	if got := MidPrice(eth); got.Cmp(want) != 0 {
		t.Errorf("MidPrice = %v, want %v", got, want)
	}
}

func TestTokenUSDWholeToken(t *testing.T) {
	// One whole 18-decimals token at $5000 must value to 5000e30.
	oneEth := bigPow10(18)
	got := TokenUSD(oneEth, AdjustedMinPrice(ethPrice()))

	want := new(big.Int).Mul(big.NewInt(5000), bigPow10(USDDecimals))
	if got.Cmp(want) != 0 {
		t.Errorf("TokenUSD = %v, want %v", got, want)
	}
}

func TestDepositUSDUsesMinPrices(t *testing.T) {
	oneEth := bigPow10(18)
	thousandUSDC := new(big.Int).Mul(big.NewInt(1000), bigPow10(6))

	got := DepositUSD(oneEth, thousandUSDC, ethPrice(), usdcPrice())

	want := new(big.Int).Mul(big.NewInt(6000), bigPow10(USDDecimals))
	if got.Cmp(want) != 0 {
		t.Errorf("DepositUSD = %v, want %v", got, want)
	}
}

func TestApplyFactor(t *testing.T) {
	value := new(big.Int).Mul(big.NewInt(1000), bigPow10(USDDecimals))

	// 5_000_000 at 10 decimals is 0.05%: $1000 -> $0.50.
	got := ApplyFactor(value, 5_000_000)
	want := new(big.Int).Div(bigPow10(USDDecimals), big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Errorf("ApplyFactor = %v, want %v", got, want)
	}

	if got := ApplyFactor(value, 0); got.Sign() != 0 {
		t.Errorf("unset factor should be neutral, got %v", got)
	}
	if got := ApplyFactor(nil, 5_000_000); got.Sign() != 0 {
		t.Errorf("nil value should produce zero, got %v", got)
	}
}

func TestSwapFeeUSD(t *testing.T) {
	market := &models.Market{Fees: models.FeeFactors{SwapFeeFactor: 5_000_000}}
	value := new(big.Int).Mul(big.NewInt(2000), bigPow10(USDDecimals))

	got := SwapFeeUSD(value, market)
	want := new(big.Int).Mul(big.NewInt(1), bigPow10(USDDecimals))
	if got.Cmp(want) != 0 {
		t.Errorf("SwapFeeUSD = %v, want %v", got, want)
	}

	neutral := &models.Market{}
	if got := SwapFeeUSD(value, neutral); got.Sign() != 0 {
		t.Errorf("market without a swap fee should charge nothing, got %v", got)
	}
}

func TestMintAmountEmptyPool(t *testing.T) {
	// $1000 into an empty pool mints 1000 whole shares at 18 decimals.
	usd := new(big.Int).Mul(big.NewInt(1000), bigPow10(USDDecimals))

	got, err := MarketTokenMintAmount(usd, new(big.Int), new(big.Int))
	if err != nil {
		t.Fatalf("MarketTokenMintAmount failed: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(1000), bigPow10(MarketTokenDecimals))
	if got.Cmp(want) != 0 {
		t.Errorf("mint = %v, want %v", got, want)
	}
}

func TestMintAmountProportional(t *testing.T) {
	usd := new(big.Int).Mul(big.NewInt(500), bigPow10(USDDecimals))
	poolValue := new(big.Int).Mul(big.NewInt(1000), bigPow10(USDDecimals))
	supply := new(big.Int).Mul(big.NewInt(1000), bigPow10(MarketTokenDecimals))

	got, err := MarketTokenMintAmount(usd, poolValue, supply)
	if err != nil {
		t.Fatalf("MarketTokenMintAmount failed: %v", err)
	}
	// Half the pool's value mints half the existing supply.
	want := new(big.Int).Mul(big.NewInt(500), bigPow10(MarketTokenDecimals))
	if got.Cmp(want) != 0 {
		t.Errorf("mint = %v, want %v", got, want)
	}
}

func TestMintAmountZeroPoolWithSupply(t *testing.T) {
	usd := bigPow10(USDDecimals)
	supply := bigPow10(MarketTokenDecimals)

	if _, err := MarketTokenMintAmount(usd, new(big.Int), supply); err == nil {
		t.Fatal("expected error for supply backed by a zero-value pool")
	}
}

func TestMintAmountRejectsNegative(t *testing.T) {
	if _, err := MarketTokenMintAmount(big.NewInt(-1), nil, nil); err == nil {
		t.Fatal("expected error for negative deposit usd")
	}
}
