package models

import (
	"math/big"
	"time"
)

// CreateDepositParams carries the caller-supplied inputs of the create
// phase. Optional fields keep their documented defaults when left zero:
//
//	Receiver         defaults to Account
//	CallbackContract defaults to ZeroAddress (no callback)
//	MinMarketTokens  defaults to 0 (accept any settlement output)
//	ShouldConvertETH defaults to false
//	CallbackGasLimit defaults to 0
//
// The long/short escrow amounts must already be in protocol custody before
// the create call; the handler never moves tokens itself.
type CreateDepositParams struct {
	Receiver         Address
	CallbackContract Address
	Market           Address
	MinMarketTokens  *big.Int
	ShouldConvertETH bool
	ExecutionFee     *big.Int
	CallbackGasLimit uint64
	LongTokenAmount  *big.Int
	ShortTokenAmount *big.Int
}

// Deposit is a pending request to convert escrowed long/short collateral
// into market pool tokens. A deposit exists in the store from successful
// create until it is executed or cancelled and is never mutated in between.
type Deposit struct {
	Key              string   `json:"key"`
	Account          Address  `json:"account"`
	Receiver         Address  `json:"receiver"`
	CallbackContract Address  `json:"callback_contract"`
	Market           Address  `json:"market"`
	LongTokenAmount  *big.Int `json:"long_token_amount"`
	ShortTokenAmount *big.Int `json:"short_token_amount"`
	MinMarketTokens  *big.Int `json:"min_market_tokens"`
	ShouldConvertETH bool     `json:"should_convert_eth"`
	ExecutionFee     *big.Int `json:"execution_fee"`
	CallbackGasLimit uint64   `json:"callback_gas_limit"`

	// UpdatedAtBlock pins which oracle snapshot may execute the deposit.
	UpdatedAtBlock uint64    `json:"updated_at_block"`
	CreatedAt      time.Time `json:"created_at"`
}

// SettlementRecord is the archive row emitted after a deposit settles.
type SettlementRecord struct {
	Key              string    `json:"key"`
	Market           string    `json:"market"`
	MarketName       string    `json:"market_name"`
	Account          string    `json:"account"`
	Receiver         string    `json:"receiver"`
	LongTokenAmount  string    `json:"long_token_amount"`
	ShortTokenAmount string    `json:"short_token_amount"`
	MintedAmount     string    `json:"minted_amount"`
	DepositUSD       string    `json:"deposit_usd"`
	FeeUSD           string    `json:"fee_usd"`
	OracleBlock      uint64    `json:"oracle_block"`
	ExecutedAt       time.Time `json:"executed_at"`
}
