package deposit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/0xArcturus/gmx-synthetics/internal/bank"
	"github.com/0xArcturus/gmx-synthetics/internal/callback"
	"github.com/0xArcturus/gmx-synthetics/internal/channel"
	"github.com/0xArcturus/gmx-synthetics/internal/oracle"
	"github.com/0xArcturus/gmx-synthetics/internal/pricing"
	"github.com/0xArcturus/gmx-synthetics/internal/store"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// Executor settles pending deposits against block-pinned oracle prices. An
// execution that fails oracle validation or the minimum output check leaves
// the deposit pending; once a deposit is removed from the store it can never
// be executed again.
type Executor struct {
	store     *store.DepositStore
	markets   *MarketSet
	bank      *bank.Bank
	callbacks *callback.Registry
	channels  *channel.Channels
	log       *logger.Log
}

// NewExecutor creates a settlement executor.
func NewExecutor(st *store.DepositStore, markets *MarketSet, bk *bank.Bank, callbacks *callback.Registry, channels *channel.Channels) *Executor {
	return &Executor{
		store:     st,
		markets:   markets,
		bank:      bk,
		callbacks: callbacks,
		channels:  channels,
		log:       logger.GetLogger(),
	}
}

// ExecuteDeposit settles the deposit identified by key using the given oracle
// params. The params' block number must equal the block the deposit was
// created at. Returns the minted market token amount.
func (e *Executor) ExecuteDeposit(ctx context.Context, key string, params *models.OracleParams) (*big.Int, error) {
	dep, err := e.store.Get(key)
	if err != nil {
		return nil, err
	}

	if err := oracle.ValidateBlock(params, dep.UpdatedAtBlock); err != nil {
		return nil, err
	}

	market, err := e.markets.Get(dep.Market)
	if err != nil {
		return nil, err
	}

	longPrice, ok := params.PriceFor(market.LongToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingOraclePrice, market.LongToken)
	}
	shortPrice, ok := params.PriceFor(market.ShortToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingOraclePrice, market.ShortToken)
	}

	longPool := e.bank.PoolAmount(market.MarketToken, market.LongToken)
	shortPool := e.bank.PoolAmount(market.MarketToken, market.ShortToken)
	poolValue := pricing.PoolValueUSD(longPool, shortPool, longPrice, shortPrice)
	supply := e.bank.Supply(market.MarketToken)

	depositUSD := pricing.DepositUSD(dep.LongTokenAmount, dep.ShortTokenAmount, longPrice, shortPrice)
	feeUSD := pricing.SwapFeeUSD(depositUSD, &market)
	netUSD := new(big.Int).Sub(depositUSD, feeUSD)

	mintAmount, err := pricing.MarketTokenMintAmount(netUSD, poolValue, supply)
	if err != nil {
		return nil, err
	}

	if dep.MinMarketTokens.Sign() > 0 && mintAmount.Cmp(dep.MinMarketTokens) < 0 {
		return nil, fmt.Errorf("%w: output %s, min %s",
			models.ErrInsufficientOutputAmount, mintAmount, dep.MinMarketTokens)
	}

	// The remove is the exactly-once barrier: only the caller that wins it
	// settles the deposit.
	removed, err := e.store.Remove(key)
	if err != nil {
		return nil, err
	}

	if removed.LongTokenAmount.Sign() > 0 {
		if err := e.bank.AddPoolAmount(market.MarketToken, market.LongToken, removed.LongTokenAmount); err != nil {
			return nil, fmt.Errorf("move long escrow to pool: %w", err)
		}
	}
	if removed.ShortTokenAmount.Sign() > 0 {
		if err := e.bank.AddPoolAmount(market.MarketToken, market.ShortToken, removed.ShortTokenAmount); err != nil {
			return nil, fmt.Errorf("move short escrow to pool: %w", err)
		}
	}
	if err := e.bank.Mint(market.MarketToken, removed.Receiver, mintAmount); err != nil {
		return nil, fmt.Errorf("mint market tokens: %w", err)
	}

	executedAt := time.Now().UTC()
	e.log.WithComponent("deposit_executor").WithFields(logger.Fields{
		"key":     key,
		"account": string(removed.Account),
		"market":  market.Name(),
		"minted":  mintAmount.String(),
		"usd":     netUSD.String(),
		"block":   params.OracleBlockNumber,
	}).Info("deposit executed")
	logger.IncrementDepositExecuted()

	if e.channels != nil {
		e.channels.SendSettlement(ctx, models.SettlementRecord{
			Key:              key,
			Account:          string(removed.Account),
			Receiver:         string(removed.Receiver),
			Market:           string(market.MarketToken),
			MarketName:       market.Name(),
			LongTokenAmount:  removed.LongTokenAmount.String(),
			ShortTokenAmount: removed.ShortTokenAmount.String(),
			DepositUSD:       depositUSD.String(),
			FeeUSD:           feeUSD.String(),
			MintedAmount:     mintAmount.String(),
			OracleBlock:      params.OracleBlockNumber,
			ExecutedAt:       executedAt,
		})
	}

	if e.callbacks != nil {
		e.callbacks.Dispatch(ctx, removed)
	}

	return mintAmount, nil
}
