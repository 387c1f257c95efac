package deposit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/0xArcturus/gmx-synthetics/internal/bank"
	"github.com/0xArcturus/gmx-synthetics/internal/chain"
	"github.com/0xArcturus/gmx-synthetics/internal/store"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// Handler records deposit requests during the create phase. It validates the
// request, fills in defaults, pins the current block number and inserts the
// deposit into the store where it waits for a keeper to execute it.
type Handler struct {
	store   *store.DepositStore
	markets *MarketSet
	bank    *bank.Bank
	blocks  chain.BlockSource
	log     *logger.Log
}

// NewHandler creates a deposit handler over the given store, market set,
// token bank and block source.
func NewHandler(st *store.DepositStore, markets *MarketSet, bk *bank.Bank, blocks chain.BlockSource) *Handler {
	return &Handler{
		store:   st,
		markets: markets,
		bank:    bk,
		blocks:  blocks,
		log:     logger.GetLogger(),
	}
}

// CreateDeposit validates params, records the escrowed token amounts and
// inserts a pending deposit. The returned key identifies the deposit for
// execution and cancellation.
func (h *Handler) CreateDeposit(ctx context.Context, account models.Address, params models.CreateDepositParams) (string, error) {
	if account.IsZero() {
		return "", fmt.Errorf("%w: empty account", models.ErrInvalidAmount)
	}

	market, err := h.markets.Get(params.Market)
	if err != nil {
		return "", err
	}

	longAmount := amountOrZero(params.LongTokenAmount)
	shortAmount := amountOrZero(params.ShortTokenAmount)
	if longAmount.Sign() < 0 || shortAmount.Sign() < 0 {
		return "", fmt.Errorf("%w: negative token amount", models.ErrInvalidAmount)
	}
	if longAmount.Sign() == 0 && shortAmount.Sign() == 0 {
		return "", fmt.Errorf("%w: empty deposit amounts", models.ErrInvalidAmount)
	}

	executionFee := amountOrZero(params.ExecutionFee)
	if executionFee.Sign() < 0 {
		return "", fmt.Errorf("%w: negative execution fee", models.ErrInvalidAmount)
	}

	receiver := params.Receiver
	if receiver.IsZero() {
		receiver = account
	}

	dep := &models.Deposit{
		Account:          account,
		Receiver:         receiver,
		CallbackContract: params.CallbackContract,
		Market:           market.MarketToken,
		LongTokenAmount:  longAmount,
		ShortTokenAmount: shortAmount,
		MinMarketTokens:  amountOrZero(params.MinMarketTokens),
		ExecutionFee:     executionFee,
		ShouldConvertETH: params.ShouldConvertETH,
		CallbackGasLimit: params.CallbackGasLimit,
		UpdatedAtBlock:   h.blocks.CurrentBlock(),
		CreatedAt:        time.Now().UTC(),
	}

	if longAmount.Sign() > 0 {
		if err := h.bank.RecordTransferIn(market.LongToken, longAmount); err != nil {
			return "", fmt.Errorf("record long token escrow: %w", err)
		}
	}
	if shortAmount.Sign() > 0 {
		if err := h.bank.RecordTransferIn(market.ShortToken, shortAmount); err != nil {
			return "", fmt.Errorf("record short token escrow: %w", err)
		}
	}

	key := h.store.Insert(dep)

	h.log.WithComponent("deposit_handler").WithFields(logger.Fields{
		"key":     key,
		"account": string(account),
		"market":  market.Name(),
		"long":    longAmount.String(),
		"short":   shortAmount.String(),
		"block":   dep.UpdatedAtBlock,
	}).Info("deposit created")
	logger.IncrementDepositCreated()

	return key, nil
}

// CancelDeposit removes a pending deposit and refunds the escrowed tokens to
// the account. Returns ErrNotFound if the deposit was already executed or
// cancelled.
func (h *Handler) CancelDeposit(ctx context.Context, key string) error {
	dep, err := h.store.Remove(key)
	if err != nil {
		return err
	}

	market, err := h.markets.Get(dep.Market)
	if err != nil {
		return err
	}

	if dep.LongTokenAmount.Sign() > 0 {
		if err := h.bank.TransferOut(market.LongToken, dep.LongTokenAmount); err != nil {
			return fmt.Errorf("refund long token: %w", err)
		}
	}
	if dep.ShortTokenAmount.Sign() > 0 {
		if err := h.bank.TransferOut(market.ShortToken, dep.ShortTokenAmount); err != nil {
			return fmt.Errorf("refund short token: %w", err)
		}
	}

	h.log.WithComponent("deposit_handler").WithFields(logger.Fields{
		"key":     key,
		"account": string(dep.Account),
		"market":  market.Name(),
	}).Info("deposit cancelled")
	logger.IncrementDepositCancelled()

	return nil
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
