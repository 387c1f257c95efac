package deposit

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/0xArcturus/gmx-synthetics/internal/bank"
	"github.com/0xArcturus/gmx-synthetics/internal/callback"
	"github.com/0xArcturus/gmx-synthetics/internal/chain"
	"github.com/0xArcturus/gmx-synthetics/internal/channel"
	"github.com/0xArcturus/gmx-synthetics/internal/store"
	"github.com/0xArcturus/gmx-synthetics/models"
)

var (
	wethAddr = models.Address("0x82af49447d8a07e3bd95bd0d56f35241523fbab1")
	usdcAddr = models.Address("0xaf88d065e77c8cc2239327c5edb3a432268e5831")
	account  = models.Address("0x00000000000000000000000000000000000000aa")
)

func testMarket() models.Market {
	return models.Market{
		MarketToken: models.Address("0x000000000000000000000000000000000000beef"),
		IndexToken:  wethAddr,
		LongToken:   wethAddr,
		ShortToken:  usdcAddr,
		IndexSymbol: "WETH",
		LongSymbol:  "WETH",
		ShortSymbol: "USDC",
		ReserveFactor: models.ReserveFactor{
			Numerator:   1,
			Denominator: 1,
		},
	}
}

type fixture struct {
	store    *store.DepositStore
	markets  *MarketSet
	bank     *bank.Bank
	chain    *chain.SimulatedChain
	channels *channel.Channels
	handler  *Handler
	executor *Executor
	market   models.Market
}

func newFixture(t *testing.T, market models.Market) *fixture {
	t.Helper()

	st := store.NewDepositStore()
	markets := NewMarketSet([]models.Market{market})
	bk := bank.New()
	blocks := chain.NewSimulatedChain(time.Hour)
	channels := channel.NewChannels(4)

	return &fixture{
		store:    st,
		markets:  markets,
		bank:     bk,
		chain:    blocks,
		channels: channels,
		handler:  NewHandler(st, markets, bk, blocks),
		executor: NewExecutor(st, markets, bk, callback.NewRegistry(), channels),
		market:   market,
	}
}

// snapshotAt builds oracle params attesting ETH at $5000 and USDC at $1 for
// the given block.
func snapshotAt(block uint64) *models.OracleParams {
	return &models.OracleParams{
		OracleBlockNumber: block,
		Tokens: []models.TokenPriceParams{
			{
				Token:      wethAddr,
				OracleType: models.OracleTypeDefault,
				Precision:  4,
				MinPrice:   big.NewInt(5000_0000_0000),
				MaxPrice:   big.NewInt(5000_0000_0000),
			},
			{
				Token:      usdcAddr,
				OracleType: models.OracleTypeDefault,
				Precision:  16,
				MinPrice:   big.NewInt(1_0000_0000),
				MaxPrice:   big.NewInt(1_0000_0000),
			},
		},
	}
}

func oneEth() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func usdcUnits(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil)
	return out.Mul(out, big.NewInt(n))
}

func TestCreateDepositDefaults(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:           f.market.MarketToken,
		LongTokenAmount:  oneEth(),
		ShortTokenAmount: usdcUnits(1000),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	dep, err := f.store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if dep.Receiver != account {
		t.Errorf("receiver should default to the account, got %s", dep.Receiver)
	}
	if dep.UpdatedAtBlock != f.chain.CurrentBlock() {
		t.Errorf("deposit not pinned to current block: %d vs %d", dep.UpdatedAtBlock, f.chain.CurrentBlock())
	}
	if dep.MinMarketTokens.Sign() != 0 {
		t.Errorf("min market tokens should default to zero, got %v", dep.MinMarketTokens)
	}

	if got := f.bank.EscrowBalance(wethAddr); got.Cmp(oneEth()) != 0 {
		t.Errorf("long escrow not recorded: %v", got)
	}
	if got := f.bank.EscrowBalance(usdcAddr); got.Cmp(usdcUnits(1000)) != 0 {
		t.Errorf("short escrow not recorded: %v", got)
	}
}

func TestCreateDepositValidation(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	cases := []struct {
		name    string
		account models.Address
		params  models.CreateDepositParams
		wantErr error
	}{
		{
			name:    "zero account",
			account: models.ZeroAddress,
			params:  models.CreateDepositParams{Market: f.market.MarketToken, LongTokenAmount: oneEth()},
			wantErr: models.ErrInvalidAmount,
		},
		{
			name:    "unknown market",
			account: account,
			params:  models.CreateDepositParams{Market: models.Address("0xdead"), LongTokenAmount: oneEth()},
			wantErr: models.ErrInvalidMarket,
		},
		{
			name:    "both amounts zero",
			account: account,
			params:  models.CreateDepositParams{Market: f.market.MarketToken},
			wantErr: models.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			account: account,
			params:  models.CreateDepositParams{Market: f.market.MarketToken, LongTokenAmount: big.NewInt(-1)},
			wantErr: models.ErrInvalidAmount,
		},
		{
			name:    "negative execution fee",
			account: account,
			params: models.CreateDepositParams{
				Market:          f.market.MarketToken,
				LongTokenAmount: oneEth(),
				ExecutionFee:    big.NewInt(-1),
			},
			wantErr: models.ErrInvalidAmount,
		},
	}

	for _, c := range cases {
		if _, err := f.handler.CreateDeposit(ctx, c.account, c.params); !errors.Is(err, c.wantErr) {
			t.Errorf("%s: got %v, want %v", c.name, err, c.wantErr)
		}
	}
	if f.store.Count() != 0 {
		t.Errorf("rejected deposits must not be stored, have %d", f.store.Count())
	}
}

func TestExecuteDepositSettlesOnce(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:           f.market.MarketToken,
		LongTokenAmount:  oneEth(),
		ShortTokenAmount: usdcUnits(1000),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	dep, err := f.store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	minted, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock))
	if err != nil {
		t.Fatalf("ExecuteDeposit failed: %v", err)
	}

	// $5000 of ETH plus $1000 of USDC into an empty pool mints $6000 of
	// 18-decimals shares.
	want := new(big.Int).Mul(big.NewInt(6000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	if minted.Cmp(want) != 0 {
		t.Errorf("minted %v, want %v", minted, want)
	}
	if got := f.bank.BalanceOf(f.market.MarketToken, account); got.Cmp(want) != 0 {
		t.Errorf("receiver balance %v, want %v", got, want)
	}
	if got := f.bank.Supply(f.market.MarketToken); got.Cmp(want) != 0 {
		t.Errorf("supply %v, want %v", got, want)
	}

	if got := f.bank.PoolAmount(f.market.MarketToken, wethAddr); got.Cmp(oneEth()) != 0 {
		t.Errorf("long pool %v, want %v", got, oneEth())
	}
	if got := f.bank.PoolAmount(f.market.MarketToken, usdcAddr); got.Cmp(usdcUnits(1000)) != 0 {
		t.Errorf("short pool %v, want %v", got, usdcUnits(1000))
	}
	if got := f.bank.EscrowBalance(wethAddr); got.Sign() != 0 {
		t.Errorf("long escrow should be empty after settlement, got %v", got)
	}
	if f.store.Count() != 0 {
		t.Errorf("deposit should be removed after execution, %d remain", f.store.Count())
	}

	select {
	case rec := <-f.channels.Settlements:
		if rec.Key != key || rec.MintedAmount != want.String() {
			t.Errorf("unexpected settlement record: %+v", rec)
		}
	default:
		t.Error("no settlement record emitted")
	}

	// A second attempt must lose the exactly-once race.
	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock)); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second execution should fail with ErrNotFound, got %v", err)
	}
}

func TestExecuteDepositChargesSwapFee(t *testing.T) {
	market := testMarket()
	market.Fees.SwapFeeFactor = 5_000_000 // 0.05%
	f := newFixture(t, market)
	ctx := context.Background()

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:           market.MarketToken,
		ShortTokenAmount: usdcUnits(1000),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ := f.store.Get(key)

	minted, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock))
	if err != nil {
		t.Fatalf("ExecuteDeposit failed: %v", err)
	}

	// $1000 minus the 0.05% fee mints $999.50 of shares.
	want := new(big.Int).Mul(big.NewInt(99950), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if minted.Cmp(want) != 0 {
		t.Errorf("minted %v, want %v", minted, want)
	}
}

func TestExecuteDepositOracleBlockRules(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:          f.market.MarketToken,
		LongTokenAmount: oneEth(),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ := f.store.Get(key)

	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock-1)); !errors.Is(err, models.ErrStaleOracleData) {
		t.Errorf("older snapshot should be stale, got %v", err)
	}
	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock+1)); !errors.Is(err, models.ErrOracleBlockMismatch) {
		t.Errorf("newer snapshot should mismatch, got %v", err)
	}
	if f.store.Count() != 1 {
		t.Error("failed oracle validation must leave the deposit pending")
	}

	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock)); err != nil {
		t.Errorf("matching snapshot should execute, got %v", err)
	}
}

func TestExecuteDepositMissingPrice(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:          f.market.MarketToken,
		LongTokenAmount: oneEth(),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ := f.store.Get(key)

	params := snapshotAt(dep.UpdatedAtBlock)
	params.Tokens = params.Tokens[:1] // drop USDC

	if _, err := f.executor.ExecuteDeposit(ctx, key, params); !errors.Is(err, models.ErrMissingOraclePrice) {
		t.Errorf("expected ErrMissingOraclePrice, got %v", err)
	}
	if f.store.Count() != 1 {
		t.Error("missing price must leave the deposit pending")
	}
}

func TestExecuteDepositMinOutput(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	// Ask for more shares than $5000 can mint.
	min := new(big.Int).Mul(big.NewInt(5001), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:          f.market.MarketToken,
		LongTokenAmount: oneEth(),
		MinMarketTokens: min,
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ := f.store.Get(key)

	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock)); !errors.Is(err, models.ErrInsufficientOutputAmount) {
		t.Errorf("expected ErrInsufficientOutputAmount, got %v", err)
	}
	if f.store.Count() != 1 {
		t.Error("failed min-output check must leave the deposit pending")
	}
	if got := f.bank.Supply(f.market.MarketToken); got.Sign() != 0 {
		t.Errorf("nothing should be minted, supply %v", got)
	}
}

func TestSecondDepositMintsProportionally(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	first, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:          f.market.MarketToken,
		LongTokenAmount: oneEth(),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ := f.store.Get(first)
	if _, err := f.executor.ExecuteDeposit(ctx, first, snapshotAt(dep.UpdatedAtBlock)); err != nil {
		t.Fatalf("first execution failed: %v", err)
	}

	other := models.Address("0x00000000000000000000000000000000000000bb")
	second, err := f.handler.CreateDeposit(ctx, other, models.CreateDepositParams{
		Market:           f.market.MarketToken,
		ShortTokenAmount: usdcUnits(2500),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ = f.store.Get(second)

	minted, err := f.executor.ExecuteDeposit(ctx, second, snapshotAt(dep.UpdatedAtBlock))
	if err != nil {
		t.Fatalf("second execution failed: %v", err)
	}

	// The pool is worth $5000 with 5000e18 shares, so $2500 mints 2500e18.
	want := new(big.Int).Mul(big.NewInt(2500), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	if minted.Cmp(want) != 0 {
		t.Errorf("minted %v, want %v", minted, want)
	}
	if got := f.bank.BalanceOf(f.market.MarketToken, other); got.Cmp(want) != 0 {
		t.Errorf("receiver balance %v, want %v", got, want)
	}
}

func TestCancelDepositRefunds(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:           f.market.MarketToken,
		LongTokenAmount:  oneEth(),
		ShortTokenAmount: usdcUnits(100),
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	if err := f.handler.CancelDeposit(ctx, key); err != nil {
		t.Fatalf("CancelDeposit failed: %v", err)
	}

	if got := f.bank.EscrowBalance(wethAddr); got.Sign() != 0 {
		t.Errorf("long escrow not refunded: %v", got)
	}
	if got := f.bank.EscrowBalance(usdcAddr); got.Sign() != 0 {
		t.Errorf("short escrow not refunded: %v", got)
	}
	if f.store.Count() != 0 {
		t.Error("cancelled deposit should be removed")
	}

	if err := f.handler.CancelDeposit(ctx, key); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second cancel should fail with ErrNotFound, got %v", err)
	}

	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(1)); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("executing a cancelled deposit should fail with ErrNotFound, got %v", err)
	}
}

type recordingTarget struct {
	calls chan string
}

func (r *recordingTarget) AfterDepositExecution(ctx context.Context, key string, dep *models.Deposit) error {
	r.calls <- key
	return nil
}

func TestExecuteDepositNotifiesCallback(t *testing.T) {
	f := newFixture(t, testMarket())
	ctx := context.Background()

	contract := models.Address("0x000000000000000000000000000000000000cccc")
	target := &recordingTarget{calls: make(chan string, 1)}

	registry := callback.NewRegistry()
	registry.Register(contract, target)
	f.executor = NewExecutor(f.store, f.markets, f.bank, registry, f.channels)

	key, err := f.handler.CreateDeposit(ctx, account, models.CreateDepositParams{
		Market:           f.market.MarketToken,
		LongTokenAmount:  oneEth(),
		CallbackContract: contract,
		CallbackGasLimit: 2_000_000,
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	dep, _ := f.store.Get(key)

	if _, err := f.executor.ExecuteDeposit(ctx, key, snapshotAt(dep.UpdatedAtBlock)); err != nil {
		t.Fatalf("ExecuteDeposit failed: %v", err)
	}

	select {
	case got := <-target.calls:
		if got != key {
			t.Errorf("callback received key %s, want %s", got, key)
		}
	case <-time.After(time.Second):
		t.Error("callback target was never notified")
	}
}
