package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/internal/deposit"
	"github.com/0xArcturus/gmx-synthetics/internal/oracle"
	"github.com/0xArcturus/gmx-synthetics/internal/store"
	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// Keeper polls the store for pending deposits and executes them with oracle
// params pinned to each deposit's creation block. Deposits whose prices are
// not yet observable stay pending and are retried on the next cycle.
type Keeper struct {
	config   appconfig.KeeperConfig
	store    *store.DepositStore
	markets  *deposit.MarketSet
	executor *deposit.Executor
	builder  *oracle.SnapshotBuilder

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	limiter *rate.Limiter
}

// New creates a keeper over the given store, market set and executor.
func New(cfg appconfig.KeeperConfig, st *store.DepositStore, markets *deposit.MarketSet, executor *deposit.Executor, builder *oracle.SnapshotBuilder) *Keeper {
	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Keeper{
		config:   cfg,
		store:    st,
		markets:  markets,
		executor: executor,
		builder:  builder,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Start launches the polling loop.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("keeper already running")
	}
	k.running = true
	k.ctx = ctx
	k.mu.Unlock()

	if !k.config.Enabled {
		return fmt.Errorf("keeper disabled via configuration")
	}

	k.wg.Add(1)
	go k.run()

	k.log.WithComponent("keeper").WithFields(logger.Fields{
		"poll_interval": k.config.PollInterval.String(),
		"batch_size":    k.config.BatchSize,
	}).Info("keeper started")
	return nil
}

// Stop waits for the polling loop to exit.
func (k *Keeper) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	k.mu.Unlock()

	k.log.WithComponent("keeper").Info("stopping keeper")
	k.wg.Wait()
	k.log.WithComponent("keeper").Info("keeper stopped")
}

func (k *Keeper) run() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			k.runCycle()
		}
	}
}

// runCycle attempts one settlement pass over pending deposits.
func (k *Keeper) runCycle() {
	keys := k.store.Pending(k.config.BatchSize)
	for _, key := range keys {
		if k.ctx.Err() != nil {
			return
		}
		if err := k.executeOne(key); err != nil {
			k.logExecutionFailure(key, err)
		}
	}
}

func (k *Keeper) executeOne(key string) error {
	dep, err := k.store.Get(key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Settled or cancelled since the Pending scan.
			return nil
		}
		return err
	}

	market, err := k.markets.Get(dep.Market)
	if err != nil {
		return err
	}

	params, err := k.builder.BuildParams(market, dep.UpdatedAtBlock)
	if err != nil {
		return err
	}

	if err := k.limiter.Wait(k.ctx); err != nil {
		return err
	}

	minted, err := k.executor.ExecuteDeposit(k.ctx, key, params)
	if err != nil {
		return err
	}

	k.log.WithComponent("keeper").WithFields(logger.Fields{
		"key":    key,
		"market": market.Name(),
		"minted": minted.String(),
	}).Debug("deposit settled")
	return nil
}

func (k *Keeper) logExecutionFailure(key string, err error) {
	log := k.log.WithComponent("keeper").WithFields(logger.Fields{"key": key}).WithError(err)

	switch {
	case errors.Is(err, models.ErrMissingOraclePrice):
		// Feeds have not produced a fresh quote yet; retried next cycle.
		log.Debug("deposit waiting for oracle prices")
	case errors.Is(err, models.ErrInsufficientOutputAmount):
		log.Warn("deposit output below minimum, leaving pending")
	case errors.Is(err, models.ErrNotFound):
		log.Debug("deposit already settled")
	default:
		log.Warn("deposit execution failed")
	}
}
