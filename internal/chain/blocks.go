// Package chain supplies block height to the deposit flow. Deposits are
// pinned to the block observed at creation and may only settle against an
// oracle snapshot for that same block.
package chain

import (
	"context"
	"sync/atomic"
	"time"
)

// BlockSource reports the current block height.
type BlockSource interface {
	CurrentBlock() uint64
}

// SimulatedChain is a block clock that advances height on a fixed interval,
// standing in for a chain client on development networks. Height may also be
// advanced manually, which tests rely on.
type SimulatedChain struct {
	height   atomic.Uint64
	interval time.Duration
	cancel   context.CancelFunc
}

// NewSimulatedChain creates a chain clock starting at height 1.
func NewSimulatedChain(interval time.Duration) *SimulatedChain {
	c := &SimulatedChain{interval: interval}
	c.height.Store(1)
	return c
}

// Start begins advancing height every interval until the context is done.
func (c *SimulatedChain) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.height.Add(1)
			}
		}
	}()
}

// Stop halts the block clock.
func (c *SimulatedChain) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// CurrentBlock returns the current height.
func (c *SimulatedChain) CurrentBlock() uint64 {
	return c.height.Load()
}

// Advance moves the height forward by n blocks.
func (c *SimulatedChain) Advance(n uint64) uint64 {
	return c.height.Add(n)
}
