// Package callback delivers best-effort after-settlement notifications.
// Settlement is final before any callback runs; a failing, panicking or slow
// target can never roll a mint back.
package callback

import (
	"context"
	"sync"
	"time"

	"github.com/0xArcturus/gmx-synthetics/logger"
	"github.com/0xArcturus/gmx-synthetics/models"
)

// Target receives post-settlement notifications for deposits that named its
// contract address at creation.
type Target interface {
	AfterDepositExecution(ctx context.Context, key string, deposit *models.Deposit) error
}

// Registry maps callback contract addresses to their registered targets and
// dispatches notifications bounded by the deposit's callback gas budget.
type Registry struct {
	mu      sync.RWMutex
	targets map[models.Address]Target
	log     *logger.Log

	// gasPerMicrosecond converts a deposit's gas budget into a wall-clock
	// deadline for the notification.
	gasPerMicrosecond uint64
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{
		targets:           make(map[models.Address]Target),
		log:               logger.GetLogger(),
		gasPerMicrosecond: 1000,
	}
}

// Register installs a target for a callback contract address.
func (r *Registry) Register(addr models.Address, target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[addr.Normalize()] = target
}

// Dispatch notifies the deposit's callback contract, if any. Errors and
// panics are logged and swallowed; the call is abandoned once the gas budget
// is exhausted. Dispatch never blocks settlement: it returns after the
// budget at the latest.
func (r *Registry) Dispatch(ctx context.Context, deposit *models.Deposit) {
	if deposit.CallbackContract.IsZero() {
		return
	}

	log := r.log.WithComponent("callback").WithFields(logger.Fields{
		"key":      deposit.Key,
		"contract": string(deposit.CallbackContract),
	})

	if deposit.CallbackGasLimit == 0 {
		log.Debug("callback gas limit is zero, skipping notification")
		return
	}

	r.mu.RLock()
	target, ok := r.targets[deposit.CallbackContract.Normalize()]
	r.mu.RUnlock()
	if !ok {
		log.Warn("no target registered for callback contract")
		return
	}

	budget := time.Duration(deposit.CallbackGasLimit/r.gasPerMicrosecond+1) * time.Microsecond
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logger.Fields{"panic": rec}).Warn("callback target panicked")
				done <- nil
			}
		}()
		done <- target.AfterDepositExecution(callCtx, deposit.Key, deposit)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.WithError(err).Warn("callback target returned error")
			return
		}
		log.Debug("callback delivered")
	case <-callCtx.Done():
		log.Warn("callback abandoned after exhausting gas budget")
	}
}
