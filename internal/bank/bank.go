package bank

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// Bank is the protocol's custody ledger. It tracks escrowed collateral per
// token under the protocol's own escrow account, and the supply and holder
// balances of every market pool token minted at settlement.
//
// The bank deliberately models only the balances the settlement flow needs;
// full ERC20 semantics (allowances, transfers between arbitrary holders)
// stay outside the protocol boundary.
type Bank struct {
	mu sync.RWMutex
	// escrow[token] is the collateral currently held by the protocol.
	escrow map[models.Address]*big.Int
	// balances[marketToken][holder] and supply[marketToken] track minted
	// pool shares.
	balances map[models.Address]map[models.Address]*big.Int
	supply   map[models.Address]*big.Int
	// pools[marketToken][token] is the collateral owned by the market.
	pools map[models.Address]map[models.Address]*big.Int
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{
		escrow:   make(map[models.Address]*big.Int),
		balances: make(map[models.Address]map[models.Address]*big.Int),
		supply:   make(map[models.Address]*big.Int),
		pools:    make(map[models.Address]map[models.Address]*big.Int),
	}
}

// RecordTransferIn credits escrowed collateral. Callers invoke this for the
// out-of-band transfer that must complete before a deposit is created.
func (b *Bank) RecordTransferIn(token models.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: transfer in of %v", models.ErrInvalidAmount, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.escrow[token]
	if !ok {
		cur = new(big.Int)
		b.escrow[token] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// TransferOut debits escrowed collateral, used by the cancellation path to
// refund a deposit. It fails when the escrow balance is insufficient.
func (b *Bank) TransferOut(token models.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: transfer out of %v", models.ErrInvalidAmount, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.escrow[token]
	if !ok || cur.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient escrow balance for %s: have %v, need %v", token, cur, amount)
	}
	cur.Sub(cur, amount)
	return nil
}

// EscrowBalance returns the collateral currently held for token.
func (b *Bank) EscrowBalance(token models.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cur, ok := b.escrow[token]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// Mint credits amount pool shares of marketToken to receiver and grows the
// supply accordingly.
func (b *Bank) Mint(marketToken, receiver models.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: mint of %v", models.ErrInvalidAmount, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	holders, ok := b.balances[marketToken]
	if !ok {
		holders = make(map[models.Address]*big.Int)
		b.balances[marketToken] = holders
	}
	bal, ok := holders[receiver]
	if !ok {
		bal = new(big.Int)
		holders[receiver] = bal
	}
	bal.Add(bal, amount)

	sup, ok := b.supply[marketToken]
	if !ok {
		sup = new(big.Int)
		b.supply[marketToken] = sup
	}
	sup.Add(sup, amount)
	return nil
}

// Supply returns the total minted supply of a market token.
func (b *Bank) Supply(marketToken models.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sup, ok := b.supply[marketToken]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(sup)
}

// BalanceOf returns the pool shares of marketToken held by holder.
func (b *Bank) BalanceOf(marketToken, holder models.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	holders, ok := b.balances[marketToken]
	if !ok {
		return new(big.Int)
	}
	bal, ok := holders[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}
