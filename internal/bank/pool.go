package bank

import (
	"fmt"
	"math/big"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// Pool amounts track the collateral owned by each market after settlement.
// Executed deposits move escrowed collateral into the market's pool; the
// pool backs the market token valuation used by later deposits.

// AddPoolAmount moves amount of token from escrow into the market's pool.
func (b *Bank) AddPoolAmount(marketToken, token models.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: pool credit of %v", models.ErrInvalidAmount, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	esc, ok := b.escrow[token]
	if !ok || esc.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient escrow balance for %s: have %v, need %v", token, esc, amount)
	}
	esc.Sub(esc, amount)

	pools, ok := b.pools[marketToken]
	if !ok {
		pools = make(map[models.Address]*big.Int)
		b.pools[marketToken] = pools
	}
	cur, ok := pools[token]
	if !ok {
		cur = new(big.Int)
		pools[token] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// PoolAmount returns how much of token the market's pool owns.
func (b *Bank) PoolAmount(marketToken, token models.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pools, ok := b.pools[marketToken]
	if !ok {
		return new(big.Int)
	}
	cur, ok := pools[token]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}
