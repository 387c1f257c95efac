package oracle

import (
	"fmt"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// ValidateBlock checks that an oracle snapshot is pinned to the block a
// deposit was created at. Snapshots from an earlier block are stale;
// snapshots from any other block are a mismatch. Either way the deposit
// stays pending and may be retried with correct params.
func ValidateBlock(params *models.OracleParams, updatedAtBlock uint64) error {
	if params == nil {
		return fmt.Errorf("%w: no oracle params supplied", models.ErrOracleBlockMismatch)
	}
	if params.OracleBlockNumber < updatedAtBlock {
		return fmt.Errorf("%w: oracle block %d precedes deposit block %d",
			models.ErrStaleOracleData, params.OracleBlockNumber, updatedAtBlock)
	}
	if params.OracleBlockNumber != updatedAtBlock {
		return fmt.Errorf("%w: oracle block %d, deposit block %d",
			models.ErrOracleBlockMismatch, params.OracleBlockNumber, updatedAtBlock)
	}
	return nil
}
