package models

import "errors"

// Caller errors: rejected synchronously at create, never retried.
var (
	ErrInvalidMarket = errors.New("invalid market")
	ErrInvalidAmount = errors.New("invalid amount")
)

// State errors: an unknown key, or a completed/duplicate execution attempt.
var ErrNotFound = errors.New("deposit not found")

// Oracle validation errors: execute rejects the snapshot and leaves the
// deposit pending so a corrected retry is possible.
var (
	ErrOracleBlockMismatch = errors.New("oracle block number mismatch")
	ErrStaleOracleData     = errors.New("stale oracle data")
	ErrMissingOraclePrice  = errors.New("missing oracle price")
)

// Settlement errors: terminal for the attempt; the deposit stays pending
// until cancelled or re-executed.
var ErrInsufficientOutputAmount = errors.New("insufficient output amount")

// Registry errors.
var ErrUnknownToken = errors.New("unknown token")
