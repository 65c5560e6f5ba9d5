package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
// Local resource outcomes (energy, boost) never escalate past the engine
// boundary; callers treat them as silent no-ops or transient UI hints.

var (
	// Energy / boost errors — local, never fatal
	ErrInsufficientEnergy = errors.New("not enough energy to tap")
	ErrBoostOnCooldown    = errors.New("boost is on cooldown")
	ErrEnergyFull         = errors.New("energy already at capacity")

	// Mining errors
	ErrMiningInProgress = errors.New("mining run already in progress")
	ErrMiningNotStarted = errors.New("no mining run in progress")
	ErrMiningNotDone    = errors.New("mining run has not completed yet")

	// Daily reward errors
	ErrAlreadyClaimed = errors.New("daily reward already claimed today")
	ErrNotYetEligible = errors.New("daily reward not yet eligible")
	ErrNothingToClaim = errors.New("no claimable reward entry for today")

	// Reconciliation errors
	ErrFlushInFlight    = errors.New("a flush is already in flight")
	ErrNothingToFlush   = errors.New("no pending taps to flush")
	ErrConflictRejected = errors.New("ledger rejected the operation as a duplicate")

	// Persistence errors
	ErrCorruptSnapshot = errors.New("persisted snapshot failed validation")
	ErrPlayerUnknown   = errors.New("player not found")
)
