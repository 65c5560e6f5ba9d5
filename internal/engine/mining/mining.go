// Package mining implements the resumable lump-reward mining timer.
//
// State machine: IDLE → IN_PROGRESS → AWAITING_PAYOUT → IDLE. The reward
// amount is server-determined — the client never computes it — and the
// session ID doubles as the ledger's idempotency key, so a resolution
// retried after a crash that already paid out comes back as a benign
// conflict, not a double reward.
package mining

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// Timer drives one player's mining runs.
// Not safe for concurrent use — the engine serializes access.
type Timer struct {
	duration time.Duration
	state    domain.MiningState
}

// New creates an idle timer with the configured run duration.
func New(duration time.Duration) *Timer {
	return &Timer{
		duration: duration,
		state:    domain.MiningState{Phase: domain.MiningIdle},
	}
}

// Restore rebuilds a timer from persisted state. A persisted run keeps its
// original duration so a config change mid-run cannot corrupt it.
func Restore(duration time.Duration, state domain.MiningState) *Timer {
	if state.Phase == "" {
		state.Phase = domain.MiningIdle
	}
	if state.Duration == 0 {
		state.Duration = duration
	}
	return &Timer{duration: duration, state: state}
}

// State returns the persistable mining state.
func (t *Timer) State() domain.MiningState { return t.state }

// Active reports whether a run is underway or awaiting payout.
func (t *Timer) Active() bool { return t.state.Active() }

// Start begins a run. Starting while one is active is a no-op signalled
// with domain.ErrMiningInProgress. The caller must persist the returned
// state immediately so the run survives a restart.
func (t *Timer) Start(now time.Time) error {
	if t.state.Active() {
		return domain.ErrMiningInProgress
	}
	t.state = domain.MiningState{
		Phase:     domain.MiningInProgress,
		SessionID: uuid.NewString(),
		StartedAt: now,
		Duration:  t.duration,
	}
	return nil
}

// Progress returns completion in [0, 1]. Pure read — safe every frame.
func (t *Timer) Progress(now time.Time) float64 {
	if !t.state.Active() {
		return 0
	}
	if t.state.Phase == domain.MiningAwaitingPayout {
		return 1
	}
	elapsed := now.Sub(t.state.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= t.state.Duration {
		return 1
	}
	return float64(elapsed) / float64(t.state.Duration)
}

// Due reports whether the run has finished its timer and needs resolution.
func (t *Timer) Due(now time.Time) bool {
	switch t.state.Phase {
	case domain.MiningAwaitingPayout:
		return true
	case domain.MiningInProgress:
		return now.Sub(t.state.StartedAt) >= t.state.Duration
	default:
		return false
	}
}

// BeginResolution marks an elapsed run as awaiting payout and returns its
// session ID. Marking happens before the network call so a crash
// mid-request resumes straight into the retry path. Returns
// domain.ErrMiningNotStarted when idle and domain.ErrMiningNotDone while
// the timer is still running.
func (t *Timer) BeginResolution(now time.Time) (string, error) {
	if !t.state.Active() {
		return "", domain.ErrMiningNotStarted
	}
	if !t.Due(now) {
		return "", domain.ErrMiningNotDone
	}
	t.state.Phase = domain.MiningAwaitingPayout
	return t.state.SessionID, nil
}

// Close finishes the run holding sessionID and returns the timer to idle.
// A session ID that no longer matches is ignored, so a resolution
// response landing after a restart-and-restart cannot cancel a newer run.
func (t *Timer) Close(sessionID string) bool {
	if !t.state.Active() || t.state.SessionID != sessionID {
		return false
	}
	t.state = domain.MiningState{Phase: domain.MiningIdle}
	return true
}

// ResolveIfComplete requests the payout from the ledger once the timer has
// elapsed, and returns the reward credited. It is re-entrant and idempotent
// under restart:
//
//   - Not yet due → (0, domain.ErrMiningNotDone), state unchanged.
//   - Network failure → the run stays in AWAITING_PAYOUT and is retried on
//     the next tick or resume; the session is never silently dropped.
//   - Ledger reports the session already paid (ErrConflictRejected) → the
//     run closes with zero reward; the earlier payout already landed.
func (t *Timer) ResolveIfComplete(ctx context.Context, ledger domain.Ledger, playerID string, now time.Time) (int64, error) {
	sessionID, err := t.BeginResolution(now)
	if err != nil {
		return 0, err
	}

	reward, err := ledger.ResolveMining(ctx, playerID, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrConflictRejected) {
			// Already paid by an earlier attempt whose response we lost.
			t.Close(sessionID)
			return 0, nil
		}
		return 0, fmt.Errorf("resolve mining session %s: %w", sessionID, err)
	}

	t.Close(sessionID)
	return reward, nil
}
