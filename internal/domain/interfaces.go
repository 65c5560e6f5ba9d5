package domain

import (
	"context"
	"strings"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the engine depends on them.

// Clock supplies the current time. Tests inject synthetic clocks so every
// timer (refill, cooldown, mining) is a pure function of (state, now).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }

// ─── Remote Ledger ──────────────────────────────────────────────────────────

// PlayerInfo is the authoritative player record returned by the ledger.
type PlayerInfo struct {
	PlayerID       string `json:"player_id"`
	Balance        int64  `json:"balance"`
	Username       string `json:"username,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	CharacterAsset string `json:"character_asset,omitempty"`
}

// DisplayName resolves a presentable name: username if set, otherwise
// first+last, otherwise a generic fallback.
func (p PlayerInfo) DisplayName() string {
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	full := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if full != "" {
		return full
	}
	return "Player"
}

// ClaimResult is the ledger's response to a daily reward claim.
type ClaimResult struct {
	PointsEarned int64  `json:"points_earned"`
	Message      string `json:"message,omitempty"`
}

// Ledger is the remote authority for a player's currency balance and
// claim history. Every call has a bounded timeout; a timeout is a network
// failure, never a silent success. Implementations must map a duplicate
// or refused operation to ErrConflictRejected so callers can treat it as
// a benign no-op.
type Ledger interface {
	// GetPlayer fetches authoritative state on session start.
	GetPlayer(ctx context.Context, playerID string) (PlayerInfo, error)

	// ApplyTapBatch atomically adds increment currency units server-side
	// and returns the new authoritative total. Safe to retry: batchID is
	// an idempotency token.
	ApplyTapBatch(ctx context.Context, playerID, batchID string, increment int64) (int64, error)

	// ResolveMining asks the server to compute and pay out the mining
	// reward for the given session. A second resolution for a session
	// already paid returns ErrConflictRejected.
	ResolveMining(ctx context.Context, playerID, sessionID string) (int64, error)

	// GetDailyRewards returns the authoritative claim history.
	GetDailyRewards(ctx context.Context, playerID string) ([]RewardDay, error)

	// ClaimDailyReward claims today's entry server-side.
	ClaimDailyReward(ctx context.Context, playerID string) (ClaimResult, error)

	// SetPoints overwrites the balance directly. Used sparingly (level-up
	// carry-over) — distinct from the additive tap path so the two never
	// race.
	SetPoints(ctx context.Context, playerID string, value int64) error

	// Leaderboard returns the top players by balance (display only).
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// ─── Local Store ────────────────────────────────────────────────────────────

// StateStore persists per-player snapshots and the local credit journal.
// Snapshots are namespaced by player ID so a shared device never leaks
// state across players.
type StateStore interface {
	SaveSnapshot(state PlayerState) error
	// LoadSnapshot returns ErrPlayerUnknown when no snapshot exists and
	// ErrCorruptSnapshot when the stored state fails validation.
	LoadSnapshot(playerID string) (PlayerState, error)
	DeleteSnapshot(playerID string) error
	AppendJournal(entry LedgerEntry) error
	RecentJournal(playerID string, limit int) ([]LedgerEntry, error)
}

