// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ─── Player State ───────────────────────────────────────────────────────────

// PlayerState is the complete local economy state for one player.
// It is owned exclusively by the engine, mutated optimistically, and
// serialized wholesale to the local store after every mutation. The remote
// ledger holds the authoritative balance; the local Balance may run ahead
// of it by PendingDelta until the next successful flush.
type PlayerState struct {
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Balance     int64     `json:"balance"`
	Energy      float64   `json:"energy"`
	LastRefill  time.Time `json:"last_refill"`

	Boost  BoostState  `json:"boost"`
	Mining MiningState `json:"mining"`

	// LevelIndex is derived from Balance but cached for display.
	LevelIndex int `json:"level_index"`

	Streak      []RewardDay `json:"streak,omitempty"`
	NextClaimAt time.Time   `json:"next_claim_at"`

	// PendingDelta is the sum of locally-applied currency changes the
	// ledger has not yet confirmed. Cleared only on a committed flush.
	PendingDelta int64 `json:"pending_delta"`

	// PendingTaps is the count of taps buffered for the next flush batch.
	PendingTaps int64 `json:"pending_taps"`

	UpdatedAt time.Time `json:"updated_at"`
}

// BoostState tracks the instant-refill cooldown.
// A zero CooldownUntil means the boost has never been used.
type BoostState struct {
	CooldownUntil time.Time `json:"cooldown_until"`
	LastUsedAt    time.Time `json:"last_used_at"`
}

// ─── Mining Types ───────────────────────────────────────────────────────────

// MiningPhase is the lifecycle phase of the single mining run.
type MiningPhase string

const (
	MiningIdle       MiningPhase = "IDLE"
	MiningInProgress MiningPhase = "IN_PROGRESS"
	// MiningAwaitingPayout means the timer has elapsed but the ledger has
	// not yet confirmed the reward. The session is retried, never dropped.
	MiningAwaitingPayout MiningPhase = "AWAITING_PAYOUT"
)

// MiningState is the resumable mining timer state.
type MiningState struct {
	Phase     MiningPhase   `json:"phase"`
	SessionID string        `json:"session_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Active reports whether a mining run is underway or awaiting payout.
func (m MiningState) Active() bool {
	return m.Phase == MiningInProgress || m.Phase == MiningAwaitingPayout
}

// ─── Level Ladder ───────────────────────────────────────────────────────────

// LevelBand is one rung of the level ladder: a contiguous balance range.
// The last band is open-ended in practice (its Max is astronomically large).
type LevelBand struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Contains reports whether balance falls inside the band.
func (b LevelBand) Contains(balance int64) bool {
	return balance >= b.Min && balance <= b.Max
}

// DefaultLevelTable returns the standard ten-band progression ladder.
func DefaultLevelTable() []LevelBand {
	return []LevelBand{
		{Min: 0, Max: 100},
		{Min: 101, Max: 1000},
		{Min: 1001, Max: 5000},
		{Min: 5001, Max: 10000},
		{Min: 10001, Max: 50000},
		{Min: 50001, Max: 100000},
		{Min: 100001, Max: 500000},
		{Min: 500001, Max: 1000000},
		{Min: 1000001, Max: 10000000},
		{Min: 10000001, Max: 100000000001},
	}
}

// LevelUpEvent is the cosmetic signal emitted when the ladder advances.
// It carries no gameplay state — the presentation layer uses Gradient to
// recolor the progress bar.
type LevelUpEvent struct {
	Level    int    `json:"level"`
	Gradient string `json:"gradient"`
}

// ─── Daily Reward Streak ────────────────────────────────────────────────────

// RewardDay is one entry in the ordered daily-reward streak.
// Claimed transitions false→true exactly once and never reverses.
type RewardDay struct {
	Day          int    `json:"day"`
	CalendarDate string `json:"calendar_date"` // YYYY-MM-DD in the reference timezone
	Reward       int64  `json:"reward"`
	Claimed      bool   `json:"claimed"`
}

// DefaultRewardTable returns a reward ramp of the given length: 10, 20, …
// climbing by 10 per day and holding at 70 from the seventh day on.
func DefaultRewardTable(days int) []int64 {
	out := make([]int64, days)
	for i := range out {
		r := int64((i + 1) * 10)
		if r > 70 {
			r = 70
		}
		out[i] = r
	}
	return out
}

// ─── Display Formatting ─────────────────────────────────────────────────────

// FormatAmount renders a currency total compactly: values under 1000 are
// shown whole, larger values use K/M/B/T/Q tiers with up to two decimals
// and trailing zeros trimmed. 1021000 → "1.02M".
func FormatAmount(v int64) string {
	if v < 0 {
		return "-" + FormatAmount(-v)
	}
	if v < 1000 {
		return fmt.Sprintf("%d", v)
	}

	units := []string{"", "K", "M", "B", "T", "Q"}
	tier := int(math.Log10(float64(v))) / 3
	if tier >= len(units) {
		tier = len(units) - 1
	}

	scaled := float64(v) / math.Pow(1000, float64(tier))
	s := fmt.Sprintf("%.2f", scaled)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + units[tier]
}
