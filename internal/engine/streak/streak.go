// Package streak implements the once-per-day reward claim machine.
//
// The claim history is authoritative on the ledger and merged in on load;
// entries are strictly ordered and claimed strictly in order. Day
// boundaries use a single fixed reference timezone (UTC) on both ends so
// "today" can never disagree between client and server.
package streak

import (
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// ReferenceZone is the fixed timezone used for calendar-day boundaries.
var ReferenceZone = time.UTC

// DateOf formats an instant as the calendar date used in streak entries.
func DateOf(t time.Time) string {
	return t.In(ReferenceZone).Format(time.DateOnly)
}

// Machine tracks claim state for one player's streak.
// Not safe for concurrent use — the engine serializes access.
type Machine struct {
	days        []domain.RewardDay
	nextClaimAt time.Time
}

// New creates a machine over the given ordered entries.
func New(days []domain.RewardDay, nextClaimAt time.Time) *Machine {
	return &Machine{days: days, nextClaimAt: nextClaimAt}
}

// Merge replaces local entries with the ledger's authoritative history,
// keeping claims monotone: an entry we already saw claimed stays claimed
// even if a stale server snapshot says otherwise.
func (m *Machine) Merge(authoritative []domain.RewardDay) {
	claimed := make(map[int]bool, len(m.days))
	for _, d := range m.days {
		if d.Claimed {
			claimed[d.Day] = true
		}
	}
	for i := range authoritative {
		if claimed[authoritative[i].Day] {
			authoritative[i].Claimed = true
		}
	}
	m.days = authoritative
}

// Days returns the entries in order.
func (m *Machine) Days() []domain.RewardDay { return m.days }

// NextClaimAt returns when the next claim becomes eligible (zero = now).
func (m *Machine) NextClaimAt() time.Time { return m.nextClaimAt }

// NextClaimable returns the first unclaimed entry, or ok=false when the
// whole streak is collected. Entries after it are locked regardless of
// calendar date — the streak is never claimed out of order.
func (m *Machine) NextClaimable() (domain.RewardDay, bool) {
	for _, d := range m.days {
		if !d.Claimed {
			return d, true
		}
	}
	return domain.RewardDay{}, false
}

// ClaimCheck validates a claim at the given instant without mutating
// state. It returns the claimable entry on nil error, and otherwise one
// of ErrNotYetEligible, ErrAlreadyClaimed, or ErrNothingToClaim.
func (m *Machine) ClaimCheck(now time.Time) (domain.RewardDay, error) {
	if !m.nextClaimAt.IsZero() && now.Before(m.nextClaimAt) {
		return domain.RewardDay{}, domain.ErrNotYetEligible
	}
	next, ok := m.NextClaimable()
	if !ok {
		return domain.RewardDay{}, domain.ErrNothingToClaim
	}
	today := DateOf(now)
	if next.CalendarDate != today {
		// The next entry is for another calendar date: either today's was
		// already collected or the streak day hasn't arrived yet.
		for _, d := range m.days {
			if d.CalendarDate == today && d.Claimed {
				return domain.RewardDay{}, domain.ErrAlreadyClaimed
			}
		}
		return domain.RewardDay{}, domain.ErrNothingToClaim
	}
	return next, nil
}

// MarkClaimed commits a successful claim: flips the entry and arms the
// 24-hour eligibility cooldown. Called only after the ledger confirms —
// on a network failure local state stays untouched.
func (m *Machine) MarkClaimed(day int, now time.Time) {
	for i := range m.days {
		if m.days[i].Day == day {
			m.days[i].Claimed = true
			break
		}
	}
	m.nextClaimAt = now.Add(24 * time.Hour)
}

// Remaining returns how long until the next claim is eligible, floored
// at zero.
func (m *Machine) Remaining(now time.Time) time.Duration {
	if m.nextClaimAt.IsZero() || !now.Before(m.nextClaimAt) {
		return 0
	}
	return m.nextClaimAt.Sub(now)
}
