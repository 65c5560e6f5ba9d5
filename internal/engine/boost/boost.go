// Package boost implements the instant energy refill gated by a cooldown.
//
// The cooldown decays by true elapsed wall-clock time, not step count:
// state is stored as an absolute CooldownUntil instant, so a boost keeps
// cooling down while the process is closed and needs no catch-up logic
// on resume.
package boost

import (
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// Controller tracks the boost cooldown for one player.
// Not safe for concurrent use — the engine serializes access.
type Controller struct {
	cooldown time.Duration
	state    domain.BoostState
}

// New creates a controller with the given cooldown window.
func New(cooldown time.Duration) *Controller {
	return &Controller{cooldown: cooldown}
}

// Restore rebuilds a controller from persisted state.
func Restore(cooldown time.Duration, state domain.BoostState) *Controller {
	return &Controller{cooldown: cooldown, state: state}
}

// State returns the persistable boost state.
func (c *Controller) State() domain.BoostState { return c.state }

// Remaining returns the cooldown left at the given instant, floored at 0.
func (c *Controller) Remaining(now time.Time) time.Duration {
	if c.state.CooldownUntil.IsZero() || !now.Before(c.state.CooldownUntil) {
		return 0
	}
	return c.state.CooldownUntil.Sub(now)
}

// Ready reports whether the boost can activate at the given instant.
func (c *Controller) Ready(now time.Time) bool {
	return c.Remaining(now) == 0
}

// Activate starts the cooldown and reports success. It refuses while on
// cooldown (domain.ErrBoostOnCooldown) and when energy is already at
// capacity (domain.ErrEnergyFull — a boost that would change nothing is
// not worth burning). The caller performs the actual refill on nil error.
func (c *Controller) Activate(now time.Time, energyFull bool) error {
	if !c.Ready(now) {
		return domain.ErrBoostOnCooldown
	}
	if energyFull {
		return domain.ErrEnergyFull
	}
	c.state.LastUsedAt = now
	c.state.CooldownUntil = now.Add(c.cooldown)
	return nil
}
