// Package energy implements the token-bucket tap resource.
//
// Energy refills continuously at capacity/refillWindow units per second,
// is consumed one unit per tap, and is clamped to [0, capacity] at all
// times. Refill is a pure function of (state, now): the bucket carries no
// timers of its own, so the same math fast-forwards elapsed wall-clock
// time after a restart.
package energy

import (
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// Bucket tracks tappable energy for one player.
// Not safe for concurrent use — the engine serializes access.
type Bucket struct {
	capacity   float64
	refillRate float64 // units per second
	level      float64
	lastRefill time.Time
}

// New creates a full bucket. refillWindow is the time to refill the whole
// bucket from empty (capacity/refillWindow = refill rate).
func New(capacity float64, refillWindow time.Duration, now time.Time) *Bucket {
	return &Bucket{
		capacity:   capacity,
		refillRate: capacity / refillWindow.Seconds(),
		level:      capacity,
		lastRefill: now,
	}
}

// Restore rebuilds a bucket from a persisted level and refill timestamp.
// The level is clamped, never rejected — a corrupt value degrades to the
// nearest legal state.
func Restore(capacity float64, refillWindow time.Duration, level float64, lastRefill time.Time) *Bucket {
	b := New(capacity, refillWindow, lastRefill)
	b.level = clamp(level, 0, capacity)
	return b
}

// Capacity returns the fixed maximum energy.
func (b *Bucket) Capacity() float64 { return b.capacity }

// Level returns the current energy without advancing time.
func (b *Bucket) Level() float64 { return b.level }

// LastRefill returns the timestamp of the last refill credit.
func (b *Bucket) LastRefill() time.Time { return b.lastRefill }

// Tick credits refill for the wall-clock gap since the last tick and
// clamps at capacity. It is called once per update step while below
// capacity, and once on process resume to fast-forward time the process
// spent closed. Returns true when the stored level changed.
func (b *Bucket) Tick(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		// Wall clock stepped backwards. Keep lastRefill so the same
		// interval is not credited again when the clock recovers.
		return false
	}
	b.lastRefill = now
	if b.level >= b.capacity {
		return false
	}
	before := b.level
	b.level = clamp(b.level+elapsed*b.refillRate, 0, b.capacity)
	return b.level != before
}

// Consume removes amount units. Returns domain.ErrInsufficientEnergy and
// leaves the bucket untouched when there is not enough energy; callers
// treat that as a silent no-op.
func (b *Bucket) Consume(amount float64) error {
	if b.level < amount {
		return domain.ErrInsufficientEnergy
	}
	b.level -= amount
	return nil
}

// Refund credits amount units back, clamped at capacity. This is the
// reconciliation rollback path: taps that never reached the ledger give
// their energy back.
func (b *Bucket) Refund(amount float64) {
	b.level = clamp(b.level+amount, 0, b.capacity)
}

// Fill sets the bucket to capacity (boost path).
func (b *Bucket) Fill() {
	b.level = b.capacity
}

// NeedsTick reports whether further refill ticks should be scheduled.
// At capacity the refill loop goes quiet — no busy work at steady state.
func (b *Bucket) NeedsTick() bool {
	return b.level < b.capacity
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
