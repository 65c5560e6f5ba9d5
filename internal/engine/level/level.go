// Package level derives the discrete level and within-level progress from
// the cumulative currency balance.
//
// The ladder is a fixed, ordered table of contiguous balance bands. When
// progress reaches 100% the balance is bumped to band.max+1 — entering a
// new band consumes nothing, the bump happens once, and a cosmetic
// level-up event (a fresh progress-bar gradient) is emitted for the
// presentation layer.
package level

import (
	"fmt"
	"math/rand"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// Ladder resolves levels for one fixed band table.
type Ladder struct {
	bands []domain.LevelBand
}

// New creates a ladder. An empty table falls back to the default one.
func New(bands []domain.LevelBand) *Ladder {
	if len(bands) == 0 {
		bands = domain.DefaultLevelTable()
	}
	return &Ladder{bands: bands}
}

// Bands returns the band table.
func (l *Ladder) Bands() []domain.LevelBand { return l.bands }

// LevelFor returns the index of the first band containing balance. A
// balance past the last band clamps to the last index.
func (l *Ladder) LevelFor(balance int64) int {
	for i, b := range l.bands {
		if b.Contains(balance) {
			return i
		}
	}
	return len(l.bands) - 1
}

// ProgressFraction returns how far through its band the balance is, in
// [0, 1]. The final band reports its raw fraction too; in practice its
// Max is never reached.
func (l *Ladder) ProgressFraction(balance int64) float64 {
	b := l.bands[l.LevelFor(balance)]
	span := b.Max - b.Min
	if span <= 0 {
		return 1
	}
	f := float64(balance-b.Min) / float64(span)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Advance applies the auto-advance rule: when progress would reach 100%,
// the balance is set to band.max+1 and a level-up event is returned. A
// balance still inside its band is untouched — calling Advance twice with
// the same below-100% balance is a no-op.
func (l *Ladder) Advance(balance int64) (int64, *domain.LevelUpEvent) {
	idx := l.LevelFor(balance)
	b := l.bands[idx]
	if balance < b.Max || idx == len(l.bands)-1 {
		return balance, nil
	}
	next := b.Max + 1
	return next, &domain.LevelUpEvent{
		Level:    idx + 1,
		Gradient: randomGradient(),
	}
}

// randomGradient picks a bright two-stop gradient for the progress bar.
// Purely cosmetic — the event carries no gameplay state.
func randomGradient() string {
	h1 := rand.Intn(360)
	h2 := rand.Intn(360)
	return fmt.Sprintf("linear-gradient(0deg, hsl(%d, 100%%, 50%%), hsl(%d, 100%%, 50%%))", h1, h2)
}
