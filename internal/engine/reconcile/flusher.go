// Package reconcile drives the asynchronous synchronization between the
// engine's optimistic pending delta and the remote ledger.
//
// Taps are buffered, never sent individually: the Flusher forms a batch
// on a fixed interval or when the buffered tap count hits a hard cap,
// whichever comes first. At most one flush is in flight; new taps
// accumulate into the next batch meanwhile. A failed flush backs off
// exponentially (capped) so a dead connection cannot spin, and every
// attempt is recorded in the local flush journal for post-mortems.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
	"github.com/ducktap-game/ducktap/internal/engine"
	"github.com/ducktap-game/ducktap/internal/infra/observability"
)

// Journal records flush attempts durably. *sqlite.DB satisfies it.
type Journal interface {
	RecordFlush(playerID, batchID string, taps, seq int64) error
	SettleFlush(batchID, outcome string) error
}

// Config controls flush cadence and retry behavior.
type Config struct {
	Interval    time.Duration // batching interval (default 300ms)
	HardCapTaps int64         // flush immediately at this many buffered taps (default 50)
	BaseBackoff time.Duration // first retry delay (default 1s)
	MaxBackoff  time.Duration // backoff ceiling (default 30s)
	CallTimeout time.Duration // per-flush network bound (default 10s)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    300 * time.Millisecond,
		HardCapTaps: 50,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		CallTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.HardCapTaps <= 0 {
		c.HardCapTaps = d.HardCapTaps
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// Flusher reconciles the engine's pending delta with the ledger.
type Flusher struct {
	cfg      Config
	playerID string
	eng      *engine.Engine
	ledger   domain.Ledger
	journal  Journal
	tracer   *observability.Tracer

	mu          sync.Mutex
	failures    int
	nextAttempt time.Time
	lastFlush   time.Time
}

// New creates a flusher for one player session. journal and tracer may
// be nil.
func New(cfg Config, playerID string, eng *engine.Engine, ledger domain.Ledger, journal Journal, tracer *observability.Tracer) *Flusher {
	if tracer == nil {
		tracer = observability.NewTracer(observability.TracerConfig{Enabled: false})
	}
	return &Flusher{
		cfg:      cfg.withDefaults(),
		playerID: playerID,
		eng:      eng,
		ledger:   ledger,
		journal:  journal,
		tracer:   tracer,
		// Start the interval clock now so the first batch also waits
		// out the full batching window.
		lastFlush: time.Now(),
	}
}

// Run drives the flush loop until ctx is cancelled. On shutdown one final
// flush attempt drains whatever is still buffered; the persisted pending
// delta covers anything that attempt cannot deliver.
func (f *Flusher) Run(ctx context.Context) {
	poll := f.cfg.Interval / 4
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	log.Printf("[reconcile] flush loop started interval=%s cap=%d", f.cfg.Interval, f.cfg.HardCapTaps)
	for {
		select {
		case <-ctx.Done():
			f.FlushNow(context.WithoutCancel(ctx))
			log.Printf("[reconcile] flush loop stopped")
			return
		case <-ticker.C:
			if f.due(time.Now()) {
				f.FlushNow(ctx)
			}
		}
	}
}

// due reports whether a flush should be attempted now: the batching
// interval elapsed or the hard cap was hit, and any retry backoff has
// expired. The interval trigger watches the pending delta, not the tap
// count, so a carried-over level bump flushes even with no new taps.
func (f *Flusher) due(now time.Time) bool {
	taps := f.eng.PendingTaps()
	delta := f.eng.PendingDelta()

	f.mu.Lock()
	defer f.mu.Unlock()
	if now.Before(f.nextAttempt) {
		return false
	}
	if taps >= f.cfg.HardCapTaps {
		return true
	}
	return delta > 0 && now.Sub(f.lastFlush) >= f.cfg.Interval
}

// FlushNow performs one flush attempt synchronously. It is a no-op when
// nothing is buffered or an attempt is already in flight.
func (f *Flusher) FlushNow(ctx context.Context) {
	batch, err := f.eng.BeginFlush()
	if errors.Is(err, domain.ErrNothingToFlush) || errors.Is(err, domain.ErrFlushInFlight) {
		return
	}
	if err != nil {
		log.Printf("[reconcile] begin flush: %v", err)
		return
	}

	f.mu.Lock()
	f.lastFlush = time.Now()
	f.mu.Unlock()

	if f.journal != nil {
		if err := f.journal.RecordFlush(f.playerID, batch.BatchID, batch.Taps, int64(batch.Seq)); err != nil {
			log.Printf("[reconcile] record flush: %v", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()
	span := f.tracer.StartSpan(callCtx, "flush_taps", map[string]string{
		"batch": batch.BatchID,
		"taps":  fmt.Sprintf("%d", batch.Taps),
	})

	start := time.Now()
	serverBalance, err := f.ledger.ApplyTapBatch(callCtx, f.playerID, batch.BatchID, batch.Delta)
	observability.FlushLatency.Observe(float64(time.Since(start).Milliseconds()))
	f.tracer.EndSpan(span, err)

	if errors.Is(err, domain.ErrConflictRejected) {
		// The batch already landed under an earlier attempt whose response
		// was lost. Fetch the authoritative total and settle.
		info, gerr := f.ledger.GetPlayer(callCtx, f.playerID)
		if gerr != nil {
			f.fail(batch, gerr)
			return
		}
		serverBalance, err = info.Balance, nil
	}
	if err != nil {
		f.fail(batch, err)
		return
	}

	f.eng.CommitFlush(batch, serverBalance)
	if f.journal != nil {
		f.journal.SettleFlush(batch.BatchID, "COMMITTED")
	}
	observability.FlushesTotal.WithLabelValues("committed").Inc()
	observability.FlushBatchSize.Observe(float64(batch.Taps))

	f.mu.Lock()
	f.failures = 0
	f.nextAttempt = time.Time{}
	f.mu.Unlock()
}

// fail rolls the batch back for retry and arms the capped backoff.
func (f *Flusher) fail(batch engine.Batch, err error) {
	f.eng.RollbackFlush(batch)
	if f.journal != nil {
		f.journal.SettleFlush(batch.BatchID, "FAILED")
	}
	observability.FlushesTotal.WithLabelValues("failed").Inc()

	f.mu.Lock()
	f.failures++
	// Doubling stops at the ceiling; a raw shift by the failure count
	// would wrap at high counts and land on a short delay.
	delay := f.cfg.BaseBackoff
	for i := 1; i < f.failures && delay < f.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > f.cfg.MaxBackoff {
		delay = f.cfg.MaxBackoff
	}
	f.nextAttempt = time.Now().Add(delay)
	n := f.failures
	f.mu.Unlock()

	log.Printf("[reconcile] flush %s failed (attempt %d, retry in %s): %v", batch.BatchID, n, delay, err)
}

// Backoff returns the current consecutive-failure count and the earliest
// next attempt, for status reporting.
func (f *Flusher) Backoff() (failures int, nextAttempt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures, f.nextAttempt
}
