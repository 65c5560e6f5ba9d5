// Package engine orchestrates the game-economy state machine for one
// player: energy, boost, mining, level ladder, daily streak, and the
// optimistic balance with its pending-delta accounting.
//
// The engine owns PlayerState exclusively behind a mutex. Every mutation
// is applied optimistically, snapshotted to the local store, and later
// reconciled against the remote ledger by the reconcile.Flusher through
// the BeginFlush/CommitFlush/RollbackFlush hooks. Remote calls made
// directly by the engine (mining resolution, daily claim) carry bounded
// timeouts and map conflicts to benign corrections.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducktap-game/ducktap/internal/domain"
	"github.com/ducktap-game/ducktap/internal/engine/boost"
	"github.com/ducktap-game/ducktap/internal/engine/energy"
	"github.com/ducktap-game/ducktap/internal/engine/level"
	"github.com/ducktap-game/ducktap/internal/engine/mining"
	"github.com/ducktap-game/ducktap/internal/engine/streak"
	"github.com/ducktap-game/ducktap/internal/infra/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config carries the tunable economy constants. All mechanics are
// parameterized here rather than hard-coded so variants (longer mining
// runs, bigger buckets) are a config change.
type Config struct {
	TapValue       int64
	EnergyCapacity float64
	RefillWindow   time.Duration
	BoostCooldown  time.Duration
	MiningDuration time.Duration
	RewardDays     int
	LevelBands     []domain.LevelBand
	CallTimeout    time.Duration // bound on engine-initiated remote calls
}

// DefaultConfig returns the standard economy constants.
func DefaultConfig() Config {
	return Config{
		TapValue:       1,
		EnergyCapacity: 100,
		RefillWindow:   60 * time.Second,
		BoostCooldown:  60 * time.Second,
		MiningDuration: 60 * time.Second,
		RewardDays:     7,
		LevelBands:     domain.DefaultLevelTable(),
		CallTimeout:    10 * time.Second,
	}
}

// Deps are the engine's infrastructure collaborators.
type Deps struct {
	Store  domain.StateStore
	Ledger domain.Ledger
	Clock  domain.Clock
	Sink   Sink
	Tracer *observability.Tracer
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Batch is one flushable portion of the pending delta. The BatchID is the
// ledger idempotency token and stays fixed across retries of the same
// batch; Seq guards against a stale response from a superseded attempt.
type Batch struct {
	BatchID string
	Delta   int64
	Taps    int64
	Seq     uint64
}

// inflightBatch tracks the single batch that may be between BeginFlush
// and its Commit/Rollback, plus its retry bookkeeping.
type inflightBatch struct {
	Batch
	sending  bool
	refunded bool // energy given back on a prior failure
}

// Engine is the single-owner state machine for one player's economy.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	playerID       string
	displayName    string
	characterAsset string

	balance      int64
	pendingDelta int64
	pendingTaps  int64

	energy *energy.Bucket
	boost  *boost.Controller
	mining *mining.Timer
	ladder *level.Ladder
	streak *streak.Machine

	inflight *inflightBatch
	flushSeq uint64

	store  domain.StateStore
	ledger domain.Ledger
	clock  domain.Clock
	sink   Sink
	tracer *observability.Tracer
}

// New creates an engine. Call Start before any other method.
func New(cfg Config, deps Deps) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock()
	}
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer(observability.TracerConfig{Enabled: false})
	}
	return &Engine{
		cfg:    cfg,
		ladder: level.New(cfg.LevelBands),
		store:  deps.Store,
		ledger: deps.Ledger,
		clock:  deps.Clock,
		sink:   deps.Sink,
		tracer: deps.Tracer,
	}
}

// ─── Session Lifecycle ──────────────────────────────────────────────────────

// Start binds the engine to a player: it loads the local snapshot,
// fetches the authoritative balance and claim history, fast-forwards
// every timer by the wall-clock time the process spent closed, and
// persists the reconstructed state.
//
// A corrupt snapshot is discarded and the session re-bootstraps from the
// ledger. When the ledger is unreachable but a valid snapshot exists, the
// session starts offline from the snapshot; the next successful flush
// corrects any drift.
func (e *Engine) Start(ctx context.Context, playerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.playerID = playerID

	snap, snapErr := e.store.LoadSnapshot(playerID)
	haveSnap := snapErr == nil
	switch {
	case errors.Is(snapErr, domain.ErrCorruptSnapshot):
		log.Printf("[engine] discarding corrupt snapshot for %s: %v", playerID, snapErr)
		if err := e.store.DeleteSnapshot(playerID); err != nil {
			log.Printf("[engine] delete corrupt snapshot: %v", err)
		}
	case snapErr != nil && !errors.Is(snapErr, domain.ErrPlayerUnknown):
		return fmt.Errorf("load snapshot: %w", snapErr)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	info, ledgerErr := e.ledger.GetPlayer(callCtx, playerID)
	cancel()
	if ledgerErr != nil {
		if !haveSnap {
			return fmt.Errorf("bootstrap player %s: %w", playerID, ledgerErr)
		}
		log.Printf("[engine] ledger unreachable, starting offline from snapshot: %v", ledgerErr)
	}

	if haveSnap {
		e.displayName = snap.DisplayName
		e.pendingDelta = snap.PendingDelta
		e.pendingTaps = snap.PendingTaps
		e.energy = energy.Restore(e.cfg.EnergyCapacity, e.cfg.RefillWindow, snap.Energy, snap.LastRefill)
		e.boost = boost.Restore(e.cfg.BoostCooldown, snap.Boost)
		e.mining = mining.Restore(e.cfg.MiningDuration, snap.Mining)
		e.streak = streak.New(snap.Streak, snap.NextClaimAt)
		e.balance = snap.Balance
	} else {
		e.energy = energy.New(e.cfg.EnergyCapacity, e.cfg.RefillWindow, now)
		e.boost = boost.New(e.cfg.BoostCooldown)
		e.mining = mining.New(e.cfg.MiningDuration)
		e.streak = streak.New(defaultStreak(e.cfg.RewardDays, now), time.Time{})
	}

	if ledgerErr == nil {
		// Authoritative balance plus whatever is still unconfirmed locally.
		e.balance = info.Balance + e.pendingDelta
		e.displayName = info.DisplayName()
		e.characterAsset = info.CharacterAsset

		rewardsCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		days, err := e.ledger.GetDailyRewards(rewardsCtx, playerID)
		cancel()
		if err != nil {
			log.Printf("[engine] daily rewards unavailable, keeping local history: %v", err)
		} else if len(days) > 0 {
			e.streak.Merge(days)
		}
	}

	// Fast-forward offline time: energy refills, an elapsed mining run
	// resolves on the first Tick.
	e.energy.Tick(now)
	e.updateMetricsLocked()
	e.persistLocked(now)

	log.Printf("[engine] session started player=%s balance=%d pending=%d energy=%.1f",
		playerID, e.balance, e.pendingDelta, e.energy.Level())
	return nil
}

func defaultStreak(days int, now time.Time) []domain.RewardDay {
	rewards := domain.DefaultRewardTable(days)
	out := make([]domain.RewardDay, len(rewards))
	for i, r := range rewards {
		out[i] = domain.RewardDay{
			Day:          i + 1,
			CalendarDate: streak.DateOf(now.AddDate(0, 0, i)),
			Reward:       r,
		}
	}
	return out
}

// ─── Player Actions ─────────────────────────────────────────────────────────

// TapResult reports the optimistic outcome of one tap.
type TapResult struct {
	Balance int64
	Energy  float64
	LevelUp *domain.LevelUpEvent
}

// Tap consumes one energy unit and credits the tap value optimistically.
// An empty bucket rejects the tap with domain.ErrInsufficientEnergy; the
// caller treats that as a silent no-op.
func (e *Engine) Tap(ctx context.Context) (TapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.energy.Tick(now)

	if err := e.energy.Consume(1); err != nil {
		observability.TapsRejected.Inc()
		return TapResult{}, err
	}

	e.balance += e.cfg.TapValue
	e.pendingDelta += e.cfg.TapValue
	e.pendingTaps++
	observability.TapsTotal.Inc()

	result := TapResult{Energy: e.energy.Level()}
	result.LevelUp = e.advanceLevelLocked(ctx, now)
	result.Balance = e.balance
	e.updateMetricsLocked()
	e.persistLocked(now)
	return result, nil
}

// advanceLevelLocked applies the ladder auto-advance after a balance
// mutation: a balance sitting exactly on its band ceiling is bumped past
// it and the carry is pushed to the ledger asynchronously. Every credit
// path calls this, not just taps: a mining payout, daily reward, or
// flush correction can land on the ceiling too. Caller holds e.mu.
func (e *Engine) advanceLevelLocked(ctx context.Context, now time.Time) *domain.LevelUpEvent {
	next, ev := e.ladder.Advance(e.balance)
	if ev == nil {
		return nil
	}
	carry := next - e.balance
	e.balance = next
	observability.LevelUps.Inc()
	e.journalLocked(domain.TxLevel, domain.EntryCredit, carry, "", "level carry-over")
	e.publishLocked(Event{Type: "level_up", Level: ev.Level, Gradient: ev.Gradient, Timestamp: now.Unix()})
	go e.pushLevelCarry(ctx, carry)
	return ev
}

// pushLevelCarry pushes the level-up bump directly via SetPoints, keeping
// the overwrite path separate from the additive tap batches. On failure
// the carry is folded into the pending delta so the next flush conveys it.
func (e *Engine) pushLevelCarry(ctx context.Context, carry int64) {
	e.mu.Lock()
	playerID := e.playerID
	value := e.balance - e.pendingDelta
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CallTimeout)
	defer cancel()
	span := e.tracer.StartSpan(callCtx, "set_points", map[string]string{"player": playerID})
	err := e.ledger.SetPoints(callCtx, playerID, value)
	e.tracer.EndSpan(span, err)
	if err != nil {
		log.Printf("[engine] level carry-over push failed, deferring to flush: %v", err)
		e.mu.Lock()
		e.pendingDelta += carry
		e.updateMetricsLocked()
		e.mu.Unlock()
	}
}

// Boost refills the energy bucket instantly and arms the cooldown. It
// refuses while cooling down and when the bucket is already full.
func (e *Engine) Boost(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.energy.Tick(now)

	full := e.energy.Level() >= e.energy.Capacity()
	if err := e.boost.Activate(now, full); err != nil {
		return err
	}
	e.energy.Fill()
	e.publishLocked(Event{Type: "boost_activated", Timestamp: now.Unix()})
	e.updateMetricsLocked()
	e.persistLocked(now)
	return nil
}

// StartMining begins a mining run. The run survives restarts: its state
// is persisted before this returns.
func (e *Engine) StartMining(ctx context.Context) (domain.MiningState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.mining.Start(now); err != nil {
		return e.mining.State(), err
	}
	e.persistLocked(now)
	return e.mining.State(), nil
}

// MiningStatus is the read-only view of the mining run.
type MiningStatus struct {
	Phase     domain.MiningPhase
	SessionID string
	Progress  float64
	Remaining time.Duration
}

// MiningStatusNow reports the current run without mutating state.
func (e *Engine) MiningStatusNow() MiningStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	st := e.mining.State()
	status := MiningStatus{
		Phase:     st.Phase,
		SessionID: st.SessionID,
		Progress:  e.mining.Progress(now),
	}
	if st.Phase == domain.MiningInProgress {
		if left := st.Duration - now.Sub(st.StartedAt); left > 0 {
			status.Remaining = left
		}
	}
	return status
}

// ClaimDaily claims the next streak entry. The ledger confirms before any
// local mutation; a conflict (already claimed server-side) corrects the
// local history and reports success with zero points.
func (e *Engine) ClaimDaily(ctx context.Context) (domain.ClaimResult, error) {
	e.mu.Lock()
	now := e.clock.Now()
	entry, err := e.streak.ClaimCheck(now)
	playerID := e.playerID
	e.mu.Unlock()
	if err != nil {
		observability.DailyClaims.WithLabelValues("ineligible").Inc()
		return domain.ClaimResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	span := e.tracer.StartSpan(callCtx, "claim_daily", map[string]string{"player": playerID})
	result, err := e.ledger.ClaimDailyReward(callCtx, playerID)
	e.tracer.EndSpan(span, err)

	if errors.Is(err, domain.ErrConflictRejected) {
		// Another context already claimed today. Adopt the ledger's view.
		// The history fetch is its own round trip and runs before the
		// lock is retaken so taps keep registering meanwhile.
		days := e.fetchRewardHistory(ctx, playerID)

		e.mu.Lock()
		defer e.mu.Unlock()
		if len(days) > 0 {
			e.streak.Merge(days)
		}
		e.streak.MarkClaimed(entry.Day, now)
		observability.DailyClaims.WithLabelValues("conflict").Inc()
		e.persistLocked(now)
		return domain.ClaimResult{Message: "already claimed"}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		observability.DailyClaims.WithLabelValues("failed").Inc()
		return domain.ClaimResult{}, fmt.Errorf("claim daily reward: %w", err)
	}

	e.streak.MarkClaimed(entry.Day, now)
	e.balance += result.PointsEarned
	observability.DailyClaims.WithLabelValues("claimed").Inc()
	e.journalLocked(domain.TxDaily, domain.EntryCredit, result.PointsEarned, "",
		fmt.Sprintf("streak day %d", entry.Day))
	e.publishLocked(Event{Type: "credit_earned", Amount: result.PointsEarned, Source: "daily", Timestamp: now.Unix()})
	e.advanceLevelLocked(ctx, now)
	e.updateMetricsLocked()
	e.persistLocked(now)
	return result, nil
}

// fetchRewardHistory re-fetches the authoritative claim history. Called
// without e.mu held; the caller merges the result under the lock.
func (e *Engine) fetchRewardHistory(ctx context.Context, playerID string) []domain.RewardDay {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	days, err := e.ledger.GetDailyRewards(callCtx, playerID)
	if err != nil {
		log.Printf("[engine] reward history refresh failed: %v", err)
		return nil
	}
	return days
}

// ─── Update Loop ────────────────────────────────────────────────────────────

// Tick advances every timer one step: energy refill and, when a mining
// run has elapsed, its payout resolution. The daemon calls it on a fixed
// interval; tests call it directly with a synthetic clock.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	now := e.clock.Now()
	changed := e.energy.Tick(now)
	due := e.mining.Due(now)
	e.mu.Unlock()

	if due {
		e.resolveMining(ctx, now)
		changed = true
	}

	if changed {
		e.mu.Lock()
		e.updateMetricsLocked()
		e.persistLocked(now)
		e.mu.Unlock()
	}
}

// resolveMining asks the ledger to pay out an elapsed run. The lock is
// released around the network call so taps keep registering while the
// resolution is in flight.
func (e *Engine) resolveMining(ctx context.Context, now time.Time) {
	e.mu.Lock()
	playerID := e.playerID
	sessionID, err := e.mining.BeginResolution(now)
	if err != nil {
		e.mu.Unlock()
		return
	}
	e.persistLocked(now)
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	span := e.tracer.StartSpan(callCtx, "resolve_mining", map[string]string{"player": playerID, "session": sessionID})
	reward, err := e.ledger.ResolveMining(callCtx, playerID, sessionID)
	e.tracer.EndSpan(span, err)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case errors.Is(err, domain.ErrConflictRejected):
		// Session was already paid by an earlier attempt whose response
		// was lost. Close it, no second reward.
		e.mining.Close(sessionID)
		observability.MiningResolutions.WithLabelValues("duplicate").Inc()
		e.persistLocked(now)
		return
	case err != nil:
		// Stays in AWAITING_PAYOUT; the next tick retries.
		observability.MiningResolutions.WithLabelValues("failed").Inc()
		log.Printf("[engine] mining resolution failed, will retry: %v", err)
		return
	}

	if !e.mining.Close(sessionID) {
		return
	}
	e.balance += reward
	observability.MiningResolutions.WithLabelValues("paid").Inc()
	e.journalLocked(domain.TxMine, domain.EntryCredit, reward, "", "mining payout")
	e.publishLocked(Event{Type: "mining_complete", Amount: reward, Source: "mining", Timestamp: now.Unix()})
	e.advanceLevelLocked(ctx, now)
	e.updateMetricsLocked()
	e.persistLocked(now)
}

// NeedsTick reports whether the update loop has work pending. At full
// energy with no mining run the loop can idle.
func (e *Engine) NeedsTick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.energy.NeedsTick() || e.mining.Active()
}

// ─── Reconciliation Hooks ───────────────────────────────────────────────────
// The reconcile.Flusher drives these. The pending delta is cleared only by
// CommitFlush; a failed flush refunds the batch's energy once and leaves
// the delta in place for retry under the same batch ID.

// PendingTaps returns the count of unflushed taps (hard-cap trigger).
func (e *Engine) PendingTaps() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingTaps
}

// PendingDelta returns the unconfirmed balance portion. It can be
// positive with zero pending taps: a level carry whose direct push
// failed waits here for the next flush.
func (e *Engine) PendingDelta() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingDelta
}

// BeginFlush carves the current pending delta into a batch and marks it
// in flight. A batch whose earlier attempt failed is returned again with
// the same BatchID so the ledger can deduplicate. Returns
// domain.ErrFlushInFlight while an attempt is outstanding and
// domain.ErrNothingToFlush when there is nothing to send.
func (e *Engine) BeginFlush() (Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight != nil {
		if e.inflight.sending {
			return Batch{}, domain.ErrFlushInFlight
		}
		e.inflight.sending = true
		return e.inflight.Batch, nil
	}
	if e.pendingDelta <= 0 {
		return Batch{}, domain.ErrNothingToFlush
	}

	e.flushSeq++
	e.inflight = &inflightBatch{
		Batch: Batch{
			BatchID: uuid.NewString(),
			Delta:   e.pendingDelta,
			Taps:    e.pendingTaps,
			Seq:     e.flushSeq,
		},
		sending: true,
	}
	return e.inflight.Batch, nil
}

// CommitFlush applies a confirmed flush: the flushed portion of the
// pending delta is cleared and the local balance snaps to the ledger's
// authoritative total plus whatever accumulated during the flight.
// A stale commit (superseded sequence) is discarded.
func (e *Engine) CommitFlush(b Batch, serverBalance int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight == nil || e.inflight.Seq != b.Seq {
		log.Printf("[engine] discarding stale flush response seq=%d", b.Seq)
		return
	}

	e.pendingDelta -= b.Delta
	e.pendingTaps -= b.Taps
	if e.pendingDelta < 0 {
		e.pendingDelta = 0
	}
	if e.pendingTaps < 0 {
		e.pendingTaps = 0
	}

	before := e.balance
	e.balance = serverBalance + e.pendingDelta
	if drift := e.balance - before; drift != 0 {
		entryType := domain.EntryCredit
		amount := drift
		if drift < 0 {
			entryType = domain.EntryDebit
			amount = -drift
		}
		e.journalLocked(domain.TxSync, entryType, amount, b.BatchID, "flush correction")
	}
	e.journalLocked(domain.TxTap, domain.EntryCredit, b.Delta, b.BatchID,
		fmt.Sprintf("%d taps confirmed", b.Taps))
	e.inflight = nil

	now := e.clock.Now()
	e.publishLocked(Event{Type: "credit_earned", Amount: b.Delta, Source: "tap", Timestamp: now.Unix()})
	e.advanceLevelLocked(context.Background(), now)
	e.updateMetricsLocked()
	e.persistLocked(now)
}

// RollbackFlush records a failed flush attempt. The energy the batch's
// taps consumed is credited back (once per batch) and the pending delta
// stays queued for retry.
func (e *Engine) RollbackFlush(b Batch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight == nil || e.inflight.Seq != b.Seq {
		return
	}
	e.inflight.sending = false
	if !e.inflight.refunded {
		e.energy.Refund(float64(b.Taps))
		e.inflight.refunded = true
	}

	now := e.clock.Now()
	e.updateMetricsLocked()
	e.persistLocked(now)
}

// ─── Views ──────────────────────────────────────────────────────────────────

// Status is the full engine snapshot served to the UI.
type Status struct {
	PlayerID       string
	DisplayName    string
	CharacterAsset string
	Balance        int64
	BalanceDisplay string
	PendingDelta   int64
	Energy         float64
	EnergyCapacity float64
	Level          int
	LevelProgress  float64
	BoostReadyIn   time.Duration
	Mining         MiningStatus
	Streak         []domain.RewardDay
	NextClaimIn    time.Duration
}

// Status reports the complete displayed state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	st := e.mining.State()
	ms := MiningStatus{
		Phase:     st.Phase,
		SessionID: st.SessionID,
		Progress:  e.mining.Progress(now),
	}
	if st.Phase == domain.MiningInProgress {
		if left := st.Duration - now.Sub(st.StartedAt); left > 0 {
			ms.Remaining = left
		}
	}

	days := e.streak.Days()
	streakCopy := make([]domain.RewardDay, len(days))
	copy(streakCopy, days)

	return Status{
		PlayerID:       e.playerID,
		DisplayName:    e.displayName,
		CharacterAsset: e.characterAsset,
		Balance:        e.balance,
		BalanceDisplay: domain.FormatAmount(e.balance),
		PendingDelta:   e.pendingDelta,
		Energy:         e.energy.Level(),
		EnergyCapacity: e.energy.Capacity(),
		Level:          e.ladder.LevelFor(e.balance),
		LevelProgress:  e.ladder.ProgressFraction(e.balance),
		BoostReadyIn:   e.boost.Remaining(now),
		Mining:         ms,
		Streak:         streakCopy,
		NextClaimIn:    e.streak.Remaining(now),
	}
}

// Journal returns the most recent credit-journal entries, newest first.
func (e *Engine) Journal(limit int) ([]domain.LedgerEntry, error) {
	e.mu.Lock()
	playerID := e.playerID
	e.mu.Unlock()
	return e.store.RecentJournal(playerID, limit)
}

// ─── Internals ──────────────────────────────────────────────────────────────

// persistLocked snapshots the full state. Caller holds e.mu. A write
// failure is logged, never fatal: the in-memory state stays correct and
// the next mutation retries the write.
func (e *Engine) persistLocked(now time.Time) {
	snap := domain.PlayerState{
		PlayerID:     e.playerID,
		DisplayName:  e.displayName,
		Balance:      e.balance,
		Energy:       e.energy.Level(),
		LastRefill:   e.energy.LastRefill(),
		Boost:        e.boost.State(),
		Mining:       e.mining.State(),
		LevelIndex:   e.ladder.LevelFor(e.balance),
		Streak:       e.streak.Days(),
		NextClaimAt:  e.streak.NextClaimAt(),
		PendingDelta: e.pendingDelta,
		PendingTaps:  e.pendingTaps,
		UpdatedAt:    now,
	}
	if err := e.store.SaveSnapshot(snap); err != nil {
		log.Printf("[engine] snapshot write failed: %v", err)
	}
}

// journalLocked appends a credit-journal entry. Caller holds e.mu.
func (e *Engine) journalLocked(tx domain.TransactionType, side domain.EntryType, amount int64, batchID, note string) {
	entry := domain.LedgerEntry{
		PlayerID:  e.playerID,
		Timestamp: e.clock.Now(),
		Type:      tx,
		EntryType: side,
		Amount:    amount,
		BatchID:   batchID,
		Note:      note,
		Balance:   e.balance,
	}
	if err := e.store.AppendJournal(entry); err != nil {
		log.Printf("[engine] journal append failed: %v", err)
	}
}

func (e *Engine) publishLocked(ev Event) {
	e.sink.Publish(ev)
}

func (e *Engine) updateMetricsLocked() {
	observability.EnergyLevel.Set(e.energy.Level())
	observability.BalanceLocal.Set(float64(e.balance))
	observability.PendingDelta.Set(float64(e.pendingDelta))
	observability.PlayerLevel.Set(float64(e.ladder.LevelFor(e.balance)))
}
