package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
	"github.com/ducktap-game/ducktap/internal/engine"
	"github.com/ducktap-game/ducktap/internal/infra/sqlite"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLedger struct {
	mu             sync.Mutex
	balance        int64
	miningReward   int64
	claimReward    int64
	rewards        []domain.RewardDay
	paidSessions   map[string]bool
	seenBatches    map[string]bool
	failFlush      bool
	failMining     bool
	claimConflict  bool
	rewardsGate    chan struct{} // when set, GetDailyRewards blocks until closed
	rewardsEntered chan struct{}
	setPoints      []int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		miningReward: 500,
		claimReward:  10,
		paidSessions: make(map[string]bool),
		seenBatches:  make(map[string]bool),
	}
}

func (l *fakeLedger) GetPlayer(ctx context.Context, playerID string) (domain.PlayerInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.PlayerInfo{PlayerID: playerID, Balance: l.balance, Username: "testduck"}, nil
}

func (l *fakeLedger) ApplyTapBatch(ctx context.Context, playerID, batchID string, increment int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failFlush {
		return 0, errors.New("connection refused")
	}
	if !l.seenBatches[batchID] {
		l.seenBatches[batchID] = true
		l.balance += increment
	}
	return l.balance, nil
}

func (l *fakeLedger) ResolveMining(ctx context.Context, playerID, sessionID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failMining {
		return 0, errors.New("connection refused")
	}
	if l.paidSessions[sessionID] {
		return 0, domain.ErrConflictRejected
	}
	l.paidSessions[sessionID] = true
	l.balance += l.miningReward
	return l.miningReward, nil
}

func (l *fakeLedger) GetDailyRewards(ctx context.Context, playerID string) ([]domain.RewardDay, error) {
	l.mu.Lock()
	gate, entered := l.rewardsGate, l.rewardsEntered
	days := l.rewards
	l.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return days, nil
}

func (l *fakeLedger) ClaimDailyReward(ctx context.Context, playerID string) (domain.ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimConflict {
		return domain.ClaimResult{}, domain.ErrConflictRejected
	}
	l.balance += l.claimReward
	return domain.ClaimResult{PointsEarned: l.claimReward}, nil
}

func (l *fakeLedger) SetPoints(ctx context.Context, playerID string, value int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = value
	l.setPoints = append(l.setPoints, value)
	return nil
}

func (l *fakeLedger) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

type recordSink struct {
	mu     sync.Mutex
	events []engine.Event
}

func (s *recordSink) Publish(ev engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) byType(t string) []engine.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ─── Fixtures ───────────────────────────────────────────────────────────────

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.MiningDuration = 60 * time.Second
	cfg.CallTimeout = 2 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, cfg engine.Config, ledger *fakeLedger, clock *fakeClock) (*engine.Engine, *sqlite.DB, *recordSink) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sink := &recordSink{}
	e := engine.New(cfg, engine.Deps{Store: db, Ledger: ledger, Clock: clock, Sink: sink})
	if err := e.Start(context.Background(), "player-1"); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	return e, db, sink
}

// ─── Tap & Flush ────────────────────────────────────────────────────────────

func TestTapFlushEndToEnd(t *testing.T) {
	ledger := newFakeLedger()
	e, _, _ := newTestEngine(t, testConfig(), ledger, newFakeClock())

	for i := 0; i < 10; i++ {
		if _, err := e.Tap(context.Background()); err != nil {
			t.Fatalf("tap %d: %v", i, err)
		}
	}

	st := e.Status()
	if st.Energy != 90 {
		t.Errorf("energy = %v, want 90", st.Energy)
	}
	if st.Balance != 10 || st.PendingDelta != 10 {
		t.Errorf("balance = %d pending = %d, want 10/10", st.Balance, st.PendingDelta)
	}

	batch, err := e.BeginFlush()
	if err != nil {
		t.Fatalf("begin flush: %v", err)
	}
	if batch.Delta != 10 || batch.Taps != 10 {
		t.Errorf("batch = %+v", batch)
	}
	server, err := ledger.ApplyTapBatch(context.Background(), "player-1", batch.BatchID, batch.Delta)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	e.CommitFlush(batch, server)

	st = e.Status()
	if st.Balance != 10 {
		t.Errorf("balance after commit = %d, want exactly 10", st.Balance)
	}
	if st.PendingDelta != 0 {
		t.Errorf("pending after commit = %d, want 0", st.PendingDelta)
	}
}

func TestFlushRollbackRefundsEnergyRetainsDelta(t *testing.T) {
	ledger := newFakeLedger()
	e, _, _ := newTestEngine(t, testConfig(), ledger, newFakeClock())

	for i := 0; i < 5; i++ {
		if _, err := e.Tap(context.Background()); err != nil {
			t.Fatalf("tap: %v", err)
		}
	}
	if st := e.Status(); st.Energy != 95 {
		t.Fatalf("energy = %v, want 95", st.Energy)
	}

	batch, err := e.BeginFlush()
	if err != nil {
		t.Fatalf("begin flush: %v", err)
	}
	e.RollbackFlush(batch)

	st := e.Status()
	if st.Energy != 100 {
		t.Errorf("energy after rollback = %v, want 100 (5 units credited back)", st.Energy)
	}
	if st.PendingDelta != 5 {
		t.Errorf("pending after rollback = %d, want 5 (retained for retry)", st.PendingDelta)
	}

	// The retry reuses the same batch so the ledger can deduplicate.
	retry, err := e.BeginFlush()
	if err != nil {
		t.Fatalf("retry begin: %v", err)
	}
	if retry.BatchID != batch.BatchID {
		t.Errorf("retry batch ID changed: %s vs %s", retry.BatchID, batch.BatchID)
	}
	server, _ := ledger.ApplyTapBatch(context.Background(), "player-1", retry.BatchID, retry.Delta)
	e.CommitFlush(retry, server)
	if st := e.Status(); st.Balance != 5 || st.PendingDelta != 0 {
		t.Errorf("after retry commit: balance = %d pending = %d", st.Balance, st.PendingDelta)
	}
}

func TestFlushSingleInFlight(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), newFakeLedger(), newFakeClock())

	if _, err := e.Tap(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.BeginFlush(); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if _, err := e.BeginFlush(); !errors.Is(err, domain.ErrFlushInFlight) {
		t.Errorf("second begin err = %v, want ErrFlushInFlight", err)
	}
}

func TestBeginFlushEmpty(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(), newFakeLedger(), newFakeClock())
	if _, err := e.BeginFlush(); !errors.Is(err, domain.ErrNothingToFlush) {
		t.Errorf("err = %v, want ErrNothingToFlush", err)
	}
}

func TestTapsAccumulateDuringFlight(t *testing.T) {
	ledger := newFakeLedger()
	e, _, _ := newTestEngine(t, testConfig(), ledger, newFakeClock())

	for i := 0; i < 3; i++ {
		e.Tap(context.Background())
	}
	batch, _ := e.BeginFlush()

	// Two more taps land while the batch is in flight.
	e.Tap(context.Background())
	e.Tap(context.Background())

	server, _ := ledger.ApplyTapBatch(context.Background(), "player-1", batch.BatchID, batch.Delta)
	e.CommitFlush(batch, server)

	st := e.Status()
	if st.PendingDelta != 2 {
		t.Errorf("pending = %d, want 2 (in-flight taps)", st.PendingDelta)
	}
	if st.Balance != 5 {
		t.Errorf("balance = %d, want 5 (server 3 + pending 2)", st.Balance)
	}
}

func TestTapRejectedWhenEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.EnergyCapacity = 2
	e, _, _ := newTestEngine(t, cfg, newFakeLedger(), newFakeClock())

	e.Tap(context.Background())
	e.Tap(context.Background())
	if _, err := e.Tap(context.Background()); !errors.Is(err, domain.ErrInsufficientEnergy) {
		t.Errorf("err = %v, want ErrInsufficientEnergy", err)
	}
	if st := e.Status(); st.Balance != 2 {
		t.Errorf("balance = %d, want 2 (rejected tap credited nothing)", st.Balance)
	}
}

// ─── Boost ──────────────────────────────────────────────────────────────────

func TestBoostRefillsAndCoolsDown(t *testing.T) {
	clock := newFakeClock()
	e, _, _ := newTestEngine(t, testConfig(), newFakeLedger(), clock)

	if err := e.Boost(context.Background()); !errors.Is(err, domain.ErrEnergyFull) {
		t.Errorf("boost at full err = %v, want ErrEnergyFull", err)
	}

	for i := 0; i < 40; i++ {
		e.Tap(context.Background())
	}
	if err := e.Boost(context.Background()); err != nil {
		t.Fatalf("boost: %v", err)
	}
	if st := e.Status(); st.Energy != 100 {
		t.Errorf("energy after boost = %v, want 100", st.Energy)
	}

	e.Tap(context.Background())
	if err := e.Boost(context.Background()); !errors.Is(err, domain.ErrBoostOnCooldown) {
		t.Errorf("second boost err = %v, want ErrBoostOnCooldown", err)
	}

	clock.Advance(61 * time.Second)
	e.Tap(context.Background())
	if err := e.Boost(context.Background()); err != nil {
		t.Errorf("boost after cooldown: %v", err)
	}
}

// ─── Mining ─────────────────────────────────────────────────────────────────

func TestMiningLifecycle(t *testing.T) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	e, _, sink := newTestEngine(t, testConfig(), ledger, clock)

	if _, err := e.StartMining(context.Background()); err != nil {
		t.Fatalf("start mining: %v", err)
	}
	if _, err := e.StartMining(context.Background()); !errors.Is(err, domain.ErrMiningInProgress) {
		t.Errorf("double start err = %v, want ErrMiningInProgress", err)
	}

	clock.Advance(30 * time.Second)
	if p := e.MiningStatusNow().Progress; p < 0.49 || p > 0.51 {
		t.Errorf("progress at halfway = %v", p)
	}
	e.Tick(context.Background())
	if got := e.MiningStatusNow().Phase; got != domain.MiningInProgress {
		t.Errorf("phase before due = %s", got)
	}

	clock.Advance(31 * time.Second)
	e.Tick(context.Background())

	st := e.Status()
	if st.Mining.Phase != domain.MiningIdle {
		t.Errorf("phase after payout = %s, want IDLE", st.Mining.Phase)
	}
	if st.Balance != 500 {
		t.Errorf("balance = %d, want 500 (server reward)", st.Balance)
	}
	if evs := sink.byType("mining_complete"); len(evs) != 1 || evs[0].Amount != 500 {
		t.Errorf("mining_complete events = %+v", evs)
	}
}

func TestMiningResolutionRetriesAfterFailure(t *testing.T) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	ledger.failMining = true
	e, _, _ := newTestEngine(t, testConfig(), ledger, clock)

	e.StartMining(context.Background())
	clock.Advance(61 * time.Second)
	e.Tick(context.Background())

	if got := e.MiningStatusNow().Phase; got != domain.MiningAwaitingPayout {
		t.Fatalf("phase after failed resolution = %s, want AWAITING_PAYOUT", got)
	}

	ledger.mu.Lock()
	ledger.failMining = false
	ledger.mu.Unlock()
	e.Tick(context.Background())

	if got := e.MiningStatusNow().Phase; got != domain.MiningIdle {
		t.Errorf("phase after retry = %s, want IDLE", got)
	}
	if st := e.Status(); st.Balance != 500 {
		t.Errorf("balance = %d, want 500 (paid exactly once)", st.Balance)
	}
}

// ─── Daily Streak ───────────────────────────────────────────────────────────

func TestClaimDaily(t *testing.T) {
	clock := newFakeClock()
	e, _, _ := newTestEngine(t, testConfig(), newFakeLedger(), clock)

	result, err := e.ClaimDaily(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.PointsEarned != 10 {
		t.Errorf("points = %d, want 10", result.PointsEarned)
	}
	if st := e.Status(); st.Balance != 10 {
		t.Errorf("balance = %d, want 10", st.Balance)
	}

	if _, err := e.ClaimDaily(context.Background()); !errors.Is(err, domain.ErrNotYetEligible) {
		t.Errorf("second claim err = %v, want ErrNotYetEligible", err)
	}
}

func TestTapNotBlockedByClaimConflictRefresh(t *testing.T) {
	ledger := newFakeLedger()
	e, _, _ := newTestEngine(t, testConfig(), ledger, newFakeClock())

	// A claim conflict triggers a history refresh; park that round trip
	// on a gate and verify taps keep registering meanwhile.
	ledger.mu.Lock()
	ledger.claimConflict = true
	ledger.rewardsGate = make(chan struct{})
	ledger.rewardsEntered = make(chan struct{}, 1)
	ledger.mu.Unlock()

	claimed := make(chan domain.ClaimResult, 1)
	go func() {
		result, _ := e.ClaimDaily(context.Background())
		claimed <- result
	}()
	<-ledger.rewardsEntered

	tapped := make(chan struct{})
	go func() {
		if _, err := e.Tap(context.Background()); err != nil {
			t.Errorf("tap during refresh: %v", err)
		}
		close(tapped)
	}()
	select {
	case <-tapped:
	case <-time.After(time.Second):
		t.Fatal("tap stalled behind the reward-history refresh")
	}

	close(ledger.rewardsGate)
	select {
	case result := <-claimed:
		if result.Message != "already claimed" {
			t.Errorf("claim message = %q, want benign conflict", result.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("claim did not settle")
	}
}

// ─── Resume & Recovery ──────────────────────────────────────────────────────

func TestRestartFastForwardsEnergy(t *testing.T) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := testConfig()
	cfg.LevelBands = []domain.LevelBand{{Min: 0, Max: 1_000_000}}
	e := engine.New(cfg, engine.Deps{Store: db, Ledger: ledger, Clock: clock})
	if err := e.Start(context.Background(), "player-1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		e.Tap(context.Background())
	}
	if st := e.Status(); st.Energy != 0 {
		t.Fatalf("energy = %v, want 0", st.Energy)
	}

	// Process closes for a full refill window.
	clock.Advance(60 * time.Second)
	e2 := engine.New(cfg, engine.Deps{Store: db, Ledger: ledger, Clock: clock})
	if err := e2.Start(context.Background(), "player-1"); err != nil {
		t.Fatal(err)
	}

	st := e2.Status()
	if st.Energy != 100 {
		t.Errorf("energy after resume = %v, want 100", st.Energy)
	}
	if st.PendingDelta != 100 {
		t.Errorf("pending after resume = %d, want 100 (preserved)", st.PendingDelta)
	}
	if st.Balance != 100 {
		t.Errorf("balance = %d, want 100 (server 0 + pending 100)", st.Balance)
	}
}

func TestCorruptSnapshotRebootstraps(t *testing.T) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	ledger.balance = 777
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Persist a snapshot that fails validation on load.
	bad := domain.PlayerState{PlayerID: "player-1", Balance: -50, UpdatedAt: clock.Now()}
	if err := db.SaveSnapshot(bad); err != nil {
		t.Fatal(err)
	}

	e := engine.New(testConfig(), engine.Deps{Store: db, Ledger: ledger, Clock: clock})
	if err := e.Start(context.Background(), "player-1"); err != nil {
		t.Fatalf("start with corrupt snapshot: %v", err)
	}

	st := e.Status()
	if st.Balance != 777 {
		t.Errorf("balance = %d, want 777 (re-bootstrapped from ledger)", st.Balance)
	}
	if st.Energy != 100 {
		t.Errorf("energy = %v, want fresh full bucket", st.Energy)
	}
}

func TestResumeRecoversElapsedMiningRun(t *testing.T) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := testConfig()
	e := engine.New(cfg, engine.Deps{Store: db, Ledger: ledger, Clock: clock})
	if err := e.Start(context.Background(), "player-1"); err != nil {
		t.Fatal(err)
	}
	e.StartMining(context.Background())

	// Restart after the run elapsed while the process was closed.
	clock.Advance(5 * time.Minute)
	e2 := engine.New(cfg, engine.Deps{Store: db, Ledger: ledger, Clock: clock})
	if err := e2.Start(context.Background(), "player-1"); err != nil {
		t.Fatal(err)
	}
	e2.Tick(context.Background())

	st := e2.Status()
	if st.Mining.Phase != domain.MiningIdle {
		t.Errorf("phase = %s, want IDLE after resumed payout", st.Mining.Phase)
	}
	if st.Balance != 500 {
		t.Errorf("balance = %d, want 500", st.Balance)
	}
}

// ─── Level Ladder ───────────────────────────────────────────────────────────

func TestLevelUpOnBandBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.EnergyCapacity = 200
	ledger := newFakeLedger()
	e, _, sink := newTestEngine(t, cfg, ledger, newFakeClock())

	for i := 0; i < 100; i++ {
		if _, err := e.Tap(context.Background()); err != nil {
			t.Fatalf("tap %d: %v", i, err)
		}
	}

	st := e.Status()
	if st.Balance != 101 {
		t.Errorf("balance = %d, want 101 (auto-advance past band max)", st.Balance)
	}
	if st.Level != 1 {
		t.Errorf("level = %d, want 1", st.Level)
	}
	evs := sink.byType("level_up")
	if len(evs) != 1 || evs[0].Level != 1 || evs[0].Gradient == "" {
		t.Errorf("level_up events = %+v", evs)
	}

	// The carry-over push is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ledger.mu.Lock()
		n := len(ledger.setPoints)
		ledger.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if len(ledger.setPoints) != 1 || ledger.setPoints[0] != 1 {
		t.Errorf("setPoints calls = %v, want [1] (carry on top of server total)", ledger.setPoints)
	}
}

func TestLevelUpOnMiningPayout(t *testing.T) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	ledger.miningReward = 100 // lands exactly on the first band ceiling
	e, _, sink := newTestEngine(t, testConfig(), ledger, clock)

	e.StartMining(context.Background())
	clock.Advance(61 * time.Second)
	e.Tick(context.Background())

	st := e.Status()
	if st.Balance != 101 {
		t.Errorf("balance = %d, want 101 (advanced past the ceiling)", st.Balance)
	}
	if st.Level != 1 {
		t.Errorf("level = %d, want 1", st.Level)
	}
	if evs := sink.byType("level_up"); len(evs) != 1 {
		t.Errorf("level_up events = %+v, want exactly one", evs)
	}
}

func TestLevelUpOnDailyClaim(t *testing.T) {
	ledger := newFakeLedger()
	ledger.claimReward = 100
	e, _, sink := newTestEngine(t, testConfig(), ledger, newFakeClock())

	if _, err := e.ClaimDaily(context.Background()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	st := e.Status()
	if st.Balance != 101 {
		t.Errorf("balance = %d, want 101 (advanced past the ceiling)", st.Balance)
	}
	if st.Level != 1 {
		t.Errorf("level = %d, want 1", st.Level)
	}
	if evs := sink.byType("level_up"); len(evs) != 1 {
		t.Errorf("level_up events = %+v, want exactly one", evs)
	}
}

func TestLevelUpOnFlushCommit(t *testing.T) {
	ledger := newFakeLedger()
	e, _, sink := newTestEngine(t, testConfig(), ledger, newFakeClock())

	for i := 0; i < 5; i++ {
		if _, err := e.Tap(context.Background()); err != nil {
			t.Fatalf("tap %d: %v", i, err)
		}
	}
	batch, err := e.BeginFlush()
	if err != nil {
		t.Fatalf("begin flush: %v", err)
	}

	// Another context earned meanwhile; the confirmed total lands exactly
	// on the band ceiling.
	ledger.mu.Lock()
	ledger.balance = 95
	ledger.mu.Unlock()
	server, err := ledger.ApplyTapBatch(context.Background(), "player-1", batch.BatchID, batch.Delta)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	e.CommitFlush(batch, server)

	st := e.Status()
	if st.Balance != 101 {
		t.Errorf("balance = %d, want 101 (advanced past the ceiling)", st.Balance)
	}
	if st.Level != 1 {
		t.Errorf("level = %d, want 1", st.Level)
	}
	if evs := sink.byType("level_up"); len(evs) != 1 {
		t.Errorf("level_up events = %+v, want exactly one", evs)
	}
}
