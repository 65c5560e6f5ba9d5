package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ducktap-game/ducktap/internal/api"
	"github.com/ducktap-game/ducktap/internal/domain"
	"github.com/ducktap-game/ducktap/internal/engine"
	"github.com/ducktap-game/ducktap/internal/engine/reconcile"
	"github.com/ducktap-game/ducktap/internal/infra/ledger"
	"github.com/ducktap-game/ducktap/internal/infra/observability"
	"github.com/ducktap-game/ducktap/internal/infra/sqlite"
)

// tickInterval is the engine update step: frequent enough that energy
// refill looks continuous, cheap enough to run forever.
const tickInterval = 250 * time.Millisecond

// Daemon is the assembled ducktap process.
type Daemon struct {
	cfg     Config
	db      *sqlite.DB
	engine  *engine.Engine
	flusher *reconcile.Flusher
	tracer  *observability.Tracer
	hub     *api.EventsHub
	server  *api.Server
	ledger  domain.Ledger
}

// New wires every component from the config. The player must be set:
// the daemon runs one session for one player.
func New(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Player.ID == "" {
		return nil, fmt.Errorf("player.id is required (set it in %s)", ConfigPath())
	}

	db, err := sqlite.Open(cfg.StorageDir())
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	tracer := observability.NewTracer(observability.TracerConfig{
		Enabled:  cfg.Trace.Enabled,
		MaxSpans: cfg.Trace.MaxSpans,
	})
	remote := ledger.New(ledger.Config{
		BaseURL: cfg.Ledger.BaseURL,
		Timeout: parseDuration(cfg.Ledger.Timeout, 10*time.Second),
	})
	hub := api.NewEventsHub()

	eng := engine.New(engine.Config{
		TapValue:       cfg.Game.TapValue,
		EnergyCapacity: cfg.Game.EnergyCapacity,
		RefillWindow:   parseDuration(cfg.Game.RefillWindow, 60*time.Second),
		BoostCooldown:  parseDuration(cfg.Game.BoostCooldown, 60*time.Second),
		MiningDuration: parseDuration(cfg.Mining.Duration, 60*time.Second),
		RewardDays:     cfg.Rewards.Days,
		LevelBands:     domain.DefaultLevelTable(),
		CallTimeout:    parseDuration(cfg.Sync.Timeout, 10*time.Second),
	}, engine.Deps{
		Store:  db,
		Ledger: remote,
		Sink:   hub,
		Tracer: tracer,
	})

	flusher := reconcile.New(reconcile.Config{
		Interval:    parseDuration(cfg.Sync.Interval, 300*time.Millisecond),
		HardCapTaps: cfg.Sync.HardCapTaps,
		BaseBackoff: parseDuration(cfg.Sync.BaseBackoff, time.Second),
		MaxBackoff:  parseDuration(cfg.Sync.MaxBackoff, 30*time.Second),
		CallTimeout: parseDuration(cfg.Sync.Timeout, 10*time.Second),
	}, cfg.Player.ID, eng, remote, db, tracer)

	srv := api.NewServer(eng, remote)
	srv.SetFlusher(flusher)
	srv.SetTracer(tracer)
	srv.SetEventsHub(hub)
	srv.SetBotName(cfg.Player.BotName)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	return &Daemon{
		cfg:     cfg,
		db:      db,
		engine:  eng,
		flusher: flusher,
		tracer:  tracer,
		hub:     hub,
		server:  srv,
		ledger:  remote,
	}, nil
}

// Engine exposes the engine for the CLI's direct-call paths.
func (d *Daemon) Engine() *engine.Engine { return d.engine }

// Run starts the session and serves until ctx is cancelled. Shutdown is
// graceful: the flush loop drains, the HTTP server finishes in-flight
// requests, and the final state snapshot is already on disk (the engine
// persists after every mutation).
func (d *Daemon) Run(ctx context.Context) error {
	defer d.db.Close()

	if err := d.engine.Start(ctx, d.cfg.Player.ID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	var wg sync.WaitGroup
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.flusher.Run(loopCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.tickLoop(loopCtx)
	}()

	addr := net.JoinHostPort(d.cfg.API.Host, strconv.Itoa(d.cfg.API.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("[daemon] shutting down")
	case err := <-errCh:
		cancelLoops()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[daemon] http shutdown: %v", err)
	}

	cancelLoops()
	wg.Wait()
	log.Printf("[daemon] stopped")
	return nil
}

// tickLoop drives the engine's timers.
func (d *Daemon) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.engine.Tick(ctx)
		}
	}
}
