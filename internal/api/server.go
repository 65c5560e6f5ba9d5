// Package api provides the local HTTP server the game UI talks to.
// Every endpoint reads or mutates the engine's state; the engine does the
// actual economy work and the reconciliation with the remote ledger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ducktap-game/ducktap/internal/domain"
	"github.com/ducktap-game/ducktap/internal/engine"
	"github.com/ducktap-game/ducktap/internal/engine/reconcile"
	"github.com/ducktap-game/ducktap/internal/infra/observability"
)

// Version is the reported daemon version.
const Version = "0.1.0"

// Server is the local game API server.
type Server struct {
	engine         *engine.Engine
	ledger         domain.Ledger
	flusher        *reconcile.Flusher
	tracer         *observability.Tracer
	hub            *EventsHub
	botName        string
	metricsEnabled bool
}

// NewServer creates an API server around the engine.
func NewServer(eng *engine.Engine, ledger domain.Ledger) *Server {
	return &Server{engine: eng, ledger: ledger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetFlusher sets the reconciliation flusher for status reporting.
func (s *Server) SetFlusher(f *reconcile.Flusher) { s.flusher = f }

// SetTracer sets the span tracer served at /api/trace.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetEventsHub sets the live events SSE hub.
func (s *Server) SetEventsHub(h *EventsHub) { s.hub = h }

// SetBotName sets the bot handle used to build referral share links.
func (s *Server) SetBotName(name string) { s.botName = name }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})
		r.Get("/player", s.handlePlayer)
		r.Post("/tap", s.handleTap)
		r.Post("/boost", s.handleBoost)
		r.Post("/mine/start", s.handleMineStart)
		r.Get("/mine", s.handleMineStatus)
		r.Get("/rewards", s.handleRewards)
		r.Post("/rewards/claim", s.handleRewardsClaim)
		r.Get("/journal", s.handleJournal)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/referral", s.handleReferral)
	})

	if s.tracer != nil {
		r.Get("/api/trace", s.handleTrace)
	}
	if s.hub != nil {
		r.Get("/api/events/live", s.hub.HandleEventsSSE)
	}
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// handleStatus reports daemon liveness plus reconciliation health.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	resp := map[string]interface{}{
		"status":        "running",
		"player_id":     st.PlayerID,
		"pending_delta": st.PendingDelta,
	}
	if s.flusher != nil {
		failures, next := s.flusher.Backoff()
		resp["flush_failures"] = failures
		if !next.IsZero() {
			resp["next_flush_attempt"] = next.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePlayer returns the full displayed state.
// GET /api/player
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"player_id":       st.PlayerID,
		"display_name":    st.DisplayName,
		"character_asset": st.CharacterAsset,
		"balance":         st.Balance,
		"balance_display": st.BalanceDisplay,
		"pending_delta":   st.PendingDelta,
		"energy":          st.Energy,
		"energy_capacity": st.EnergyCapacity,
		"level":           st.Level,
		"level_progress":  st.LevelProgress,
		"boost_ready_in":  st.BoostReadyIn.Seconds(),
		"mining":          miningPayload(st.Mining),
		"streak":          st.Streak,
		"next_claim_in":   st.NextClaimIn.Seconds(),
	})
}

// handleTap registers one tap. A tap refused for lack of energy is a
// silent no-op: the response reports accepted=false, never an error.
// POST /api/tap
func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Tap(r.Context())
	if errors.Is(err, domain.ErrInsufficientEnergy) {
		st := s.engine.Status()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accepted": false,
			"balance":  st.Balance,
			"energy":   st.Energy,
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"accepted": true,
		"balance":  result.Balance,
		"energy":   result.Energy,
	}
	if result.LevelUp != nil {
		resp["level_up"] = result.LevelUp
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBoost triggers the instant refill.
// POST /api/boost
func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Boost(r.Context())
	switch {
	case errors.Is(err, domain.ErrBoostOnCooldown):
		st := s.engine.Status()
		writeError(w, http.StatusConflict,
			"boost on cooldown for "+st.BoostReadyIn.Truncate(time.Second).String())
		return
	case errors.Is(err, domain.ErrEnergyFull):
		writeError(w, http.StatusConflict, "energy already full")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"energy":         st.Energy,
		"boost_ready_in": st.BoostReadyIn.Seconds(),
	})
}

// handleMineStart begins a mining run.
// POST /api/mine/start
func (s *Server) handleMineStart(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.StartMining(r.Context())
	if errors.Is(err, domain.ErrMiningInProgress) {
		writeError(w, http.StatusConflict, "mining already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": state.SessionID,
		"started_at": state.StartedAt.Format(time.RFC3339),
		"duration":   state.Duration.Seconds(),
	})
}

// handleMineStatus reports the current run.
// GET /api/mine
func (s *Server) handleMineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, miningPayload(s.engine.MiningStatusNow()))
}

// handleRewards returns the streak with claim eligibility.
// GET /api/rewards
func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streak":        st.Streak,
		"next_claim_in": st.NextClaimIn.Seconds(),
	})
}

// handleRewardsClaim claims the next streak entry.
// POST /api/rewards/claim
func (s *Server) handleRewardsClaim(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ClaimDaily(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotYetEligible),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrNothingToClaim):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"points_earned": result.PointsEarned,
		"message":       result.Message,
		"balance":       st.Balance,
	})
}

// handleJournal returns recent credit-journal entries, newest first.
// GET /api/journal?limit=N
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	entries, err := s.engine.Journal(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleLeaderboard passes the ledger's leaderboard through for display.
// GET /api/leaderboard?limit=N
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	entries, err := s.ledger.Leaderboard(ctx, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleReferral returns the player's invite share link.
// GET /api/referral
func (s *Server) handleReferral(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":       st.PlayerID,
		"share_link": domain.ShareLink(s.botName, st.PlayerID),
	})
}

// handleTrace returns recent remote-call spans.
// GET /api/trace?limit=N
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spans": s.tracer.Spans(limit),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func miningPayload(m engine.MiningStatus) map[string]interface{} {
	return map[string]interface{}{
		"phase":      string(m.Phase),
		"session_id": m.SessionID,
		"progress":   m.Progress,
		"remaining":  m.Remaining.Seconds(),
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers so a local web UI can call the daemon.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
