package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
}

func TestGetPlayer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/player/duck-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.PlayerInfo{
			PlayerID: "duck-1",
			Balance:  4200,
			Username: "quackmaster",
		})
	}))

	info, err := c.GetPlayer(context.Background(), "duck-1")
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if info.Balance != 4200 || info.Username != "quackmaster" {
		t.Errorf("info = %+v", info)
	}
}

func TestGetPlayerNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetPlayer(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrPlayerUnknown) {
		t.Errorf("err = %v, want ErrPlayerUnknown", err)
	}
}

func TestApplyTapBatch(t *testing.T) {
	var gotKey string
	var gotBody tapBatchRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]int64{"new_balance": 4225})
	}))

	balance, err := c.ApplyTapBatch(context.Background(), "duck-1", "batch-abc", 25)
	if err != nil {
		t.Fatalf("ApplyTapBatch: %v", err)
	}
	if balance != 4225 {
		t.Errorf("balance = %d, want 4225", balance)
	}
	if gotKey != "batch-abc" {
		t.Errorf("Idempotency-Key = %q, want batch-abc", gotKey)
	}
	if gotBody.PlayerID != "duck-1" || gotBody.Increment != 25 {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestApplyTapBatchMissingBalance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	if _, err := c.ApplyTapBatch(context.Background(), "duck-1", "b", 1); err == nil {
		t.Error("expected error for payload without new_balance")
	}
}

func TestResolveMiningConflict(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	_, err := c.ResolveMining(context.Background(), "duck-1", "session-1")
	if !errors.Is(err, domain.ErrConflictRejected) {
		t.Errorf("err = %v, want ErrConflictRejected", err)
	}
}

func TestResolveMiningPayout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("Idempotency-Key"); key != "session-77" {
			t.Errorf("Idempotency-Key = %q", key)
		}
		json.NewEncoder(w).Encode(map[string]int64{"reward_amount": 580})
	}))

	reward, err := c.ResolveMining(context.Background(), "duck-1", "session-77")
	if err != nil {
		t.Fatalf("ResolveMining: %v", err)
	}
	if reward != 580 {
		t.Errorf("reward = %d, want 580", reward)
	}
}

func TestServerErrorMessageSurfaced(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"ledger shard unavailable"}}`))
	}))

	_, err := c.Leaderboard(context.Background(), 10)
	if err == nil || !strings.Contains(err.Error(), "ledger shard unavailable") {
		t.Errorf("err = %v, want shard message", err)
	}
}

func TestClaimDailyReward(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.ClaimResult{PointsEarned: 30, Message: "day 3 claimed"})
	}))

	result, err := c.ClaimDailyReward(context.Background(), "duck-1")
	if err != nil {
		t.Fatalf("ClaimDailyReward: %v", err)
	}
	if result.PointsEarned != 30 {
		t.Errorf("points = %d, want 30", result.PointsEarned)
	}
}

func TestLeaderboard(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Errorf("limit = %q", got)
		}
		json.NewEncoder(w).Encode(leaderboardResponse{Entries: []domain.LeaderboardEntry{
			{Rank: 1, PlayerID: "a", Balance: 900},
			{Rank: 2, PlayerID: "b", Balance: 500},
		}})
	}))

	entries, err := c.Leaderboard(context.Background(), 3)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 2 || entries[0].Rank != 1 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	c.http.Timeout = 20 * time.Millisecond

	_, err := c.ApplyTapBatch(context.Background(), "duck-1", "slow", 5)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errors.Is(err, domain.ErrConflictRejected) {
		t.Error("timeout must not look like a conflict")
	}
}
