// Package ledger implements the HTTP client for the remote ledger service,
// the authoritative record of every player's balance and claim history.
//
// Every response is decoded into a strict result type at this boundary;
// malformed payloads are reported as errors, never propagated as zero
// values. All calls carry a bounded timeout — a timed-out flush or
// resolution is a network failure for the caller's retry path, never a
// silent success. Mutating calls send an Idempotency-Key header so a
// retry of a request whose response was lost cannot double-apply.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// Config controls the ledger client.
type Config struct {
	BaseURL string        // e.g. "https://api.ducktap.example"
	Timeout time.Duration // per-call bound (default 10s)
}

// DefaultConfig returns production defaults.
func DefaultConfig(baseURL string) Config {
	return Config{BaseURL: baseURL, Timeout: 10 * time.Second}
}

// Client talks to the remote ledger over JSON/HTTP.
type Client struct {
	base string
	http *http.Client
}

// Client implements domain.Ledger.
var _ domain.Ledger = (*Client)(nil)

// New creates a ledger client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: cfg.BaseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// ─── Wire Types ─────────────────────────────────────────────────────────────

type tapBatchRequest struct {
	PlayerID  string `json:"player_id"`
	Increment int64  `json:"increment"`
}

type tapBatchResponse struct {
	NewBalance *int64 `json:"new_balance"`
}

type resolveMiningRequest struct {
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
}

type resolveMiningResponse struct {
	RewardAmount *int64 `json:"reward_amount"`
}

type setPointsRequest struct {
	PlayerID string `json:"player_id"`
	Value    int64  `json:"value"`
}

type dailyRewardsResponse struct {
	Rewards []domain.RewardDay `json:"rewards"`
}

type leaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ─── Operations ─────────────────────────────────────────────────────────────

// GetPlayer fetches authoritative state on session start.
func (c *Client) GetPlayer(ctx context.Context, playerID string) (domain.PlayerInfo, error) {
	var info domain.PlayerInfo
	err := c.call(ctx, http.MethodGet, "/api/player/"+url.PathEscape(playerID), "", nil, &info)
	if err != nil {
		return domain.PlayerInfo{}, err
	}
	if info.PlayerID == "" {
		info.PlayerID = playerID
	}
	return info, nil
}

// ApplyTapBatch atomically adds increment currency units server-side and
// returns the new authoritative total. batchID is the idempotency token.
func (c *Client) ApplyTapBatch(ctx context.Context, playerID, batchID string, increment int64) (int64, error) {
	var resp tapBatchResponse
	err := c.call(ctx, http.MethodPost, "/api/taps", batchID,
		tapBatchRequest{PlayerID: playerID, Increment: increment}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.NewBalance == nil {
		return 0, fmt.Errorf("tap batch response missing new_balance")
	}
	return *resp.NewBalance, nil
}

// ResolveMining asks the server to compute and pay out the mining reward.
// A session already paid out comes back as domain.ErrConflictRejected.
func (c *Client) ResolveMining(ctx context.Context, playerID, sessionID string) (int64, error) {
	var resp resolveMiningResponse
	err := c.call(ctx, http.MethodPost, "/api/mine", sessionID,
		resolveMiningRequest{PlayerID: playerID, SessionID: sessionID}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.RewardAmount == nil {
		return 0, fmt.Errorf("mining response missing reward_amount")
	}
	return *resp.RewardAmount, nil
}

// GetDailyRewards returns the authoritative claim history.
func (c *Client) GetDailyRewards(ctx context.Context, playerID string) ([]domain.RewardDay, error) {
	var resp dailyRewardsResponse
	err := c.call(ctx, http.MethodGet, "/api/rewards?player_id="+url.QueryEscape(playerID), "", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Rewards, nil
}

// ClaimDailyReward claims today's streak entry server-side.
func (c *Client) ClaimDailyReward(ctx context.Context, playerID string) (domain.ClaimResult, error) {
	var result domain.ClaimResult
	err := c.call(ctx, http.MethodPost, "/api/rewards/claim", "",
		map[string]string{"player_id": playerID}, &result)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	return result, nil
}

// SetPoints overwrites the balance directly (level-up carry-over path).
func (c *Client) SetPoints(ctx context.Context, playerID string, value int64) error {
	return c.call(ctx, http.MethodPut, "/api/player/"+url.PathEscape(playerID)+"/points", "",
		setPointsRequest{PlayerID: playerID, Value: value}, nil)
}

// Leaderboard returns the top players by balance.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var resp leaderboardResponse
	err := c.call(ctx, http.MethodGet, "/api/leaderboard?limit="+strconv.Itoa(limit), "", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ─── Transport ──────────────────────────────────────────────────────────────

// call performs one JSON round trip. Status mapping:
//
//	2xx        → decode into out
//	404        → domain.ErrPlayerUnknown
//	409        → domain.ErrConflictRejected (duplicate payout, double claim)
//	everything else, transport errors, timeouts → wrapped network error
func (c *Client) call(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrPlayerUnknown
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrConflictRejected
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var apiErr errorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("ledger %s %s: %d: %s", method, path, resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("ledger %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
