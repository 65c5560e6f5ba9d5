package domain

import "fmt"

// ─── Social & Referral Types ────────────────────────────────────────────────
// Referral links and the leaderboard are pure display glue: they consume
// the engine's points value and carry no gameplay invariants of their own.

// ReferralInfo tracks a player's referral status.
type ReferralInfo struct {
	Code       string `json:"code"`        // Unique referral code (the player ID for now)
	ReferredBy string `json:"referred_by"` // Code of referrer (empty if organic)
	Count      int    `json:"count"`       // Number of successful referrals
}

// ShareLink builds the Telegram deep link a player shares with friends.
func ShareLink(botName, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botName, code)
}

// LeaderboardEntry is one row of the global points leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Balance     int64  `json:"balance"`
}
