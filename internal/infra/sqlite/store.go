package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ducktap-game/ducktap/internal/domain"
)

// DB implements domain.StateStore.
var _ domain.StateStore = (*DB)(nil)

// ─── Snapshot Operations ────────────────────────────────────────────────────

// SaveSnapshot upserts the wholesale engine snapshot for one player.
func (db *DB) SaveSnapshot(state domain.PlayerState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = db.db.Exec(`
		INSERT INTO player_state (player_id, snapshot, balance, pending_delta, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(player_id) DO UPDATE SET
			snapshot      = excluded.snapshot,
			balance       = excluded.balance,
			pending_delta = excluded.pending_delta,
			updated_at    = datetime('now')
	`, state.PlayerID, string(blob), state.Balance, state.PendingDelta)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves and validates a player's snapshot. A snapshot
// that fails to parse or violates invariants is reported as
// domain.ErrCorruptSnapshot — the caller discards it and re-bootstraps
// from the ledger, never crashes.
func (db *DB) LoadSnapshot(playerID string) (domain.PlayerState, error) {
	var blob string
	err := db.db.QueryRow(`
		SELECT snapshot FROM player_state WHERE player_id = ?
	`, playerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerState{}, domain.ErrPlayerUnknown
	}
	if err != nil {
		return domain.PlayerState{}, fmt.Errorf("load snapshot: %w", err)
	}

	var state domain.PlayerState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return domain.PlayerState{}, fmt.Errorf("%w: %v", domain.ErrCorruptSnapshot, err)
	}
	if err := validate(&state, playerID); err != nil {
		return domain.PlayerState{}, err
	}
	return state, nil
}

// DeleteSnapshot removes a player's snapshot (ledger reports the player
// gone, or a corrupt snapshot is being discarded).
func (db *DB) DeleteSnapshot(playerID string) error {
	_, err := db.db.Exec(`DELETE FROM player_state WHERE player_id = ?`, playerID)
	return err
}

// validate enforces snapshot invariants on load. Recoverable drift
// (energy out of range) is clamped; structural damage is corrupt.
func validate(state *domain.PlayerState, playerID string) error {
	if state.PlayerID == "" || state.PlayerID != playerID {
		return fmt.Errorf("%w: player id mismatch", domain.ErrCorruptSnapshot)
	}
	if state.Balance < 0 {
		return fmt.Errorf("%w: negative balance", domain.ErrCorruptSnapshot)
	}
	if state.Energy < 0 {
		state.Energy = 0
	}
	switch state.Mining.Phase {
	case "", domain.MiningIdle, domain.MiningInProgress, domain.MiningAwaitingPayout:
	default:
		return fmt.Errorf("%w: unknown mining phase %q", domain.ErrCorruptSnapshot, state.Mining.Phase)
	}
	if state.Mining.Active() && state.Mining.StartedAt.IsZero() {
		return fmt.Errorf("%w: active mining run without start time", domain.ErrCorruptSnapshot)
	}
	for i := 1; i < len(state.Streak); i++ {
		if state.Streak[i].Day <= state.Streak[i-1].Day {
			return fmt.Errorf("%w: streak days out of order", domain.ErrCorruptSnapshot)
		}
	}
	return nil
}

// ─── Credit Journal Operations ──────────────────────────────────────────────

// AppendJournal records one local currency mutation.
func (db *DB) AppendJournal(entry domain.LedgerEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.db.Exec(`
		INSERT INTO credit_journal (player_id, timestamp, tx_type, entry_type, amount, batch_id, note, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.PlayerID, ts.Format(time.RFC3339), string(entry.Type), string(entry.EntryType),
		entry.Amount, entry.BatchID, entry.Note, entry.Balance)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// RecentJournal returns the newest entries for a player, newest first.
func (db *DB) RecentJournal(playerID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, timestamp, tx_type, entry_type, amount, batch_id, note, balance
		FROM credit_journal WHERE player_id = ?
		ORDER BY id DESC LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts string
		var batchID, note sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntryType, &e.Amount, &batchID, &note, &e.Balance); err != nil {
			return nil, err
		}
		e.PlayerID = playerID
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.BatchID = batchID.String
		e.Note = note.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── Flush Journal Operations ───────────────────────────────────────────────

// RecordFlush inserts a pending flush batch.
func (db *DB) RecordFlush(playerID, batchID string, taps, seq int64) error {
	_, err := db.db.Exec(`
		INSERT OR IGNORE INTO flush_journal (batch_id, player_id, taps, seq)
		VALUES (?, ?, ?, ?)
	`, batchID, playerID, taps, seq)
	return err
}

// SettleFlush marks a batch COMMITTED or FAILED.
func (db *DB) SettleFlush(batchID, outcome string) error {
	_, err := db.db.Exec(`
		UPDATE flush_journal SET outcome = ?, settled_at = datetime('now')
		WHERE batch_id = ?
	`, outcome, batchID)
	return err
}

// FlushStats returns batch counts per outcome for a player.
func (db *DB) FlushStats(playerID string) (map[string]int64, error) {
	rows, err := db.db.Query(`
		SELECT outcome, COUNT(*) FROM flush_journal
		WHERE player_id = ? GROUP BY outcome
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}
