package domain

import "time"

// ─── Credit Journal Types ───────────────────────────────────────────────────
// Every optimistic currency mutation is journaled locally with a running
// balance, so reconciliation drift against the remote ledger can always be
// audited after the fact.

// EntryType represents the accounting side of a journal entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a currency change.
type TransactionType string

const (
	TxTap   TransactionType = "TAP"   // optimistic tap credit
	TxMine  TransactionType = "MINE"  // mining payout
	TxDaily TransactionType = "DAILY" // daily streak reward
	TxLevel TransactionType = "LEVEL" // level-up carry-over
	TxSync  TransactionType = "SYNC"  // correction applied from an authoritative flush
)

// LedgerEntry is a single row in the local credit journal.
type LedgerEntry struct {
	ID        int64           `json:"id"`
	PlayerID  string          `json:"player_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      TransactionType `json:"type"`
	EntryType EntryType       `json:"entry_type"`
	Amount    int64           `json:"amount"`
	BatchID   string          `json:"batch_id,omitempty"`
	Note      string          `json:"note,omitempty"`
	Balance   int64           `json:"balance"` // running local balance after this entry
}
