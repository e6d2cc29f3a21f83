package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType enumerates the ledger entry types.
type EntryType string

const (
	EntryAllocation EntryType = "allocation"
	EntryDebit      EntryType = "debit"
	EntryCredit     EntryType = "credit"
)

// LedgerEntry represents a ledger_entries row (append-only, never mutated).
// Seq is the server-assigned monotonic ordering key; created_at is kept for
// auditing but never used to order balance derivation.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	Seq            int64           `json:"-"`
	StudentID      uuid.UUID       `json:"student_id"`
	SubscriptionID *uuid.UUID      `json:"subscription_id,omitempty"`
	Type           EntryType       `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Reason         string          `json:"reason"`
	RelatedClassID *string         `json:"related_class_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AppendEntryParams is the input to the atomic AppendEntry operation.
type AppendEntryParams struct {
	StudentID      uuid.UUID
	SubscriptionID *uuid.UUID
	Type           EntryType
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	Reason         string
	RelatedClassID *string
}

// CommandResult is the return value from all ledger commands.
type CommandResult struct {
	Entry        *LedgerEntry
	Subscription *Subscription
	Idempotent   bool // true if this was a replay that returned an existing entry
}
