package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledClass is a tutoring session waiting to be completed. Completion
// turns it into an immutable ClassLog and removes the scheduled row.
type ScheduledClass struct {
	ID          string    `json:"id"`
	StudentID   uuid.UUID `json:"student_id"`
	TutorID     uuid.UUID `json:"tutor_id"`
	Title       string    `json:"title"`
	Subject     string    `json:"subject"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClassLog is the immutable record of a completed class. LedgerEntryID links
// the log back to the debit that paid for it.
type ClassLog struct {
	ID            uuid.UUID  `json:"id"`
	ClassID       string     `json:"class_id"`
	StudentID     uuid.UUID  `json:"student_id"`
	TutorID       uuid.UUID  `json:"tutor_id"`
	Title         string     `json:"title"`
	Subject       string     `json:"subject"`
	CompletedAt   time.Time  `json:"completed_at"`
	LedgerEntryID *uuid.UUID `json:"ledger_entry_id,omitempty"`
}
