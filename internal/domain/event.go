package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventStudentRegistered   EventType = "credits.student.registered"
	EventEntryPosted         EventType = "credits.ledger.entry.posted"
	EventSubscriptionCreated EventType = "credits.subscription.created"
	EventRenewalRequested    EventType = "credits.renewal.requested"
	EventRenewalCompleted    EventType = "credits.renewal.completed"
	EventRenewalFailed       EventType = "credits.renewal.failed"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateStudent      AggregateType = "student"
	AggregateLedger       AggregateType = "ledger"
	AggregateSubscription AggregateType = "subscription"
	AggregateRenewal      AggregateType = "renewal"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// RenewalRequestedPayload is the payload of EventRenewalRequested, parsed by
// the renewal worker.
type RenewalRequestedPayload struct {
	StudentID    uuid.UUID `json:"student_id"`
	PackID       string    `json:"pack_id"`
	BalanceAfter string    `json:"balance_after"`
}
