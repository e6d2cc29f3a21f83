package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewEntryPostedEvent creates the standard ledger event for an appended entry.
func NewEntryPostedEvent(entry *LedgerEntry) OutboxDraft {
	payload, _ := json.Marshal(entry)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateLedger,
		AggregateID:   entry.StudentID.String(),
		EventType:     EventEntryPosted,
		PartitionKey:  entry.StudentID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewSubscriptionCreatedEvent creates a subscription lifecycle event.
func NewSubscriptionCreatedEvent(sub *Subscription) OutboxDraft {
	payload, _ := json.Marshal(sub)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSubscription,
		AggregateID:   sub.ID.String(),
		EventType:     EventSubscriptionCreated,
		PartitionKey:  sub.StudentID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRenewalRequestedEvent creates the fire-and-forget renewal request
// enqueued after a debit drops the balance to or below the threshold.
func NewRenewalRequestedEvent(studentID uuid.UUID, packID string, balanceAfter decimal.Decimal) OutboxDraft {
	payload, _ := json.Marshal(RenewalRequestedPayload{
		StudentID:    studentID,
		PackID:       packID,
		BalanceAfter: balanceAfter.String(),
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRenewal,
		AggregateID:   studentID.String(),
		EventType:     EventRenewalRequested,
		PartitionKey:  studentID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRenewalOutcomeEvent records the result of a processed renewal request.
func NewRenewalOutcomeEvent(studentID uuid.UUID, packID string, renewErr error) OutboxDraft {
	evtType := EventRenewalCompleted
	errMsg := ""
	if renewErr != nil {
		evtType = EventRenewalFailed
		errMsg = renewErr.Error()
	}
	payload, _ := json.Marshal(map[string]string{
		"student_id": studentID.String(),
		"pack_id":    packID,
		"error":      errMsg,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRenewal,
		AggregateID:   studentID.String(),
		EventType:     evtType,
		PartitionKey:  studentID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewStudentRegisteredEvent creates a student lifecycle event.
func NewStudentRegisteredEvent(studentID uuid.UUID, email string) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"student_id": studentID.String(),
		"email":      email,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateStudent,
		AggregateID:   studentID.String(),
		EventType:     EventStudentRegistered,
		PartitionKey:  studentID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
