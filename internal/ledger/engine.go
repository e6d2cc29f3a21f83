package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/repository"
)

// Engine provides the foundational ledger operations:
//  1. CurrentBalance: derive the balance from the latest entry by seq
//  2. FindDebitForClass: idempotency check for class deductions
//  3. AppendEntry: append-only insert + credit cache sync + outbox event
//
// All command methods (ExecuteDeduct, ExecuteRestore, ExecuteAllocate,
// ExecuteTopUp) delegate to these primitives and run within a caller-supplied
// transaction.
type Engine struct {
	entries repository.LedgerRepository
	subs    repository.SubscriptionRepository
	outbox  repository.OutboxRepository
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	entries repository.LedgerRepository,
	subs repository.SubscriptionRepository,
	outbox repository.OutboxRepository,
) *Engine {
	return &Engine{
		entries: entries,
		subs:    subs,
		outbox:  outbox,
	}
}

// CurrentBalance returns the student's balance: the balance_after of their
// most recent ledger entry ordered by the server-assigned sequence. A student
// with no entries has a zero balance. The chain is kept per student; an
// entry's subscription id records which subscription was billed but never
// partitions the balance, so credits posted during a lapse survive into the
// next subscription.
func (e *Engine) CurrentBalance(ctx context.Context, db repository.DBTX, studentID uuid.UUID) (decimal.Decimal, error) {
	latest, err := e.entries.Latest(ctx, db, studentID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("current balance: %w", err)
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

// FindDebitForClass returns an existing debit for the (student, class) pair,
// or nil. Commands call this before inserting; the partial unique index on
// ledger_entries closes the remaining race.
func (e *Engine) FindDebitForClass(ctx context.Context, db repository.DBTX, studentID uuid.UUID, classID string) (*domain.LedgerEntry, error) {
	existing, err := e.entries.FindDebitForClass(ctx, db, studentID, classID)
	if err != nil {
		return nil, fmt.Errorf("find debit for class: %w", err)
	}
	return existing, nil
}

// AppendEntry is the core write primitive. All commands delegate to this.
//
// Steps:
//  1. Insert the ledger entry with its balance_after snapshot
//  2. Sync the subscription's denormalized credits_remaining cache
//  3. Insert the entry-posted outbox event
//
// All 3 steps run within the caller's transaction.
func (e *Engine) AppendEntry(ctx context.Context, db repository.DBTX, params domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	entry, err := e.entries.Insert(ctx, db, params)
	if err != nil {
		// Unique violations pass through unwrapped so commands can take the
		// idempotent replay path.
		if repository.IsUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if params.SubscriptionID != nil {
		if err := e.subs.SyncCredits(ctx, db, *params.SubscriptionID, entry.BalanceAfter); err != nil {
			return nil, fmt.Errorf("sync subscription credits: %w", err)
		}
	}

	event := domain.NewEntryPostedEvent(entry)
	if err := e.outbox.Insert(ctx, db, event); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return entry, nil
}
