package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/repository"
)

var oneCredit = decimal.NewFromInt(1)

// ErrDuplicateDebit signals that a concurrent request already debited the
// same (student, class) pair. The transaction is aborted at that point, so
// the caller must roll back and re-read the winning entry outside it.
var ErrDuplicateDebit = errors.New("duplicate debit for class")

// ExecuteDeduct removes exactly one credit for a completed class.
//
// Exactly-once per (student, class): a pre-insert lookup catches replays
// cheaply, and the partial unique index on (student_id, related_class_id)
// for debits catches the two-requests-in-flight race. Either way the caller
// gets the original entry back with Idempotent set.
//
// A balance at or below zero rejects the debit with NO_CREDITS; balances
// already negative from earlier manual adjustments are tolerated but never
// driven further down by this command.
func (e *Engine) ExecuteDeduct(ctx context.Context, tx pgx.Tx, params domain.DeductParams) (*domain.CommandResult, error) {
	if err := domain.ValidateDeduct(params); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	// Idempotency pre-check
	existing, err := e.FindDebitForClass(ctx, tx, params.StudentID, params.ClassID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &domain.CommandResult{Entry: existing, Idempotent: true}, nil
	}

	// Lock the subscription row so concurrent debits for different classes
	// serialize on the same balance.
	sub, err := e.subs.LockBillableForStudent(ctx, tx, params.StudentID)
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrNoSubscription()
	}

	balance, err := e.CurrentBalance(ctx, tx, params.StudentID)
	if err != nil {
		return nil, err
	}
	if balance.Sign() <= 0 {
		return nil, domain.ErrNoCredits()
	}

	classID := params.ClassID
	entry, err := e.AppendEntry(ctx, tx, domain.AppendEntryParams{
		StudentID:      params.StudentID,
		SubscriptionID: &sub.ID,
		Type:           domain.EntryDebit,
		Amount:         oneCredit.Neg(),
		BalanceAfter:   balance.Sub(oneCredit),
		Reason:         fmt.Sprintf("class completed: %s", params.ClassTitle),
		RelatedClassID: &classID,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost the race to a concurrent request for the same class. The
			// winner's entry is canonical; it must be read after rollback.
			return nil, ErrDuplicateDebit
		}
		return nil, fmt.Errorf("deduct post: %w", err)
	}

	sub.CreditsRemaining = entry.BalanceAfter
	return &domain.CommandResult{Entry: entry, Subscription: sub}, nil
}
