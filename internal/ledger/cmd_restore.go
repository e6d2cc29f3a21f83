package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tutorloop/platform/internal/domain"
)

// ExecuteRestore appends a compensating credit entry. Unlike deduction,
// restoration never requires a billable subscription: a student whose
// subscription lapsed after the debit still gets their credit back, as an
// entry scoped to the student alone.
func (e *Engine) ExecuteRestore(ctx context.Context, tx pgx.Tx, params domain.RestoreParams) (*domain.CommandResult, error) {
	amount, err := domain.NormalizeRestoreAmount(params.Amount)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if params.Reason == "" {
		params.Reason = "manual credit restoration"
	}

	sub, err := e.subs.LockBillableForStudent(ctx, tx, params.StudentID)
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}

	balance, err := e.CurrentBalance(ctx, tx, params.StudentID)
	if err != nil {
		return nil, err
	}

	entryParams := domain.AppendEntryParams{
		StudentID:      params.StudentID,
		Type:           domain.EntryCredit,
		Amount:         amount,
		BalanceAfter:   balance.Add(amount),
		Reason:         params.Reason,
		RelatedClassID: params.ClassID,
	}
	if sub != nil {
		entryParams.SubscriptionID = &sub.ID
	}

	entry, err := e.AppendEntry(ctx, tx, entryParams)
	if err != nil {
		return nil, fmt.Errorf("restore post: %w", err)
	}

	if sub != nil {
		sub.CreditsRemaining = entry.BalanceAfter
	}
	return &domain.CommandResult{Entry: entry, Subscription: sub}, nil
}
