package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tutorloop/platform/internal/domain"
)

// ExecuteTopUp adds credits to the student's billable subscription. Used by
// the renewal worker after a successful pack charge.
func (e *Engine) ExecuteTopUp(ctx context.Context, tx pgx.Tx, params domain.TopUpParams) (*domain.CommandResult, error) {
	if params.Credits.Sign() <= 0 {
		return nil, domain.ErrValidation("top-up credits must be positive")
	}
	if params.Reason == "" {
		return nil, domain.ErrValidation("top-up reason is required")
	}

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

	entry, err := e.AppendEntry(ctx, tx, domain.AppendEntryParams{
		StudentID:      params.StudentID,
		SubscriptionID: &sub.ID,
		Type:           domain.EntryCredit,
		Amount:         params.Credits,
		BalanceAfter:   balance.Add(params.Credits),
		Reason:         params.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("top-up post: %w", err)
	}

	sub.CreditsRemaining = entry.BalanceAfter
	return &domain.CommandResult{Entry: entry, Subscription: sub}, nil
}
