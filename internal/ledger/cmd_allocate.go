package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tutorloop/platform/internal/domain"
)

// ExecuteAllocate creates a subscription for the student and seeds it with
// the plan's credit allocation as the first ledger entry. Idempotent on the
// payment provider's subscription id, so webhook retries and a racing manual
// allocation resolve to the same subscription.
func (e *Engine) ExecuteAllocate(ctx context.Context, tx pgx.Tx, params domain.AllocateParams) (*domain.CommandResult, error) {
	if params.Plan == nil {
		return nil, domain.ErrValidation("plan is required")
	}
	if params.StudentID == uuid.Nil {
		return nil, domain.ErrValidation("student id is required")
	}

	if params.ProviderSubscriptionID != "" {
		existing, err := e.subs.FindByProviderSubscriptionID(ctx, tx, params.ProviderSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("find existing subscription: %w", err)
		}
		if existing != nil {
			return &domain.CommandResult{Subscription: existing, Idempotent: true}, nil
		}
	}

	status := domain.SubscriptionActive
	if params.Trialing {
		status = domain.SubscriptionTrialing
	}

	// Residual balance from earlier subscriptions carries forward; the
	// allocation extends the student's chain rather than restarting it.
	balance, err := e.CurrentBalance(ctx, tx, params.StudentID)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:                 uuid.New(),
		StudentID:          params.StudentID,
		PlanID:             params.Plan.ID,
		Status:             status,
		CreditsRemaining:   balance.Add(params.Plan.CreditsPerPeriod),
		CurrentPeriodStart: params.PeriodStart,
		CurrentPeriodEnd:   params.PeriodEnd,
	}
	if params.ProviderSubscriptionID != "" {
		id := params.ProviderSubscriptionID
		sub.ProviderSubscriptionID = &id
	}
	if params.ProviderCustomerID != "" {
		id := params.ProviderCustomerID
		sub.ProviderCustomerID = &id
	}

	if err := e.subs.Create(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	reason := params.Reason
	if reason == "" {
		reason = fmt.Sprintf("plan allocation: %s", params.Plan.Name)
	}

	entry, err := e.AppendEntry(ctx, tx, domain.AppendEntryParams{
		StudentID:      params.StudentID,
		SubscriptionID: &sub.ID,
		Type:           domain.EntryAllocation,
		Amount:         params.Plan.CreditsPerPeriod,
		BalanceAfter:   balance.Add(params.Plan.CreditsPerPeriod),
		Reason:         reason,
	})
	if err != nil {
		return nil, fmt.Errorf("allocation post: %w", err)
	}
	sub.CreditsRemaining = entry.BalanceAfter

	if err := e.outbox.Insert(ctx, tx, domain.NewSubscriptionCreatedEvent(sub)); err != nil {
		return nil, fmt.Errorf("insert subscription event: %w", err)
	}

	return &domain.CommandResult{Entry: entry, Subscription: sub}, nil
}
