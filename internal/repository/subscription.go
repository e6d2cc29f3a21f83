package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/infra"
)

const subscriptionColumns = `id, student_id, plan_id, status, credits_remaining,
	current_period_start, current_period_end, provider_subscription_id, provider_customer_id,
	created_at, updated_at`

type subscriptionRepo struct{}

// NewSubscriptionRepository returns a pgx-backed SubscriptionRepository.
func NewSubscriptionRepository() SubscriptionRepository {
	return &subscriptionRepo{}
}

func (r *subscriptionRepo) FindBillableForStudent(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.Subscription, error) {
	row := db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE student_id = $1 AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1`, studentID)
	return scanSubscription(row)
}

func (r *subscriptionRepo) LockBillableForStudent(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.Subscription, error) {
	row := db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE student_id = $1 AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, studentID)
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, db DBTX, providerSubID string) (*domain.Subscription, error) {
	row := db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider_subscription_id = $1`, providerSubID)
	return scanSubscription(row)
}

func (r *subscriptionRepo) Create(ctx context.Context, db DBTX, sub *domain.Subscription) error {
	_, err := db.Exec(ctx, `
		INSERT INTO subscriptions
		  (id, student_id, plan_id, status, credits_remaining,
		   current_period_start, current_period_end, provider_subscription_id, provider_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID,
		sub.StudentID,
		sub.PlanID,
		string(sub.Status),
		infra.DecimalToNumeric(sub.CreditsRemaining),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.ProviderSubscriptionID,
		sub.ProviderCustomerID,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) SyncCredits(ctx context.Context, db DBTX, subscriptionID uuid.UUID, credits decimal.Decimal) error {
	tag, err := db.Exec(ctx, `
		UPDATE subscriptions
		SET credits_remaining = $2, updated_at = now()
		WHERE id = $1`,
		subscriptionID, infra.DecimalToNumeric(credits))
	if err != nil {
		return fmt.Errorf("sync credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync credits: subscription %s not found", subscriptionID)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var creditsNum pgtype.Numeric
	err := row.Scan(
		&sub.ID, &sub.StudentID, &sub.PlanID, &sub.Status, &creditsNum,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.ProviderSubscriptionID, &sub.ProviderCustomerID,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.CreditsRemaining, err = infra.NumericToDecimal(creditsNum)
	if err != nil {
		return nil, fmt.Errorf("convert credits_remaining: %w", err)
	}
	return &sub, nil
}
