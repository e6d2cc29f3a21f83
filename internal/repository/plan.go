package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/infra"
)

type planRepo struct{}

// NewPlanRepository returns a pgx-backed PlanRepository.
func NewPlanRepository() PlanRepository {
	return &planRepo{}
}

func (r *planRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.Plan, error) {
	row := db.QueryRow(ctx, `
		SELECT id, name, credits_per_period, price_cents, provider_product_id
		FROM plans WHERE id = $1`, id)
	return scanPlan(row)
}

func (r *planRepo) FindByProviderProductID(ctx context.Context, db DBTX, productID string) (*domain.Plan, error) {
	row := db.QueryRow(ctx, `
		SELECT id, name, credits_per_period, price_cents, provider_product_id
		FROM plans WHERE provider_product_id = $1`, productID)
	return scanPlan(row)
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var plan domain.Plan
	var creditsNum pgtype.Numeric
	err := row.Scan(&plan.ID, &plan.Name, &creditsNum, &plan.PriceCents, &plan.ProviderProductID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	plan.CreditsPerPeriod, err = infra.NumericToDecimal(creditsNum)
	if err != nil {
		return nil, fmt.Errorf("convert credits_per_period: %w", err)
	}
	return &plan, nil
}
