package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/infra"
)

type renewalRepo struct{}

// NewRenewalRepository returns a pgx-backed RenewalRepository.
func NewRenewalRepository() RenewalRepository {
	return &renewalRepo{}
}

func (r *renewalRepo) FindSettings(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.RenewalSettings, error) {
	row := db.QueryRow(ctx, `
		SELECT student_id, enabled, pack_id, threshold, last_renewal_at, last_renewal_error, updated_at
		FROM renewal_settings WHERE student_id = $1`, studentID)

	var settings domain.RenewalSettings
	var thresholdNum pgtype.Numeric
	err := row.Scan(&settings.StudentID, &settings.Enabled, &settings.PackID, &thresholdNum,
		&settings.LastRenewalAt, &settings.LastRenewalError, &settings.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan renewal settings: %w", err)
	}

	settings.Threshold, err = infra.NumericToDecimal(thresholdNum)
	if err != nil {
		return nil, fmt.Errorf("convert threshold: %w", err)
	}
	return &settings, nil
}

func (r *renewalRepo) UpsertSettings(ctx context.Context, db DBTX, settings *domain.RenewalSettings) error {
	_, err := db.Exec(ctx, `
		INSERT INTO renewal_settings (student_id, enabled, pack_id, threshold)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    pack_id = EXCLUDED.pack_id,
		    threshold = EXCLUDED.threshold,
		    updated_at = now()`,
		settings.StudentID, settings.Enabled, settings.PackID, infra.DecimalToNumeric(settings.Threshold))
	if err != nil {
		return fmt.Errorf("upsert renewal settings: %w", err)
	}
	return nil
}

func (r *renewalRepo) RecordRenewalSuccess(ctx context.Context, db DBTX, studentID uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE renewal_settings
		SET last_renewal_at = $2, last_renewal_error = NULL, updated_at = now()
		WHERE student_id = $1`, studentID, at)
	if err != nil {
		return fmt.Errorf("record renewal success: %w", err)
	}
	return nil
}

func (r *renewalRepo) RecordRenewalError(ctx context.Context, db DBTX, studentID uuid.UUID, message string) error {
	_, err := db.Exec(ctx, `
		UPDATE renewal_settings
		SET last_renewal_error = $2, updated_at = now()
		WHERE student_id = $1`, studentID, message)
	if err != nil {
		return fmt.Errorf("record renewal error: %w", err)
	}
	return nil
}

func (r *renewalRepo) FindPack(ctx context.Context, db DBTX, packID string) (*domain.RenewalPack, error) {
	row := db.QueryRow(ctx, `
		SELECT id, name, credits, price_cents
		FROM renewal_packs WHERE id = $1`, packID)

	var pack domain.RenewalPack
	var creditsNum pgtype.Numeric
	err := row.Scan(&pack.ID, &pack.Name, &creditsNum, &pack.PriceCents)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan renewal pack: %w", err)
	}

	pack.Credits, err = infra.NumericToDecimal(creditsNum)
	if err != nil {
		return nil, fmt.Errorf("convert pack credits: %w", err)
	}
	return &pack, nil
}
