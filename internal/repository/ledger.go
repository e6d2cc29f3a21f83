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

const ledgerColumns = `id, seq, student_id, subscription_id, type, amount, balance_after, reason, related_class_id, created_at`

type ledgerRepo struct{}

// NewLedgerRepository returns a pgx-backed LedgerRepository.
func NewLedgerRepository() LedgerRepository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) Latest(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE student_id = $1
		ORDER BY seq DESC
		LIMIT 1`, studentID)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) FindDebitForClass(ctx context.Context, db DBTX, studentID uuid.UUID, classID string) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE student_id = $1 AND related_class_id = $2 AND type = 'debit'
		ORDER BY seq DESC
		LIMIT 1`, studentID, classID)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) FindRecentDebitForClass(ctx context.Context, db DBTX, studentID uuid.UUID, classID string, since time.Time) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE student_id = $1 AND related_class_id = $2 AND type = 'debit' AND created_at >= $3
		ORDER BY seq DESC
		LIMIT 1`, studentID, classID, since)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) Insert(ctx context.Context, db DBTX, params domain.AppendEntryParams) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO ledger_entries
		  (student_id, subscription_id, type, amount, balance_after, reason, related_class_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+ledgerColumns,
		params.StudentID,
		params.SubscriptionID,
		string(params.Type),
		infra.DecimalToNumeric(params.Amount),
		infra.DecimalToNumeric(params.BalanceAfter),
		params.Reason,
		params.RelatedClassID,
	)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) ListByStudent(ctx context.Context, db DBTX, studentID uuid.UUID, cursor *string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = db.Query(ctx, `
			SELECT `+ledgerColumns+`
			FROM ledger_entries
			WHERE student_id = $1
			  AND seq <= (SELECT seq FROM ledger_entries WHERE id = $2)
			ORDER BY seq DESC
			LIMIT $3`, studentID, *cursor, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT `+ledgerColumns+`
			FROM ledger_entries
			WHERE student_id = $1
			ORDER BY seq DESC
			LIMIT $2`, studentID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	entry, err := scanLedgerRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func scanLedgerRow(row pgx.Row) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var amountNum, balNum pgtype.Numeric
	err := row.Scan(
		&entry.ID, &entry.Seq, &entry.StudentID, &entry.SubscriptionID, &entry.Type,
		&amountNum, &balNum, &entry.Reason, &entry.RelatedClassID, &entry.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}

	entry.Amount, err = infra.NumericToDecimal(amountNum)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	entry.BalanceAfter, err = infra.NumericToDecimal(balNum)
	if err != nil {
		return nil, fmt.Errorf("convert balance_after: %w", err)
	}
	return &entry, nil
}
