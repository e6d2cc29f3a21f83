package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tutorloop/platform/internal/domain"
)

type classRepo struct{}

// NewClassRepository returns a pgx-backed ClassRepository.
func NewClassRepository() ClassRepository {
	return &classRepo{}
}

func (r *classRepo) FindScheduled(ctx context.Context, db DBTX, classID string) (*domain.ScheduledClass, error) {
	row := db.QueryRow(ctx, `
		SELECT id, student_id, tutor_id, title, subject, scheduled_at, created_at
		FROM scheduled_classes WHERE id = $1`, classID)

	var class domain.ScheduledClass
	err := row.Scan(&class.ID, &class.StudentID, &class.TutorID, &class.Title, &class.Subject, &class.ScheduledAt, &class.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan scheduled class: %w", err)
	}
	return &class, nil
}

func (r *classRepo) DeleteScheduled(ctx context.Context, db DBTX, classID string) error {
	tag, err := db.Exec(ctx, `DELETE FROM scheduled_classes WHERE id = $1`, classID)
	if err != nil {
		return fmt.Errorf("delete scheduled class: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete scheduled class: %s not found", classID)
	}
	return nil
}

func (r *classRepo) FindLogByClassID(ctx context.Context, db DBTX, classID string) (*domain.ClassLog, error) {
	row := db.QueryRow(ctx, `
		SELECT id, class_id, student_id, tutor_id, title, subject, completed_at, ledger_entry_id
		FROM class_logs WHERE class_id = $1`, classID)

	var log domain.ClassLog
	err := row.Scan(&log.ID, &log.ClassID, &log.StudentID, &log.TutorID, &log.Title, &log.Subject, &log.CompletedAt, &log.LedgerEntryID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan class log: %w", err)
	}
	return &log, nil
}

func (r *classRepo) InsertLog(ctx context.Context, db DBTX, log *domain.ClassLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO class_logs (id, class_id, student_id, tutor_id, title, subject, completed_at, ledger_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.ClassID, log.StudentID, log.TutorID, log.Title, log.Subject, log.CompletedAt, log.LedgerEntryID)
	if err != nil {
		return fmt.Errorf("insert class log: %w", err)
	}
	return nil
}
