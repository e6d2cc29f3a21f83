package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool is a DBTX that can also begin transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// LedgerRepository provides access to ledger_entries.
type LedgerRepository interface {
	// Latest returns the student's most recent entry by server-assigned
	// sequence, across all their subscriptions. Nil if none exist.
	Latest(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.LedgerEntry, error)

	// FindDebitForClass checks the idempotency index for an existing debit.
	FindDebitForClass(ctx context.Context, db DBTX, studentID uuid.UUID, classID string) (*domain.LedgerEntry, error)

	// FindRecentDebitForClass returns a debit for the class created at or
	// after since. Used by the restoration service's advisory check.
	FindRecentDebitForClass(ctx context.Context, db DBTX, studentID uuid.UUID, classID string, since time.Time) (*domain.LedgerEntry, error)

	// Insert appends a ledger entry. A unique violation on the debit index
	// surfaces as an error satisfying IsUniqueViolation.
	Insert(ctx context.Context, db DBTX, params domain.AppendEntryParams) (*domain.LedgerEntry, error)

	// ListByStudent returns entries for a student, newest first, with
	// cursor-based pagination.
	ListByStudent(ctx context.Context, db DBTX, studentID uuid.UUID, cursor *string, limit int) ([]domain.LedgerEntry, error)
}

// SubscriptionRepository provides access to subscriptions.
type SubscriptionRepository interface {
	// FindBillableForStudent returns the newest active-or-trialing
	// subscription for the student, or nil.
	FindBillableForStudent(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.Subscription, error)

	// LockBillableForStudent is FindBillableForStudent with a row-level lock
	// (SELECT FOR UPDATE). Must run within a transaction.
	LockBillableForStudent(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.Subscription, error)

	// FindByProviderSubscriptionID returns the local row for a payment
	// provider's subscription id, or nil.
	FindByProviderSubscriptionID(ctx context.Context, db DBTX, providerSubID string) (*domain.Subscription, error)

	// Create inserts a new subscription.
	Create(ctx context.Context, db DBTX, sub *domain.Subscription) error

	// SyncCredits updates the denormalized credits_remaining cache. Called in
	// the same transaction as the ledger append that changed the balance.
	SyncCredits(ctx context.Context, db DBTX, subscriptionID uuid.UUID, credits decimal.Decimal) error
}

// PlanRepository provides access to plans.
type PlanRepository interface {
	FindByID(ctx context.Context, db DBTX, id string) (*domain.Plan, error)
	FindByProviderProductID(ctx context.Context, db DBTX, productID string) (*domain.Plan, error)
}

// ClassRepository provides access to scheduled_classes and class_logs.
type ClassRepository interface {
	FindScheduled(ctx context.Context, db DBTX, classID string) (*domain.ScheduledClass, error)
	DeleteScheduled(ctx context.Context, db DBTX, classID string) error
	FindLogByClassID(ctx context.Context, db DBTX, classID string) (*domain.ClassLog, error)
	InsertLog(ctx context.Context, db DBTX, log *domain.ClassLog) error
}

// RenewalRepository provides access to renewal_settings and renewal_packs.
type RenewalRepository interface {
	FindSettings(ctx context.Context, db DBTX, studentID uuid.UUID) (*domain.RenewalSettings, error)
	UpsertSettings(ctx context.Context, db DBTX, settings *domain.RenewalSettings) error
	RecordRenewalSuccess(ctx context.Context, db DBTX, studentID uuid.UUID, at time.Time) error
	RecordRenewalError(ctx context.Context, db DBTX, studentID uuid.UUID, message string) error
	FindPack(ctx context.Context, db DBTX, packID string) (*domain.RenewalPack, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the
	// ledger entry when atomicity matters).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// AuthUserRepository provides access to auth_users.
type AuthUserRepository interface {
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AuthUser, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.AuthUser, error)
	Create(ctx context.Context, db DBTX, user *domain.AuthUser) error
}
