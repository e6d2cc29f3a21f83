package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/repository"
)

// restoreAdvisoryWindow is how far back the restoration path looks for the
// debit it is meant to compensate. Older or missing debits only produce a
// warning; the credit still posts.
const restoreAdvisoryWindow = 5 * time.Minute

// CreditService fronts the ledger engine for deduction, restoration, balance
// and history reads, and enqueues auto-renewal checks after deductions.
type CreditService struct {
	pool     repository.Pool
	engine   *ledger.Engine
	entries  repository.LedgerRepository
	subs     repository.SubscriptionRepository
	renewals repository.RenewalRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
}

// NewCreditService creates a CreditService.
func NewCreditService(
	pool repository.Pool,
	engine *ledger.Engine,
	entries repository.LedgerRepository,
	subs repository.SubscriptionRepository,
	renewals repository.RenewalRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *CreditService {
	return &CreditService{
		pool:     pool,
		engine:   engine,
		entries:  entries,
		subs:     subs,
		renewals: renewals,
		outbox:   outbox,
		logger:   logger,
	}
}

// DeductResult is returned from DeductClassCredit.
type DeductResult struct {
	Entry      *domain.LedgerEntry `json:"entry"`
	Balance    decimal.Decimal     `json:"balance"`
	Message    string              `json:"message"`
	Idempotent bool                `json:"idempotent"`
}

// DeductClassCredit removes one credit for a completed class. Only tutors and
// admins may call it. After a successful commit the auto-renewal check runs in
// the background so the caller never waits on it.
func (s *CreditService) DeductClassCredit(ctx context.Context, caller domain.Caller, params domain.DeductParams) (*DeductResult, error) {
	if !caller.CanManageCredits() {
		return nil, domain.ErrForbidden("only tutors and admins may deduct credits")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteDeduct(ctx, tx, params)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateDebit) {
			// The aborted transaction rolls back via the defer; the winning
			// entry is read through the pool.
			return s.replayDeduct(ctx, params)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	if !result.Idempotent {
		s.logger.Info("credit deducted",
			"student_id", params.StudentID,
			"class_id", params.ClassID,
			"balance", result.Entry.BalanceAfter.String(),
			"caller", caller.ID)
		go s.checkAutoRenewal(params.StudentID, result.Entry.BalanceAfter)
	}

	return &DeductResult{
		Entry:      result.Entry,
		Balance:    result.Entry.BalanceAfter,
		Message:    domain.DeductionMessage(result.Entry.BalanceAfter),
		Idempotent: result.Idempotent,
	}, nil
}

func (s *CreditService) replayDeduct(ctx context.Context, params domain.DeductParams) (*DeductResult, error) {
	entry, err := s.engine.FindDebitForClass(ctx, s.pool, params.StudentID, params.ClassID)
	if err != nil {
		return nil, domain.ErrInternal("read existing debit", err)
	}
	if entry == nil {
		return nil, domain.ErrInternal("existing debit vanished", errors.New("unique violation without matching debit"))
	}
	return &DeductResult{
		Entry:      entry,
		Balance:    entry.BalanceAfter,
		Message:    domain.DeductionMessage(entry.BalanceAfter),
		Idempotent: true,
	}, nil
}

// RestoreResult is returned from RestoreCredit.
type RestoreResult struct {
	Entry   *domain.LedgerEntry `json:"entry"`
	Balance decimal.Decimal     `json:"balance"`
}

// RestoreCredit appends a compensating credit. Only tutors and admins may
// call it. When a class id is supplied, a missing recent debit for that class
// is logged but does not block the restoration.
func (s *CreditService) RestoreCredit(ctx context.Context, caller domain.Caller, params domain.RestoreParams) (*RestoreResult, error) {
	if !caller.CanManageCredits() {
		return nil, domain.ErrForbidden("only tutors and admins may restore credits")
	}

	if params.ClassID != nil {
		since := time.Now().Add(-restoreAdvisoryWindow)
		recent, err := s.entries.FindRecentDebitForClass(ctx, s.pool, params.StudentID, *params.ClassID, since)
		if err != nil {
			return nil, domain.ErrInternal("advisory debit lookup", err)
		}
		if recent == nil {
			s.logger.Warn("restoring credit without a recent matching debit",
				"student_id", params.StudentID,
				"class_id", *params.ClassID,
				"caller", caller.ID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteRestore(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	s.logger.Info("credit restored",
		"student_id", params.StudentID,
		"amount", result.Entry.Amount.String(),
		"balance", result.Entry.BalanceAfter.String(),
		"reason", params.Reason,
		"caller", caller.ID)

	return &RestoreResult{Entry: result.Entry, Balance: result.Entry.BalanceAfter}, nil
}

// BalanceResult is returned from GetBalance.
type BalanceResult struct {
	Balance        decimal.Decimal      `json:"balance"`
	Subscription   *domain.Subscription `json:"subscription,omitempty"`
	Toast          domain.Toast         `json:"toast"`
	OverdrawnBadge string               `json:"overdrawn_badge,omitempty"`
}

// GetBalance derives the student's balance from the ledger, scoped to the
// billable subscription when one exists.
func (s *CreditService) GetBalance(ctx context.Context, studentID uuid.UUID) (*BalanceResult, error) {
	sub, err := s.subs.FindBillableForStudent(ctx, s.pool, studentID)
	if err != nil {
		return nil, domain.ErrInternal("find subscription", err)
	}

	balance, err := s.engine.CurrentBalance(ctx, s.pool, studentID)
	if err != nil {
		return nil, domain.ErrInternal("current balance", err)
	}

	return &BalanceResult{
		Balance:        balance,
		Subscription:   sub,
		Toast:          domain.BalanceToast(balance),
		OverdrawnBadge: domain.OverdrawnBadge(balance, domain.DefaultPricePerClassCents),
	}, nil
}

// ListLedger returns the student's entry history, newest first.
func (s *CreditService) ListLedger(ctx context.Context, studentID uuid.UUID, cursor *string, limit int) ([]domain.LedgerEntry, error) {
	entries, err := s.entries.ListByStudent(ctx, s.pool, studentID, cursor, limit)
	if err != nil {
		return nil, domain.ErrInternal("list ledger", err)
	}
	return entries, nil
}

// checkAutoRenewal runs after a deduction commit, detached from the request.
// Failures are logged and dropped; the deduction already succeeded and the
// renewal worker picks the request up from the outbox.
func (s *CreditService) checkAutoRenewal(studentID uuid.UUID, balance decimal.Decimal) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	settings, err := s.renewals.FindSettings(ctx, s.pool, studentID)
	if err != nil {
		s.logger.Error("auto-renewal settings lookup failed", "error", err, "student_id", studentID)
		return
	}
	if settings == nil || !settings.Enabled || settings.PackID == "" {
		return
	}
	if balance.GreaterThan(settings.Threshold) {
		return
	}

	event := domain.NewRenewalRequestedEvent(studentID, settings.PackID, balance)
	if err := s.outbox.Insert(ctx, s.pool, event); err != nil {
		s.logger.Error("auto-renewal enqueue failed", "error", err, "student_id", studentID)
		return
	}

	s.logger.Info("auto-renewal requested",
		"student_id", studentID,
		"pack_id", settings.PackID,
		"balance", balance.String())
}
