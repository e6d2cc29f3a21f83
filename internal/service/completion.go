package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/repository"
)

// CompletionService orchestrates class completion: debit one credit, write
// the immutable class log, and remove the scheduled row. The debit and the
// log are separate transactions; a failed log write is compensated with a
// restoration so the student is never charged for a class that was not
// recorded.
type CompletionService struct {
	pool    repository.Pool
	classes repository.ClassRepository
	credits *CreditService
	logger  *slog.Logger
}

// NewCompletionService creates a CompletionService.
func NewCompletionService(
	pool repository.Pool,
	classes repository.ClassRepository,
	credits *CreditService,
	logger *slog.Logger,
) *CompletionService {
	return &CompletionService{
		pool:    pool,
		classes: classes,
		credits: credits,
		logger:  logger,
	}
}

// CompletionResult is returned from CompleteClass.
type CompletionResult struct {
	Log        *domain.ClassLog `json:"log"`
	Balance    decimal.Decimal  `json:"balance"`
	Message    string           `json:"message"`
	Toast      domain.Toast     `json:"toast"`
	Idempotent bool             `json:"idempotent"`
}

// CompleteClass marks a scheduled class as held.
//
// Steps:
//  1. Resolve the scheduled class; a class already logged replays the
//     original outcome.
//  2. Debit one credit (its own transaction, idempotent per class).
//  3. Write the class log and delete the scheduled row.
//  4. If step 3 fails after a fresh debit, restore the credit.
func (s *CompletionService) CompleteClass(ctx context.Context, caller domain.Caller, classID string) (*CompletionResult, error) {
	if !caller.CanManageCredits() {
		return nil, domain.ErrForbidden("only tutors and admins may complete classes")
	}

	existingLog, err := s.classes.FindLogByClassID(ctx, s.pool, classID)
	if err != nil {
		return nil, domain.ErrInternal("find class log", err)
	}
	if existingLog != nil {
		return s.replayCompletion(ctx, existingLog)
	}

	class, err := s.classes.FindScheduled(ctx, s.pool, classID)
	if err != nil {
		return nil, domain.ErrInternal("find scheduled class", err)
	}
	if class == nil {
		return nil, domain.ErrNotFound("class", classID)
	}

	deduct, err := s.credits.DeductClassCredit(ctx, caller, domain.DeductParams{
		StudentID:  class.StudentID,
		ClassID:    class.ID,
		ClassTitle: class.Title,
	})
	if err != nil {
		return nil, err
	}

	log := &domain.ClassLog{
		ID:            uuid.New(),
		ClassID:       class.ID,
		StudentID:     class.StudentID,
		TutorID:       class.TutorID,
		Title:         class.Title,
		Subject:       class.Subject,
		CompletedAt:   time.Now(),
		LedgerEntryID: &deduct.Entry.ID,
	}

	if err := s.writeLogAndUnschedule(ctx, log); err != nil {
		// Compensate: the class was not recorded, so the debit must not stand.
		if !deduct.Idempotent {
			s.compensateDebit(ctx, caller, class, err)
		}
		return nil, domain.ErrInternal("write class log", err)
	}

	return &CompletionResult{
		Log:        log,
		Balance:    deduct.Balance,
		Message:    deduct.Message,
		Toast:      domain.BalanceToast(deduct.Balance),
		Idempotent: deduct.Idempotent,
	}, nil
}

func (s *CompletionService) writeLogAndUnschedule(ctx context.Context, log *domain.ClassLog) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.classes.InsertLog(ctx, tx, log); err != nil {
		return err
	}
	if err := s.classes.DeleteScheduled(ctx, tx, log.ClassID); err != nil {
		// The log is the durable record; a stale scheduled row is cleaned up
		// later rather than failing the completion.
		s.logger.Warn("scheduled class delete failed, leaving stale row",
			"class_id", log.ClassID, "error", err)
	}

	return tx.Commit(ctx)
}

func (s *CompletionService) compensateDebit(ctx context.Context, caller domain.Caller, class *domain.ScheduledClass, cause error) {
	classID := class.ID
	_, restoreErr := s.credits.RestoreCredit(ctx, caller, domain.RestoreParams{
		StudentID: class.StudentID,
		ClassID:   &classID,
		Reason:    "class log write failed, credit returned",
	})
	if restoreErr != nil {
		// Both legs failed. The ledger shows the debit without a class log;
		// this log line is the operator's cue to reconcile by hand.
		s.logger.Error("compensating restore failed after log write failure",
			"student_id", class.StudentID,
			"class_id", class.ID,
			"log_error", cause,
			"restore_error", restoreErr)
		return
	}
	s.logger.Warn("debit compensated after class log failure",
		"student_id", class.StudentID, "class_id", class.ID, "error", cause)
}

func (s *CompletionService) replayCompletion(ctx context.Context, log *domain.ClassLog) (*CompletionResult, error) {
	balance, err := s.credits.GetBalance(ctx, log.StudentID)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{
		Log:        log,
		Balance:    balance.Balance,
		Message:    domain.DeductionMessage(balance.Balance),
		Toast:      balance.Toast,
		Idempotent: true,
	}, nil
}
