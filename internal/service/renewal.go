package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/guard"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/provider"
	"github.com/tutorloop/platform/internal/repository"
)

const stripeCircuitKey = "stripe"

// RenewalService manages auto-renewal settings and processes renewal requests
// consumed from the queue. Charges go through a circuit breaker so a payment
// provider outage parks the queue instead of failing every student in turn.
type RenewalService struct {
	pool     repository.Pool
	engine   *ledger.Engine
	renewals repository.RenewalRepository
	subs     repository.SubscriptionRepository
	outbox   repository.OutboxRepository
	stripe   *provider.StripeProvider
	notifier *provider.Notifier
	breaker  *guard.CircuitBreaker
	logger   *slog.Logger
}

// NewRenewalService creates a RenewalService.
func NewRenewalService(
	pool repository.Pool,
	engine *ledger.Engine,
	renewals repository.RenewalRepository,
	subs repository.SubscriptionRepository,
	outbox repository.OutboxRepository,
	stripe *provider.StripeProvider,
	notifier *provider.Notifier,
	breaker *guard.CircuitBreaker,
	logger *slog.Logger,
) *RenewalService {
	return &RenewalService{
		pool:     pool,
		engine:   engine,
		renewals: renewals,
		subs:     subs,
		outbox:   outbox,
		stripe:   stripe,
		notifier: notifier,
		breaker:  breaker,
		logger:   logger,
	}
}

// ProcessRenewalRequest handles one renewal request from the queue: re-check
// the settings, charge the saved payment method, and top the balance up. A
// request that fails records the error on the settings row for the dashboard
// and emits a failure event; it is not retried automatically.
func (r *RenewalService) ProcessRenewalRequest(ctx context.Context, payload domain.RenewalRequestedPayload) error {
	logger := r.logger.With("student_id", payload.StudentID, "pack_id", payload.PackID)

	// Settings may have changed between enqueue and processing.
	settings, err := r.renewals.FindSettings(ctx, r.pool, payload.StudentID)
	if err != nil {
		return fmt.Errorf("renewal settings lookup: %w", err)
	}
	if settings == nil || !settings.Enabled || settings.PackID != payload.PackID {
		logger.Info("renewal request dropped, settings changed since enqueue")
		return nil
	}

	pack, err := r.renewals.FindPack(ctx, r.pool, payload.PackID)
	if err != nil {
		return fmt.Errorf("renewal pack lookup: %w", err)
	}
	if pack == nil {
		return r.recordFailure(ctx, payload, fmt.Errorf("renewal pack %s not found", payload.PackID))
	}

	sub, err := r.subs.FindBillableForStudent(ctx, r.pool, payload.StudentID)
	if err != nil {
		return fmt.Errorf("subscription lookup: %w", err)
	}
	if sub == nil || sub.ProviderCustomerID == nil {
		return r.recordFailure(ctx, payload, fmt.Errorf("no billable subscription with a payment customer"))
	}

	if result := r.breaker.Check(ctx, stripeCircuitKey); !result.Allowed {
		// Leave the error unrecorded; the circuit opening is a provider
		// problem, not this student's.
		return fmt.Errorf("renewal deferred: %s", result.Reason)
	}

	intent, err := r.stripe.ChargeSavedPaymentMethod(ctx, *sub.ProviderCustomerID, pack.PriceCents, "usd",
		fmt.Sprintf("Auto-renewal: %s", pack.Name))
	if err != nil {
		r.breaker.RecordFailure(stripeCircuitKey)
		return r.recordFailure(ctx, payload, fmt.Errorf("charge failed: %w", err))
	}
	r.breaker.RecordSuccess(stripeCircuitKey)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := r.engine.ExecuteTopUp(ctx, tx, domain.TopUpParams{
		StudentID: payload.StudentID,
		Credits:   pack.Credits,
		Reason:    fmt.Sprintf("auto-renewal: %s (payment %s)", pack.Name, intent.ID),
	})
	if err != nil {
		// Charged but not credited. The payment id in the log is what support
		// needs to refund or replay.
		logger.Error("top-up failed after successful charge", "error", err, "payment_intent", intent.ID)
		return r.recordFailure(ctx, payload, fmt.Errorf("top-up after charge: %w", err))
	}

	if err := r.renewals.RecordRenewalSuccess(ctx, tx, payload.StudentID, time.Now()); err != nil {
		return fmt.Errorf("record renewal success: %w", err)
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewRenewalOutcomeEvent(payload.StudentID, payload.PackID, nil)); err != nil {
		return fmt.Errorf("insert renewal event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	logger.Info("renewal completed",
		"credits", pack.Credits.String(),
		"balance", result.Entry.BalanceAfter.String(),
		"payment_intent", intent.ID)

	r.notify(ctx, payload.StudentID, "renewal_completed", "Classes renewed",
		fmt.Sprintf("Your %s was purchased automatically. %s", pack.Name, domain.DeductionMessage(result.Entry.BalanceAfter)))
	return nil
}

func (r *RenewalService) recordFailure(ctx context.Context, payload domain.RenewalRequestedPayload, cause error) error {
	r.logger.Error("renewal failed", "error", cause, "student_id", payload.StudentID, "pack_id", payload.PackID)

	if err := r.renewals.RecordRenewalError(ctx, r.pool, payload.StudentID, cause.Error()); err != nil {
		r.logger.Error("record renewal error failed", "error", err, "student_id", payload.StudentID)
	}
	if err := r.outbox.Insert(ctx, r.pool, domain.NewRenewalOutcomeEvent(payload.StudentID, payload.PackID, cause)); err != nil {
		r.logger.Error("insert renewal failure event failed", "error", err, "student_id", payload.StudentID)
	}

	r.notify(ctx, payload.StudentID, "renewal_failed", "Auto-renewal failed",
		"We could not renew your classes automatically. Please update your payment method.")

	// The failure is handled; returning nil lets the consumer commit the
	// offset instead of redelivering a charge attempt.
	return nil
}

func (r *RenewalService) notify(ctx context.Context, studentID uuid.UUID, kind, title, message string) {
	err := r.notifier.Send(ctx, provider.Notification{
		UserID:  studentID.String(),
		Kind:    kind,
		Title:   title,
		Message: message,
	})
	if err != nil {
		r.logger.Warn("notification delivery failed", "error", err, "student_id", studentID, "kind", kind)
	}
}

// GetSettings returns the student's renewal settings, defaulting to disabled
// when none were saved yet.
func (r *RenewalService) GetSettings(ctx context.Context, studentID uuid.UUID) (*domain.RenewalSettings, error) {
	settings, err := r.renewals.FindSettings(ctx, r.pool, studentID)
	if err != nil {
		return nil, domain.ErrInternal("find renewal settings", err)
	}
	if settings == nil {
		return &domain.RenewalSettings{StudentID: studentID, Threshold: decimal.NewFromInt(1)}, nil
	}
	return settings, nil
}

// SettingsInput holds the update request fields.
type SettingsInput struct {
	Enabled   bool            `json:"enabled"`
	PackID    string          `json:"pack_id"`
	Threshold decimal.Decimal `json:"threshold"`
}

// UpdateSettings validates and persists renewal settings for the student.
func (r *RenewalService) UpdateSettings(ctx context.Context, studentID uuid.UUID, input SettingsInput) (*domain.RenewalSettings, error) {
	if err := domain.ValidateThreshold(input.Threshold); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if input.Enabled {
		if input.PackID == "" {
			return nil, domain.ErrValidation("pack id is required when auto-renewal is enabled")
		}
		pack, err := r.renewals.FindPack(ctx, r.pool, input.PackID)
		if err != nil {
			return nil, domain.ErrInternal("find renewal pack", err)
		}
		if pack == nil {
			return nil, domain.ErrNotFound("renewal pack", input.PackID)
		}
	}

	settings := &domain.RenewalSettings{
		StudentID: studentID,
		Enabled:   input.Enabled,
		PackID:    input.PackID,
		Threshold: input.Threshold,
	}
	if err := r.renewals.UpsertSettings(ctx, r.pool, settings); err != nil {
		return nil, domain.ErrInternal("save renewal settings", err)
	}
	return settings, nil
}
