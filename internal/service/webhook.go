package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/provider"
	"github.com/tutorloop/platform/internal/repository"
)

// WebhookService processes verified payment provider events. Checkout
// completion is the primary allocation path; manual allocation exists for
// when these webhooks are lost.
type WebhookService struct {
	pool   repository.Pool
	stripe *provider.StripeProvider
	plans  repository.PlanRepository
	engine *ledger.Engine
	logger *slog.Logger
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(
	pool repository.Pool,
	stripe *provider.StripeProvider,
	plans repository.PlanRepository,
	engine *ledger.Engine,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		pool:   pool,
		stripe: stripe,
		plans:  plans,
		engine: engine,
		logger: logger,
	}
}

// HandleStripeWebhook verifies and dispatches a Stripe webhook event.
func (s *WebhookService) HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.stripe.VerifyWebhookSignature(payload, sigHeader)
	if err != nil {
		return domain.ErrUnauthorized(fmt.Sprintf("webhook verification failed: %v", err))
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	default:
		s.logger.Info("unhandled stripe event type", "type", event.Type)
		return nil
	}
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event *provider.StripeWebhookEvent) error {
	session, err := provider.ParseCheckoutSessionData(event.Data)
	if err != nil {
		return domain.ErrInternal("parse checkout session", err)
	}

	studentID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		// Not an error to Stripe: retrying cannot fix a missing reference.
		s.logger.Warn("checkout session without student reference", "session_id", session.ID)
		return nil
	}
	if session.Subscription == "" {
		s.logger.Warn("checkout session without subscription", "session_id", session.ID)
		return nil
	}

	stripeSub, err := s.stripe.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return domain.ErrInternal("fetch provider subscription", err)
	}

	plan, err := s.plans.FindByProviderProductID(ctx, s.pool, stripeSub.ProductID())
	if err != nil {
		return domain.ErrInternal("find plan by product", err)
	}
	if plan == nil {
		s.logger.Error("no plan mapped for provider product",
			"product_id", stripeSub.ProductID(), "session_id", session.ID)
		return nil
	}

	start := time.Unix(stripeSub.CurrentPeriodStart, 0)
	end := time.Unix(stripeSub.CurrentPeriodEnd, 0)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteAllocate(ctx, tx, domain.AllocateParams{
		StudentID:              studentID,
		Plan:                   plan,
		ProviderSubscriptionID: stripeSub.ID,
		ProviderCustomerID:     stripeSub.Customer,
		PeriodStart:            &start,
		PeriodEnd:              &end,
		Trialing:               stripeSub.Status == "trialing",
		Reason:                 fmt.Sprintf("plan purchase: %s", plan.Name),
	})
	if err != nil {
		return domain.ErrInternal("execute allocation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal("commit tx", err)
	}

	if result.Idempotent {
		return nil
	}

	s.logger.Info("subscription allocated from checkout",
		"student_id", studentID,
		"plan_id", plan.ID,
		"credits", plan.CreditsPerPeriod.String(),
		"provider_subscription_id", stripeSub.ID)
	return nil
}
