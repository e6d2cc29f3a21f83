package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/provider"
	"github.com/tutorloop/platform/internal/repository"
)

// AllocationService handles manual credit allocation: an admin grants a
// student their plan's credits by email, discovering the paid subscription
// from the payment provider when the webhook never arrived.
type AllocationService struct {
	pool   repository.Pool
	users  repository.AuthUserRepository
	plans  repository.PlanRepository
	stripe *provider.StripeProvider
	engine *ledger.Engine
	logger *slog.Logger
}

// NewAllocationService creates an AllocationService.
func NewAllocationService(
	pool repository.Pool,
	users repository.AuthUserRepository,
	plans repository.PlanRepository,
	stripe *provider.StripeProvider,
	engine *ledger.Engine,
	logger *slog.Logger,
) *AllocationService {
	return &AllocationService{
		pool:   pool,
		users:  users,
		plans:  plans,
		stripe: stripe,
		engine: engine,
		logger: logger,
	}
}

// AllocateInput holds the manual allocation request fields. PlanID overrides
// provider discovery when set.
type AllocateInput struct {
	Email  string `json:"email"`
	PlanID string `json:"plan_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// AllocationOutcome is returned from AllocateCreditsForEmail.
type AllocationOutcome struct {
	Subscription *domain.Subscription `json:"subscription"`
	Entry        *domain.LedgerEntry  `json:"entry,omitempty"`
	PlanName     string               `json:"plan_name"`
	Idempotent   bool                 `json:"idempotent"`
}

// AllocateCreditsForEmail resolves the student by email, determines the plan,
// and seeds a subscription with its credit allocation. Admin only.
func (s *AllocationService) AllocateCreditsForEmail(ctx context.Context, caller domain.Caller, input AllocateInput) (*AllocationOutcome, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden("only admins may allocate credits")
	}
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	user, err := s.users.FindByEmail(ctx, s.pool, input.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("student", input.Email)
	}
	if user.Role != domain.RoleStudent {
		return nil, domain.ErrValidation("credits can only be allocated to student accounts")
	}

	params := domain.AllocateParams{
		StudentID: user.ID,
		Reason:    input.Reason,
	}

	if input.PlanID != "" {
		plan, err := s.plans.FindByID(ctx, s.pool, input.PlanID)
		if err != nil {
			return nil, domain.ErrInternal("find plan", err)
		}
		if plan == nil {
			return nil, domain.ErrNotFound("plan", input.PlanID)
		}
		params.Plan = plan
	} else {
		if err := s.discoverFromProvider(ctx, input.Email, &params); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.engine.ExecuteAllocate(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	if result.Idempotent {
		s.logger.Info("allocation replayed, subscription already exists",
			"student_id", user.ID, "subscription_id", result.Subscription.ID)
	} else {
		s.logger.Info("credits allocated",
			"student_id", user.ID,
			"plan_id", result.Subscription.PlanID,
			"credits", result.Subscription.CreditsRemaining.String(),
			"caller", caller.ID)
	}

	return &AllocationOutcome{
		Subscription: result.Subscription,
		Entry:        result.Entry,
		PlanName:     params.Plan.Name,
		Idempotent:   result.Idempotent,
	}, nil
}

// discoverFromProvider fills allocation params from the student's active
// Stripe subscription.
func (s *AllocationService) discoverFromProvider(ctx context.Context, email string, params *domain.AllocateParams) error {
	customer, err := s.stripe.FindCustomerByEmail(ctx, email)
	if err != nil {
		return domain.ErrInternal("stripe customer lookup", err)
	}
	if customer == nil {
		return domain.ErrNotFound("payment customer", email)
	}

	subs, err := s.stripe.ListActiveSubscriptions(ctx, customer.ID)
	if err != nil {
		return domain.ErrInternal("stripe subscription lookup", err)
	}
	if len(subs) == 0 {
		return domain.ErrNoSubscription()
	}
	stripeSub := subs[0]

	plan, err := s.plans.FindByProviderProductID(ctx, s.pool, stripeSub.ProductID())
	if err != nil {
		return domain.ErrInternal("find plan by product", err)
	}
	if plan == nil {
		return domain.ErrNotFound("plan for product", stripeSub.ProductID())
	}

	start := time.Unix(stripeSub.CurrentPeriodStart, 0)
	end := time.Unix(stripeSub.CurrentPeriodEnd, 0)

	params.Plan = plan
	params.ProviderSubscriptionID = stripeSub.ID
	params.ProviderCustomerID = customer.ID
	params.PeriodStart = &start
	params.PeriodEnd = &end
	if params.Reason == "" {
		params.Reason = fmt.Sprintf("manual allocation from provider subscription %s", stripeSub.ID)
	}
	return nil
}
