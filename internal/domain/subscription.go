package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus enumerates the billing states a subscription moves through.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// Billable reports whether the status permits class-credit deductions.
func (s SubscriptionStatus) Billable() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Subscription represents a subscriptions row: a student's current credit
// container. CreditsRemaining is a denormalized cache synchronized in the
// same transaction as every ledger append; the ledger is the source of truth.
type Subscription struct {
	ID                     uuid.UUID          `json:"id"`
	StudentID              uuid.UUID          `json:"student_id"`
	PlanID                 string             `json:"plan_id"`
	Status                 SubscriptionStatus `json:"status"`
	CreditsRemaining       decimal.Decimal    `json:"credits_remaining"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	ProviderSubscriptionID *string            `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     *string            `json:"provider_customer_id,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// Plan maps a payment-provider product to an internal credit allocation.
type Plan struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	CreditsPerPeriod  decimal.Decimal `json:"credits_per_period"`
	PriceCents        int64           `json:"price_cents"`
	ProviderProductID string          `json:"provider_product_id"`
}
