package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies the caller of a credit operation.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// Caller is the authenticated identity performing a credit operation.
type Caller struct {
	ID    uuid.UUID
	Email string
	Role  Role
}

// CanManageCredits reports whether the caller may debit or restore credits.
func (c Caller) CanManageCredits() bool {
	return c.Role == RoleTutor || c.Role == RoleAdmin
}

// DeductParams holds the input for ExecuteDeduct.
type DeductParams struct {
	StudentID  uuid.UUID
	ClassID    string
	ClassTitle string
}

// RestoreParams holds the input for ExecuteRestore. Amount defaults to 1 when
// zero; the minimum accepted is 0.5.
type RestoreParams struct {
	StudentID uuid.UUID
	ClassID   *string
	Reason    string
	Amount    decimal.Decimal
}

// AllocateParams holds the input for ExecuteAllocate: seeding a new
// subscription with its initial credit allocation.
type AllocateParams struct {
	StudentID              uuid.UUID
	Plan                   *Plan
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	Trialing               bool
	Reason                 string
}

// TopUpParams holds the input for ExecuteTopUp: adding credits to an existing
// subscription, used by auto-renewal.
type TopUpParams struct {
	StudentID uuid.UUID
	Credits   decimal.Decimal
	Reason    string
}

// AuthUser holds credentials and realm/role from auth_users.
type AuthUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	FullName     string    `json:"full_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
