package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RenewalSettings is a student's auto-renewal configuration, read after every
// debit to decide whether a renewal should be requested.
type RenewalSettings struct {
	StudentID        uuid.UUID       `json:"student_id"`
	Enabled          bool            `json:"enabled"`
	PackID           string          `json:"pack_id"`
	Threshold        decimal.Decimal `json:"threshold"`
	LastRenewalAt    *time.Time      `json:"last_renewal_at,omitempty"`
	LastRenewalError *string         `json:"last_renewal_error,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RenewalPack is a purchasable credit bundle used by auto-renewal.
type RenewalPack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Credits    decimal.Decimal `json:"credits"`
	PriceCents int64           `json:"price_cents"`
}
