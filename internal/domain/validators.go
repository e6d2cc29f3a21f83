package domain

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// minRestoreAmount is the smallest credit restoration accepted.
var minRestoreAmount = decimal.NewFromFloat(0.5)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateDeduct checks the required deduction inputs.
func ValidateDeduct(p DeductParams) error {
	if p.StudentID == uuid.Nil {
		return fmt.Errorf("student id is required")
	}
	if p.ClassID == "" {
		return fmt.Errorf("class id is required")
	}
	if p.ClassTitle == "" {
		return fmt.Errorf("class title is required")
	}
	return nil
}

// NormalizeRestoreAmount applies the default of 1 credit and enforces the
// 0.5 minimum.
func NormalizeRestoreAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.NewFromInt(1), nil
	}
	if amount.LessThan(minRestoreAmount) {
		return decimal.Zero, fmt.Errorf("minimum restoration is 0.5 credits, got %s", amount.String())
	}
	return amount, nil
}

// ValidateThreshold checks an auto-renewal threshold.
func ValidateThreshold(threshold decimal.Decimal) error {
	if threshold.Sign() < 0 {
		return fmt.Errorf("threshold must be non-negative, got %s", threshold.String())
	}
	return nil
}
