package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultPricePerClassCents is the list price used when rendering overdrawn
// balances as an amount owed.
const DefaultPricePerClassCents = 2000

var one = decimal.NewFromInt(1)

// DeductionMessage builds the human-readable result line for a successful
// deduction, varying with the post-debit balance.
func DeductionMessage(balance decimal.Decimal) string {
	switch {
	case balance.LessThanOrEqual(decimal.Zero):
		return "No classes remaining, purchase more to continue"
	case balance.Equal(one):
		return "1 class remaining"
	default:
		return fmt.Sprintf("%s classes remaining", balance.String())
	}
}

// Toast is the balance-aware copy surfaced to the dashboard after completion.
// Upsell marks responses that should carry a call-to-action into the pricing
// flow (zero or negative balance).
type Toast struct {
	Message string `json:"message"`
	Upsell  bool   `json:"upsell"`
}

// BalanceToast builds the toast for a given balance.
func BalanceToast(balance decimal.Decimal) Toast {
	switch {
	case balance.LessThanOrEqual(decimal.Zero):
		return Toast{Message: "No credits remaining", Upsell: true}
	case balance.Equal(one):
		return Toast{Message: "1 class remaining"}
	default:
		return Toast{Message: fmt.Sprintf("%s classes remaining", balance.String())}
	}
}

// OverdrawnBadge renders a negative balance as classes owed, e.g. a balance of
// -3 at $20 per class yields "3 classes overdrawn ($60 owed)". Returns the
// empty string for non-negative balances.
func OverdrawnBadge(balance decimal.Decimal, pricePerClassCents int64) string {
	if balance.Sign() >= 0 {
		return ""
	}
	overdrawn := balance.Neg()
	owed := overdrawn.Mul(decimal.NewFromInt(pricePerClassCents)).Div(decimal.NewFromInt(100))
	noun := "classes"
	if overdrawn.Equal(one) {
		noun = "class"
	}
	return fmt.Sprintf("%s %s overdrawn ($%s owed)", overdrawn.String(), noun, owed.String())
}
