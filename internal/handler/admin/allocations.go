package admin

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/auth"
	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/handler"
	"github.com/tutorloop/platform/internal/service"
)

// AllocationAdminHandler handles manual credit allocation.
type AllocationAdminHandler struct {
	allocations *service.AllocationService
}

// NewAllocationAdminHandler creates a new AllocationAdminHandler.
func NewAllocationAdminHandler(allocations *service.AllocationService) *AllocationAdminHandler {
	return &AllocationAdminHandler{allocations: allocations}
}

// Allocate handles POST /admin/allocations.
func (h *AllocationAdminHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	caller, err := adminCallerFromContext(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var input service.AllocateInput
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	outcome, err := h.allocations.AllocateCreditsForEmail(r.Context(), caller, input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	resp := allocateResponse{Success: true, PlanName: outcome.PlanName}
	status := http.StatusCreated
	if outcome.Idempotent {
		status = http.StatusOK
		resp.CurrentCredits = &outcome.Subscription.CreditsRemaining
		resp.Message = fmt.Sprintf("subscription already exists with %s credits", outcome.Subscription.CreditsRemaining.String())
	} else {
		resp.CreditsAllocated = &outcome.Entry.Amount
		resp.Message = fmt.Sprintf("allocated %s credits for plan %s", outcome.Entry.Amount.String(), outcome.PlanName)
	}
	handler.RespondJSON(w, status, resp)
}

type allocateResponse struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	CreditsAllocated *decimal.Decimal `json:"credits_allocated,omitempty"`
	CurrentCredits   *decimal.Decimal `json:"current_credits,omitempty"`
	PlanName         string           `json:"plan_name"`
}

// adminCallerFromContext builds the acting identity from admin realm claims.
func adminCallerFromContext(r *http.Request) (domain.Caller, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return domain.Caller{}, domain.ErrUnauthorized("no claims in context")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Caller{}, domain.ErrUnauthorized("invalid subject")
	}
	return domain.Caller{ID: id, Email: claims.Email, Role: domain.Role(claims.Realm)}, nil
}
