package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/service"
)

// CreditHandler handles credit deduction, restoration, balance and ledger endpoints.
type CreditHandler struct {
	credits *service.CreditService
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(credits *service.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

type deductRequest struct {
	StudentID  uuid.UUID `json:"student_id"`
	ClassID    string    `json:"class_id"`
	ClassTitle string    `json:"class_title"`
}

type deductResponse struct {
	Success          bool            `json:"success"`
	CreditsRemaining decimal.Decimal `json:"credits_remaining"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	Idempotent       bool            `json:"idempotent,omitempty"`
	Message          string          `json:"message"`
}

// Deduct handles POST /credits/deduct. Tutor or admin realm.
func (h *CreditHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input deductRequest
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	result, err := h.credits.DeductClassCredit(r.Context(), caller, domain.DeductParams{
		StudentID:  input.StudentID,
		ClassID:    input.ClassID,
		ClassTitle: input.ClassTitle,
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, deductResponse{
		Success:          true,
		CreditsRemaining: result.Balance,
		TransactionID:    result.Entry.ID,
		Idempotent:       result.Idempotent,
		Message:          result.Message,
	})
}

type restoreRequest struct {
	StudentID uuid.UUID       `json:"student_id"`
	ClassID   *string         `json:"class_id,omitempty"`
	Reason    string          `json:"reason"`
	Amount    decimal.Decimal `json:"credits_to_restore"`
}

type restoreResponse struct {
	Success         bool            `json:"success"`
	CreditsRestored decimal.Decimal `json:"credits_restored"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	RestoredBy      string          `json:"restored_by"`
	RestoredByRole  domain.Role     `json:"restored_by_role"`
}

// Restore handles POST /credits/restore. Tutor or admin realm.
func (h *CreditHandler) Restore(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input restoreRequest
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	result, err := h.credits.RestoreCredit(r.Context(), caller, domain.RestoreParams{
		StudentID: input.StudentID,
		ClassID:   input.ClassID,
		Reason:    input.Reason,
		Amount:    input.Amount,
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, restoreResponse{
		Success:         true,
		CreditsRestored: result.Entry.Amount,
		NewBalance:      result.Balance,
		RestoredBy:      caller.Email,
		RestoredByRole:  caller.Role,
	})
}

// GetBalance handles GET /credits/balance. Student realm.
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.credits.GetBalance(r.Context(), studentID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// ledgerResponse wraps a list of ledger entries with cursor.
type ledgerResponse struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	NextCursor *string              `json:"next_cursor,omitempty"`
}

// GetLedger handles GET /credits/ledger with cursor-based pagination. Student realm.
func (h *CreditHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	entries, err := h.credits.ListLedger(r.Context(), studentID, cursor, limit+1)
	if err != nil {
		RespondError(w, err)
		return
	}

	resp := ledgerResponse{Entries: entries}
	if len(entries) > limit {
		resp.Entries = entries[:limit]
		next := entries[limit].ID.String()
		resp.NextCursor = &next
	}

	RespondJSON(w, http.StatusOK, resp)
}
