package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/service"
)

// CompletionHandler handles the class completion endpoint.
type CompletionHandler struct {
	completions *service.CompletionService
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(completions *service.CompletionService) *CompletionHandler {
	return &CompletionHandler{completions: completions}
}

// Complete handles POST /classes/{id}/complete. Tutor or admin realm.
func (h *CompletionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	classID := chi.URLParam(r, "id")
	if classID == "" {
		RespondError(w, domain.ErrValidation("class id is required"))
		return
	}

	result, err := h.completions.CompleteClass(r.Context(), caller, classID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
