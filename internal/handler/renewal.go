package handler

import (
	"net/http"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/service"
)

// RenewalHandler handles auto-renewal settings endpoints.
type RenewalHandler struct {
	renewals *service.RenewalService
}

// NewRenewalHandler creates a new RenewalHandler.
func NewRenewalHandler(renewals *service.RenewalService) *RenewalHandler {
	return &RenewalHandler{renewals: renewals}
}

// GetSettings handles GET /renewal-settings. Student realm.
func (h *RenewalHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	settings, err := h.renewals.GetSettings(r.Context(), studentID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /renewal-settings. Student realm.
func (h *RenewalHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	studentID, err := studentIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var input service.SettingsInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	settings, err := h.renewals.UpdateSettings(r.Context(), studentID, input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, settings)
}
