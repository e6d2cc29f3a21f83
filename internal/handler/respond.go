package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tutorloop/platform/internal/domain"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, map[string]interface{}{
			"success": false,
			"code":    appErr.Code,
			"error":   appErr.Message,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"success": false,
		"code":    "INTERNAL_ERROR",
		"error":   "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
