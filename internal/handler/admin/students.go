package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/handler"
)

// StudentAdminHandler handles admin student management.
type StudentAdminHandler struct {
	pool *pgxpool.Pool
}

// NewStudentAdminHandler creates a new StudentAdminHandler.
func NewStudentAdminHandler(pool *pgxpool.Pool) *StudentAdminHandler {
	return &StudentAdminHandler{pool: pool}
}

// ListStudents handles GET /admin/students.
func (h *StudentAdminHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	rows, err := h.pool.Query(r.Context(), `
		SELECT u.id, u.email, u.full_name, u.created_at,
		       COALESCE(s.status, ''), COALESCE(s.credits_remaining, 0)
		FROM auth_users u
		LEFT JOIN subscriptions s
		  ON s.student_id = u.id AND s.status IN ('active', 'trialing')
		WHERE u.role = 'student'
		ORDER BY u.created_at DESC LIMIT 50`)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("list students", err))
		return
	}
	defer rows.Close()

	type studentSummary struct {
		ID                 uuid.UUID `json:"id"`
		Email              string    `json:"email"`
		FullName           string    `json:"full_name"`
		CreatedAt          time.Time `json:"created_at"`
		SubscriptionStatus string    `json:"subscription_status"`
		CreditsRemaining   string    `json:"credits_remaining"`
	}

	var students []studentSummary
	for rows.Next() {
		var s studentSummary
		if err := rows.Scan(&s.ID, &s.Email, &s.FullName, &s.CreatedAt, &s.SubscriptionStatus, &s.CreditsRemaining); err != nil {
			handler.RespondError(w, domain.ErrInternal("scan student", err))
			return
		}
		students = append(students, s)
	}

	handler.RespondJSON(w, http.StatusOK, students)
}

// GetStudentLedger handles GET /admin/students/{id}/ledger.
func (h *StudentAdminHandler) GetStudentLedger(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid student id"))
		return
	}

	rows, err := h.pool.Query(r.Context(), `
		SELECT id, seq, type, amount, balance_after, reason, related_class_id, created_at
		FROM ledger_entries
		WHERE student_id = $1
		ORDER BY seq DESC LIMIT 100`, id)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("list ledger entries", err))
		return
	}
	defer rows.Close()

	type entrySummary struct {
		ID             uuid.UUID `json:"id"`
		Seq            int64     `json:"seq"`
		Type           string    `json:"type"`
		Amount         string    `json:"amount"`
		BalanceAfter   string    `json:"balance_after"`
		Reason         string    `json:"reason"`
		RelatedClassID *string   `json:"related_class_id,omitempty"`
		CreatedAt      time.Time `json:"created_at"`
	}

	var entries []entrySummary
	for rows.Next() {
		var e entrySummary
		if err := rows.Scan(&e.ID, &e.Seq, &e.Type, &e.Amount, &e.BalanceAfter, &e.Reason, &e.RelatedClassID, &e.CreatedAt); err != nil {
			handler.RespondError(w, domain.ErrInternal("scan ledger entry", err))
			return
		}
		entries = append(entries, e)
	}

	handler.RespondJSON(w, http.StatusOK, entries)
}
