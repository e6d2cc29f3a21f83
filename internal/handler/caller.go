package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tutorloop/platform/internal/auth"
	"github.com/tutorloop/platform/internal/domain"
)

// callerFromContext builds the acting identity from validated JWT claims.
func callerFromContext(r *http.Request) (domain.Caller, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return domain.Caller{}, domain.ErrUnauthorized("no claims in context")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Caller{}, domain.ErrUnauthorized("invalid subject")
	}
	return domain.Caller{
		ID:    id,
		Email: claims.Email,
		Role:  domain.Role(claims.Realm),
	}, nil
}

// studentIDFromContext extracts and validates the student UUID from auth context.
func studentIDFromContext(r *http.Request) (uuid.UUID, error) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == "" {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized("invalid subject")
	}
	return id, nil
}
