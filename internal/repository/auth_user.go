package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tutorloop/platform/internal/domain"
)

const authUserColumns = `id, email, password_hash, role, full_name, created_at, updated_at`

type authUserRepo struct{}

// NewAuthUserRepository returns a pgx-backed AuthUserRepository.
func NewAuthUserRepository() AuthUserRepository {
	return &authUserRepo{}
}

func (r *authUserRepo) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AuthUser, error) {
	row := db.QueryRow(ctx, `
		SELECT `+authUserColumns+`
		FROM auth_users WHERE lower(email) = lower($1)`, email)
	return scanAuthUser(row)
}

func (r *authUserRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.AuthUser, error) {
	row := db.QueryRow(ctx, `
		SELECT `+authUserColumns+`
		FROM auth_users WHERE id = $1`, id)
	return scanAuthUser(row)
}

func (r *authUserRepo) Create(ctx context.Context, db DBTX, user *domain.AuthUser) error {
	_, err := db.Exec(ctx, `
		INSERT INTO auth_users (id, email, password_hash, role, full_name)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.PasswordHash, string(user.Role), user.FullName)
	if err != nil {
		return fmt.Errorf("insert auth user: %w", err)
	}
	return nil
}

func scanAuthUser(row pgx.Row) (*domain.AuthUser, error) {
	var user domain.AuthUser
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.FullName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan auth user: %w", err)
	}
	return &user, nil
}
