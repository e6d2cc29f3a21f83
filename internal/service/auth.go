package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tutorloop/platform/internal/auth"
	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/guard"
	"github.com/tutorloop/platform/internal/repository"
)

// AuthService handles account registration and login for all 3 realms.
type AuthService struct {
	pool   repository.Pool
	users  repository.AuthUserRepository
	outbox repository.OutboxRepository
	jwtMgr *auth.JWTManager
	logger *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	pool repository.Pool,
	users repository.AuthUserRepository,
	outbox repository.OutboxRepository,
	jwtMgr *auth.JWTManager,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		pool:   pool,
		users:  users,
		outbox: outbox,
		jwtMgr: jwtMgr,
		logger: logger,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// AuthResult is returned on successful registration or login.
type AuthResult struct {
	Token  string      `json:"token"`
	UserID uuid.UUID   `json:"user_id"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
}

// Register creates a new student account within a single transaction. Tutor
// and admin accounts are provisioned out of band.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}

	existing, err := s.users.FindByEmail(ctx, s.pool, input.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	studentID := uuid.New()
	user := &domain.AuthUser{
		ID:           studentID,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleStudent,
		FullName:     input.FullName,
	}
	if err := s.users.Create(ctx, tx, user); err != nil {
		return nil, domain.ErrInternal("create auth user", err)
	}

	if err := s.outbox.Insert(ctx, tx, domain.NewStudentRegisteredEvent(studentID, input.Email)); err != nil {
		return nil, domain.ErrInternal("insert registration event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	token, err := s.jwtMgr.GenerateToken(auth.RealmStudent, studentID, input.Email, input.FullName)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &AuthResult{
		Token:  token,
		UserID: studentID,
		Email:  input.Email,
		Role:   domain.RoleStudent,
	}, nil
}

// LoginInput holds the login request fields. IP is filled from the request,
// not the body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IP       string `json:"-"`
}

// Login authenticates a user and returns a JWT for the realm matching the
// account's role. Repeated failures lock the account for a window.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, s.pool, input.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	realm := realmForRole(user.Role)
	if err := guard.CheckLocked(ctx, s.pool, input.Email, string(realm)); err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		guard.RecordAttempt(ctx, s.pool, input.Email, string(realm), input.IP, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	guard.RecordAttempt(ctx, s.pool, input.Email, string(realm), input.IP, true)

	token, err := s.jwtMgr.GenerateToken(realm, user.ID, user.Email, user.FullName)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &AuthResult{
		Token:  token,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}

func realmForRole(role domain.Role) auth.Realm {
	switch role {
	case domain.RoleTutor:
		return auth.RealmTutor
	case domain.RoleAdmin:
		return auth.RealmAdmin
	default:
		return auth.RealmStudent
	}
}
