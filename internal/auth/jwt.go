package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Realm identifies the JWT authentication realm.
type Realm string

const (
	RealmStudent Realm = "student"
	RealmTutor   Realm = "tutor"
	RealmAdmin   Realm = "admin"
)

// Claims holds the custom JWT claims for all 3 realms.
type Claims struct {
	jwt.RegisteredClaims
	Realm Realm  `json:"realm"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// JWTManager handles token generation and validation for all 3 realms.
type JWTManager struct {
	secret        []byte
	studentExpiry time.Duration
	tutorExpiry   time.Duration
	adminExpiry   time.Duration
}

// NewJWTManager creates a JWT manager with realm-specific expiry durations.
func NewJWTManager(secret string, studentExpiry, tutorExpiry, adminExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		studentExpiry: studentExpiry,
		tutorExpiry:   tutorExpiry,
		adminExpiry:   adminExpiry,
	}
}

// GenerateToken creates a signed JWT for the given realm and subject.
func (m *JWTManager) GenerateToken(realm Realm, subjectID uuid.UUID, email, name string) (string, error) {
	var expiry time.Duration
	switch realm {
	case RealmStudent:
		expiry = m.studentExpiry
	case RealmTutor:
		expiry = m.tutorExpiry
	case RealmAdmin:
		expiry = m.adminExpiry
	default:
		return "", fmt.Errorf("unknown realm: %s", realm)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			ID:        uuid.New().String(),
		},
		Realm: realm,
		Email: email,
		Name:  name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a JWT, returning claims if valid.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateTokenForRealm validates a token and ensures it belongs to the expected realm.
func (m *JWTManager) ValidateTokenForRealm(tokenString string, expectedRealm Realm) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Realm != expectedRealm {
		return nil, fmt.Errorf("expected realm %s, got %s", expectedRealm, claims.Realm)
	}
	return claims, nil
}

// ValidateTokenForRealms validates a token and ensures its realm is one of the
// accepted realms. Used on endpoints shared between tutors and admins.
func (m *JWTManager) ValidateTokenForRealms(tokenString string, realms ...Realm) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	for _, realm := range realms {
		if claims.Realm == realm {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("realm %s not permitted", claims.Realm)
}
