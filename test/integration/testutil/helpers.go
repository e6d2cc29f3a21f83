//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tutorloop/platform/internal/auth"
	"github.com/tutorloop/platform/internal/domain"
)

// RegisterStudent creates a new student account and returns the auth token and id.
func (env *TestEnv) RegisterStudent(email, password string) (token string, studentID uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("RegisterStudent: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		Token  string    `json:"token"`
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("RegisterStudent: decode: %v", err)
	}
	return result.Token, result.UserID
}

// Login authenticates an existing account and returns the auth token.
func (env *TestEnv) Login(email, password string) string {
	env.t.Helper()
	resp := env.POST("/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("Login: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("Login: decode: %v", err)
	}
	return result.Token
}

// SeedUser inserts an account with the given role directly and returns a
// realm token for it. Tutor and admin accounts have no registration endpoint.
func (env *TestEnv) SeedUser(email string, role domain.Role) (token string, id uuid.UUID) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte("seeded-password"), bcrypt.MinCost)
	if err != nil {
		env.t.Fatalf("SeedUser: hash: %v", err)
	}

	id = uuid.New()
	_, err = env.Pool.Exec(ctx, `
		INSERT INTO auth_users (id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)`,
		id, email, string(hash), string(role))
	if err != nil {
		env.t.Fatalf("SeedUser: insert: %v", err)
	}

	token, err = env.JWTMgr.GenerateToken(auth.Realm(role), id, email, "")
	if err != nil {
		env.t.Fatalf("SeedUser: token: %v", err)
	}
	return token, id
}

// AllocatePlan grants a student a subscription for the given plan via the
// admin endpoint.
func (env *TestEnv) AllocatePlan(adminToken, studentEmail, planID string) {
	env.t.Helper()
	resp := env.POST("/admin/allocations", map[string]string{
		"email":   studentEmail,
		"plan_id": planID,
		"reason":  "integration test allocation",
	}, adminToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		env.t.Fatalf("AllocatePlan: expected 200/201, got %d", resp.StatusCode)
	}
}

// ScheduleClass inserts a scheduled class row directly.
func (env *TestEnv) ScheduleClass(classID string, studentID, tutorID uuid.UUID, title string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx, `
		INSERT INTO scheduled_classes (id, student_id, tutor_id, title, subject, scheduled_at)
		VALUES ($1, $2, $3, $4, 'math', now())`,
		classID, studentID, tutorID, title)
	if err != nil {
		env.t.Fatalf("ScheduleClass: insert: %v", err)
	}
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.send("POST", path, body, token)
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("GET", env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET %s: new request: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}

// AuthPUT performs an authenticated PUT request.
func (env *TestEnv) AuthPUT(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.send("PUT", path, body, token)
}

func (env *TestEnv) send(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// DecodeBody decodes a response body into dst and closes it.
func (env *TestEnv) DecodeBody(resp *http.Response, dst interface{}) {
	env.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		env.t.Fatalf("decode body: %v", err)
	}
}
