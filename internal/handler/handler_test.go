package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorloop/platform/internal/domain"
	"github.com/tutorloop/platform/internal/guard"
)

// --- RespondJSON Tests ---

func TestRespondJSON(t *testing.T) {
	t.Run("200 with body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("204 with nil body", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondJSON(w, http.StatusNoContent, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

// --- RespondError Tests ---

func TestRespondError(t *testing.T) {
	t.Run("AppError maps to correct status", func(t *testing.T) {
		tests := []struct {
			err        *domain.AppError
			wantStatus int
			wantCode   string
		}{
			{domain.ErrNotFound("class", "cls_123"), 404, "NOT_FOUND"},
			{domain.ErrValidation("bad input"), 400, "VALIDATION_ERROR"},
			{domain.ErrUnauthorized("no token"), 401, "UNAUTHORIZED"},
			{domain.ErrForbidden("not allowed"), 403, "FORBIDDEN"},
			{domain.ErrConflict("duplicate"), 409, "CONFLICT"},
			{domain.ErrNoSubscription(), 402, "NO_SUBSCRIPTION"},
			{domain.ErrNoCredits(), 402, "NO_CREDITS"},
			{domain.ErrAccountLocked("locked"), 429, "ACCOUNT_LOCKED"},
			{domain.ErrInternal("oops", nil), 500, "INTERNAL_ERROR"},
		}

		for _, tt := range tests {
			t.Run(tt.wantCode, func(t *testing.T) {
				w := httptest.NewRecorder()
				RespondError(w, tt.err)
				assert.Equal(t, tt.wantStatus, w.Code)

				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.wantCode, body["code"])
			})
		}
	})

	t.Run("generic error returns 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		RespondError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "INTERNAL_ERROR", body["code"])
		assert.Equal(t, "internal server error", body["error"])
	})
}

// --- DecodeJSON Tests ---

func TestDecodeJSON(t *testing.T) {
	t.Run("valid JSON body", func(t *testing.T) {
		body := bytes.NewBufferString(`{"name":"test","value":42}`)
		r := httptest.NewRequest(http.MethodPost, "/", body)
		var dst struct {
			Name  string `json:"name"`
			Value int    `json:"value"`
		}
		require.NoError(t, DecodeJSON(r, &dst))
		assert.Equal(t, "test", dst.Name)
		assert.Equal(t, 42, dst.Value)
	})

	t.Run("invalid JSON returns error", func(t *testing.T) {
		body := bytes.NewBufferString(`{invalid`)
		r := httptest.NewRequest(http.MethodPost, "/", body)
		var dst map[string]interface{}
		err := DecodeJSON(r, &dst)
		require.Error(t, err)
	})
}

// --- ClientIP Tests ---

func TestClientIP(t *testing.T) {
	t.Run("X-Forwarded-For single IP", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "1.2.3.4")
		assert.Equal(t, "1.2.3.4", ClientIP(r))
	})

	t.Run("X-Forwarded-For multiple IPs takes first", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8, 9.10.11.12")
		assert.Equal(t, "1.2.3.4", ClientIP(r))
	})

	t.Run("no X-Forwarded-For uses RemoteAddr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:54321"
		assert.Equal(t, "10.0.0.1", ClientIP(r))
	})

	t.Run("RemoteAddr without port", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1"
		assert.Equal(t, "10.0.0.1", ClientIP(r))
	})
}

// --- RequestID Middleware Tests ---

func TestRequestID(t *testing.T) {
	t.Run("generates ID when none provided", func(t *testing.T) {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := GetRequestID(r.Context())
			assert.NotEmpty(t, id)
			w.WriteHeader(http.StatusOK)
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("uses provided X-Request-ID", func(t *testing.T) {
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := GetRequestID(r.Context())
			assert.Equal(t, "my-custom-id", id)
			w.WriteHeader(http.StatusOK)
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "my-custom-id")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, "my-custom-id", w.Header().Get("X-Request-ID"))
	})
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	assert.Empty(t, id)
}

// --- JSONContentType Middleware Tests ---

func TestJSONContentType(t *testing.T) {
	h := JSONContentType(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

// --- RateLimit Middleware Tests ---

func TestRateLimit(t *testing.T) {
	limiter := guard.NewRateLimiter(2, time.Minute)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "10.0.0.1:54321"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["code"])

	// a different client is unaffected
	r = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.RemoteAddr = "10.0.0.2:54321"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
