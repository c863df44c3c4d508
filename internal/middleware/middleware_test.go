package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	userID int
	err    error
}

func (s stubValidator) ValidateToken(string) (int, error) { return s.userID, s.err }

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(r.Context())
		require.True(t, ok)
		assert.Equal(t, 7, id)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateHeaderToken(t *testing.T) {
	handler := Authenticate(stubValidator{userID: 7})(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateQueryFallback(t *testing.T) {
	handler := Authenticate(stubValidator{userID: 7})(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/ws?token=sometoken", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateMissingToken(t *testing.T) {
	handler := Authenticate(stubValidator{userID: 7})(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	handler := Authenticate(stubValidator{err: errors.New("expired")})(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiterBurstThenDeny(t *testing.T) {
	l := NewRateLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "request %d within burst", i)
	}
	assert.False(t, l.Allow(), "burst exhausted")
}
