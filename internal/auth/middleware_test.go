package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMiddleware_ValidSession(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-32-characters-long!", 15*time.Minute)
	token, err := tm.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)

	var capturedUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.ClaimsFromContext(r.Context())
		if claims != nil {
			capturedUserID = claims.UserID
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := auth.SessionMiddleware(tm)(next)
	req := httptest.NewRequest("GET", "/activity", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user123", capturedUserID)
}

func TestSessionMiddleware_Rejections(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-32-characters-long!", 15*time.Minute)
	otherTM := auth.NewTokenManager("a-different-secret-entirely-here!", 15*time.Minute)
	expiredTM := auth.NewTokenManager("test-secret-32-characters-long!", -1*time.Minute)

	foreignToken, err := otherTM.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)
	expiredToken, err := expiredTM.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"garbage token", &http.Cookie{Name: auth.SessionCookieName, Value: "not-a-jwt"}},
		{"wrong secret", &http.Cookie{Name: auth.SessionCookieName, Value: foreignToken}},
		{"expired token", &http.Cookie{Name: auth.SessionCookieName, Value: expiredToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			handler := auth.SessionMiddleware(tm)(next)
			req := httptest.NewRequest("GET", "/activity", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, called)
		})
	}
}

func TestClaimsFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Nil(t, auth.ClaimsFromContext(req.Context()))
}
