package routes_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/handlers"
	"github.com/arbiterhq/arbiter/internal/middleware"
	"github.com/arbiterhq/arbiter/internal/routes"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
)

func newTestRouter(rateLimit middleware.RateLimitConfig) chi.Router {
	authHandler := handlers.NewAuthHandler(
		&handlers.MockLoginService{},
		&handlers.MockStepUpService{},
		&pkghttp.IPConfig{},
		handlers.CookieSettings{Config: auth.CookieConfig{SameSite: "lax"}},
	)
	activityHandler := handlers.NewActivityHandler(&handlers.MockActivityService{})
	tokenManager := auth.NewTokenManager("test-secret", 12*time.Hour)

	router := chi.NewRouter()
	routes.RegisterRoutes(router, authHandler, activityHandler, tokenManager, rateLimit)
	return router
}

func postLogin(router chi.Router) *httptest.ResponseRecorder {
	body := strings.NewReader(`{"email":"user@example.com","password":"SecurePassword123!"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_LoginRateLimitUsesConfig(t *testing.T) {
	router := newTestRouter(middleware.RateLimitConfig{RequestsPerMinute: 1})

	first := postLogin(router)
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := postLogin(router)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate_limit_exceeded")
}

func TestRegisterRoutes_ProtectedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(middleware.DefaultAuthRateLimit())

	req := httptest.NewRequest(http.MethodGet, "/activity", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
