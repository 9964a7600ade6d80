package routes

import (
	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/handlers"
	"github.com/arbiterhq/arbiter/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	activityHandler *handlers.ActivityHandler,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/step-up/verify", authHandler.VerifyStepUp)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/resume", authHandler.Resume)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenManager))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/activity", activityHandler.Feed)
	})
}
