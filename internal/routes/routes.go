package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/jmercer-dev/authgate/internal/auth"
	"github.com/jmercer-dev/authgate/internal/handlers"
	"github.com/jmercer-dev/authgate/internal/middleware"
	pkghttp "github.com/jmercer-dev/authgate/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	authenticator auth.SessionAuthenticator,
	accounts auth.AccountReader,
	ipConfig *pkghttp.IPConfig,
) {
	// Transport-level throttle for the unauthenticated surface
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.Get("/health", healthHandler.Health)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(authenticator, ipConfig))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/session", authHandler.Session)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(accounts, "admin"))
			r.Post("/admin/accounts/{id}/unlock", adminHandler.UnlockAccount)
			r.Post("/admin/accounts/{id}/suspend", adminHandler.SuspendAccount)
		})
	})
}
