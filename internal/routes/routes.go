package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storelane/authd/internal/database"
	"github.com/storelane/authd/internal/handlers"
	"github.com/storelane/authd/internal/middleware"
	pkghttp "github.com/storelane/authd/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	db *database.DB,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// Credential-bearing endpoints sit behind the per-IP volume limit. The
	// per-identity lockout is enforced inside the session service.
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.Refresh)

	router.Get("/auth/verify", authHandler.Verify)
	router.Post("/auth/logout", authHandler.Logout)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.HealthCheck(r.Context()); err != nil {
				pkghttp.WriteServiceUnavailable(w, "Database unreachable")
				return
			}
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
