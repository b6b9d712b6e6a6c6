package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/mvollmer/gatehouse/internal/auth"
	"github.com/mvollmer/gatehouse/internal/handlers"
	"github.com/mvollmer/gatehouse/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	revoker *auth.Revoker,
	peerSecret string,
) {
	loginRateLimit := middleware.DefaultLoginRateLimit()

	// Public routes - credentials travel in the body, rate limited per IP
	router.Route("/v1/auth", func(r chi.Router) {
		r.With(middleware.RateLimitByIP(loginRateLimit)).Post("/login", authHandler.Login)
		r.With(middleware.RateLimitByIP(loginRateLimit)).Post("/apikey", authHandler.LoginAPIKey)
		r.With(middleware.RateLimitByIP(loginRateLimit)).Post("/token", authHandler.LoginExternalToken)
		r.With(middleware.RateLimitByIP(loginRateLimit)).Post("/password/reset", authHandler.ResetPassword)

		// Session-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(auth.MiddlewareWithRevocation(tokenManager, revoker))
			r.Use(middleware.RateLimitBySession(middleware.RateLimitConfig{RequestsPerMinute: 60}))

			r.Post("/password/change", authHandler.ChangePassword)
			r.Get("/tenants", authHandler.GetTenants)
			r.Get("/permissions", authHandler.GetPermissions)
		})
	})

	// Peer-to-peer endpoint, not exposed through the public ingress and
	// additionally guarded by the shared secret.
	router.With(middleware.PeerAuth(peerSecret)).
		Post("/internal/v1/sessions/invalidate", authHandler.InvalidateSessions)
}
