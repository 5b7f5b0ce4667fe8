package routes

import (
	"log/slog"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Sessions       *handlers.SessionHandler
	TwoFactor      *handlers.TwoFactorHandler
	SecurityConfig *handlers.SecurityConfigHandler
	IPRules        *handlers.IPRuleHandler
	Lockouts       *handlers.LockoutHandler
	Audit          *handlers.AuditHandler
}

// Gates holds the dependencies of the security middleware chain
type Gates struct {
	Limiter             *ratelimit.Limiter
	IPRules             middleware.IPEvaluator
	Sessions            auth.SessionValidator
	Admins              auth.AdminLookup
	TwoFactor           auth.TwoFactorResolver
	LoginBurstPerMinute int
}

// RegisterRoutes registers all application routes.
// Every /admin request passes the rate limiter and then the IP gate. Login adds a
// burst limit; the lockout check runs inside the login flow because it needs the email.
func RegisterRoutes(router chi.Router, h Handlers, g Gates, logger *slog.Logger) {
	router.Get("/health", h.Health.Health)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RateLimit(g.Limiter, logger))
		r.Use(middleware.IPGate(g.IPRules, logger))

		// Public
		r.With(middleware.LoginBurstLimit(g.LoginBurstPerMinute)).Post("/auth/login", h.Auth.Login)

		// Session required
		r.Group(func(r chi.Router) {
			r.Use(auth.SessionGate(g.Sessions, g.Admins, logger))

			r.Post("/auth/logout", h.Auth.Logout)
			r.Post("/auth/logout-others", h.Auth.LogoutOthers)

			r.Get("/sessions", h.Sessions.List)
			r.Delete("/sessions/{id}", h.Sessions.Terminate)

			r.Get("/2fa", h.TwoFactor.Status)
			r.Post("/2fa/setup", h.TwoFactor.Setup)
			r.Post("/2fa/verify", h.TwoFactor.Verify)

			// Session plus satisfied 2FA policy
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireTwoFactor(g.TwoFactor, logger))

				r.Delete("/2fa", h.TwoFactor.Disable)

				r.Get("/security/config", h.SecurityConfig.Get)
				r.Put("/security/config", h.SecurityConfig.Update)

				r.Get("/security/ip-rules", h.IPRules.List)
				r.Post("/security/ip-rules", h.IPRules.Create)
				r.Delete("/security/ip-rules/{id}", h.IPRules.Delete)

				r.Get("/security/lockouts", h.Lockouts.List)
				r.Post("/security/lockouts/ip", h.Lockouts.LockIP)
				r.Post("/security/lockouts/{id}/unlock", h.Lockouts.Unlock)
				r.Get("/security/login-attempts", h.Lockouts.LoginAttempts)

				r.Get("/audit-logs", h.Audit.List)
			})
		})
	})
}
