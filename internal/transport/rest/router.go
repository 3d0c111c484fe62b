package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/auth"
	"github.com/frahmantamala/tenant-auth/internal/authz"
	"github.com/frahmantamala/tenant-auth/internal/invitation"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	"github.com/frahmantamala/tenant-auth/internal/transport"
	"github.com/frahmantamala/tenant-auth/internal/transport/middleware"
	"github.com/frahmantamala/tenant-auth/internal/transport/swagger"
	"github.com/frahmantamala/tenant-auth/internal/twofactor"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

// Routes bundles everything the routing table dispatches to.
type Routes struct {
	Health      *HealthHandler
	Auth        *auth.Handler
	TwoFactor   *twofactor.Handler
	Tenancy     *tenancy.Handler
	Invitations *invitation.Handler
	Gate        *authz.Gate

	Tokens         middleware.AccessTokenParser
	Limiter        middleware.Limiter
	RateLimits     internal.RateLimitConfig
	AllowedOrigins string
	OpenAPIPath    string
}

func RegisterAllRoutes(router *chi.Mux, routes Routes, logger *slog.Logger) {
	base := transport.NewBaseHandler(logger)

	limiter := routes.Limiter
	if !routes.RateLimits.Enabled {
		limiter = nil
	}
	limit := func(scope string, rule internal.RateLimitRule) func(http.Handler) http.Handler {
		return middleware.RateLimit(base, limiter, scope, rule)
	}
	rl := routes.RateLimits

	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.CORS(routes.AllowedOrigins))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.ClientInfo)

	openAPIPath := routes.OpenAPIPath
	if openAPIPath == "" {
		openAPIPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, openAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if routes.Health != nil {
			r.Get("/health", routes.Health.healthCheckHandler)
			r.Get("/ping", routes.Health.pingHandler)
		}

		if routes.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.With(limit(middleware.ScopeLogin, rl.Login)).Post("/login", routes.Auth.Login)
				sr.With(limit(middleware.ScopeTwoFactor, rl.TwoFactor)).Post("/2fa/verify", routes.Auth.VerifyTwoFactor)
				sr.With(limit(middleware.ScopeRefresh, rl.Refresh)).Post("/refresh", routes.Auth.RefreshToken)
			})

			r.Route("/signup", func(sr chi.Router) {
				sr.With(limit(middleware.ScopeSignup, rl.Signup)).Post("/", routes.Auth.Signup)
				sr.With(limit(middleware.ScopeOTPResend, rl.OTPResend)).Post("/otp/resend", routes.Auth.ResendOTP)
				sr.With(limit(middleware.ScopeOTPVerify, rl.OTPVerify)).Post("/verify", routes.Auth.VerifyPhone)
				sr.With(limit(middleware.ScopeFinalizeSignup, rl.FinalizeSignup)).Post("/complete", routes.Auth.FinalizeSignup)
			})
		}

		if routes.Tokens == nil {
			return
		}

		// Everything below requires a bearer access token.
		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Authenticate(base, routes.Tokens))

			if routes.Auth != nil {
				pr.Get("/users/me", routes.Auth.Me)
				pr.Post("/auth/logout", routes.Auth.Logout)
			}
			if routes.Tenancy != nil {
				pr.Get("/users/me/companies", routes.Tenancy.ListMyCompanies)
			}

			if routes.TwoFactor != nil {
				pr.Route("/users/me/2fa", func(tr chi.Router) {
					tr.With(limit(middleware.ScopeEnableTwoFA, rl.EnableTwoFA)).Post("/", routes.TwoFactor.Enable)
					tr.Delete("/", routes.TwoFactor.Disable)
					tr.Get("/backup-codes", routes.TwoFactor.BackupCodeStatus)
				})
			}

			if routes.Tenancy != nil {
				pr.Post("/companies", routes.Tenancy.CreateCompany)
			}

			if routes.Invitations != nil {
				pr.Post("/invitations/accept", routes.Invitations.Accept)
				pr.Get("/invitations/{invitationID}", routes.Invitations.Get)
				pr.Delete("/invitations/{invitationID}", routes.Invitations.Revoke)
				pr.Post("/invitations/{invitationID}/resend", routes.Invitations.Resend)
			}

			if routes.Gate == nil {
				return
			}

			pr.Get("/users/me/companies/{companyID}/permissions", routes.Gate.MyPermissions)

			pr.Route("/companies/{companyID}", func(cr chi.Router) {
				cr.Use(routes.Gate.RequireCompanyAdmin("companyID"))

				if routes.Tenancy != nil {
					cr.Patch("/status", routes.Tenancy.ChangeStatus)
					cr.Put("/parent", routes.Tenancy.SetParent)

					cr.Get("/roles", routes.Tenancy.ListRoles)
					cr.Post("/roles", routes.Tenancy.CreateRole)
					cr.Delete("/roles/{roleID}", routes.Tenancy.DeleteRole)
					cr.Post("/roles/{roleID}/permissions", routes.Tenancy.GrantPermission)
					cr.Delete("/roles/{roleID}/permissions/{permissionID}", routes.Tenancy.RevokePermission)

					cr.Post("/members", routes.Tenancy.AddMember)
					cr.Delete("/members/{membershipID}", routes.Tenancy.RemoveMember)
					cr.Post("/members/{membershipID}/roles", routes.Tenancy.AssignRole)
					cr.Delete("/role-assignments/{assignmentID}", routes.Tenancy.RemoveRoleAssignment)
				}

				if routes.Invitations != nil {
					cr.Post("/invitations", routes.Invitations.Create)
					cr.Get("/invitations", routes.Invitations.List)
				}
			})
		})
	})
}
