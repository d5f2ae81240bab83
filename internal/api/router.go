package api

import (
	"net/http"

	"github.com/ayo6706/kenyabank/internal/api/handler"
	"github.com/ayo6706/kenyabank/internal/api/middleware"
	"github.com/ayo6706/kenyabank/internal/api/spec"
	"github.com/ayo6706/kenyabank/internal/auth"
	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/idempotency"
	"github.com/ayo6706/kenyabank/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services are the application services the HTTP layer calls into.
type Services struct {
	Auth        *service.AuthService
	Accounts    *service.AccountService
	Admin       *service.AdminService
	Transfers   *service.TransferService
	Deposits    *service.DepositService
	Callbacks   *service.CallbackService
	Health      *service.HealthService
	Tokens      *auth.TokenManager
	Idempotency *idempotency.Store
}

// Options tune the outer HTTP surface.
type Options struct {
	CORSOrigins        []string
	PublicRateLimitRPS int
	AuthRateLimitRPS   int
}

type Router struct {
	svc    Services
	opts   Options
	logger *zap.Logger
}

func NewRouter(svc Services, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PublicRateLimitRPS <= 0 {
		opts.PublicRateLimitRPS = 10
	}
	if opts.AuthRateLimitRPS <= 0 {
		opts.AuthRateLimitRPS = 100
	}
	return &Router{svc: svc, opts: opts, logger: logger}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(api.opts.CORSOrigins))

	authHandler := handler.NewAuthHandler(api.svc.Auth)
	accountHandler := handler.NewAccountHandler(api.svc.Accounts)
	transferHandler := handler.NewTransferHandler(api.svc.Transfers, api.svc.Accounts)
	mpesaHandler := handler.NewMpesaHandler(api.svc.Deposits, api.svc.Callbacks)
	adminHandler := handler.NewAdminHandler(api.svc.Admin)
	healthHandler := handler.NewHealthHandler(api.svc.Health)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	idem := middleware.IdempotencyMiddleware(api.svc.Idempotency, api.logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		// The provider retries on its own schedule; it is never rate limited.
		r.Post("/mpesa/callback", mpesaHandler.Callback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.PublicRateLimiter(api.opts.PublicRateLimitRPS))
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(api.svc.Tokens, api.svc.Auth))
			r.Use(middleware.AuthRateLimiter(api.opts.AuthRateLimitRPS))

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)

			r.Get("/account", accountHandler.Balance)
			r.Get("/dashboard/stats", accountHandler.Stats)

			r.With(idem).Post("/transactions/transfer", transferHandler.Transfer)
			r.Get("/transactions", transferHandler.History)

			r.With(idem).Post("/mpesa/deposit", mpesaHandler.Deposit)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))
				r.Get("/users", adminHandler.Users)
				r.Get("/transactions", adminHandler.Transactions)
				r.Get("/dashboard", adminHandler.Dashboard)
				r.Patch("/accounts/{number}/status", adminHandler.SetAccountStatus)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "request/not-found", "route not found")
	})
	return r
}
