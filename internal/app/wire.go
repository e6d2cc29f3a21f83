package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorloop/platform/internal/auth"
	"github.com/tutorloop/platform/internal/guard"
	"github.com/tutorloop/platform/internal/handler"
	adminhandler "github.com/tutorloop/platform/internal/handler/admin"
	"github.com/tutorloop/platform/internal/ledger"
	"github.com/tutorloop/platform/internal/provider"
	"github.com/tutorloop/platform/internal/repository"
	"github.com/tutorloop/platform/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Logger *slog.Logger
	// External provider config
	StripeSecretKey     string
	StripeWebhookSecret string
	NotifierURL         string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Repositories
	ledgerRepo := repository.NewLedgerRepository()
	subscriptionRepo := repository.NewSubscriptionRepository()
	planRepo := repository.NewPlanRepository()
	classRepo := repository.NewClassRepository()
	renewalRepo := repository.NewRenewalRepository()
	outboxRepo := repository.NewOutboxRepository()
	authUserRepo := repository.NewAuthUserRepository()

	// Ledger engine
	ledgerEngine := ledger.NewEngine(ledgerRepo, subscriptionRepo, outboxRepo)

	// External providers
	stripeProvider := provider.NewStripeProvider(deps.StripeSecretKey, deps.StripeWebhookSecret)
	notifier := provider.NewNotifier(deps.NotifierURL)
	stripeBreaker := guard.NewCircuitBreaker(5, time.Minute)

	// Services
	authSvc := service.NewAuthService(pool, authUserRepo, outboxRepo, jwtMgr, logger)
	creditSvc := service.NewCreditService(pool, ledgerEngine, ledgerRepo, subscriptionRepo, renewalRepo, outboxRepo, logger)
	completionSvc := service.NewCompletionService(pool, classRepo, creditSvc, logger)
	allocationSvc := service.NewAllocationService(pool, authUserRepo, planRepo, stripeProvider, ledgerEngine, logger)
	renewalSvc := service.NewRenewalService(pool, ledgerEngine, renewalRepo, subscriptionRepo, outboxRepo, stripeProvider, notifier, stripeBreaker, logger)
	webhookSvc := service.NewWebhookService(pool, stripeProvider, planRepo, ledgerEngine, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	creditHandler := handler.NewCreditHandler(creditSvc)
	completionHandler := handler.NewCompletionHandler(completionSvc)
	renewalHandler := handler.NewRenewalHandler(renewalSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc, logger)

	// Admin handlers
	allocationAdmin := adminhandler.NewAllocationAdminHandler(allocationSvc)
	studentAdmin := adminhandler.NewStudentAdminHandler(pool)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(pool))

	// Webhooks (no auth, raw body required for signature verification)
	r.Post("/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	// Auth routes (no auth, rate limited per client IP)
	loginLimiter := guard.NewRateLimiter(10, time.Minute)
	r.Route("/auth", func(r chi.Router) {
		r.Use(handler.RateLimit(loginLimiter))
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Student-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateStudent(jwtMgr))

		r.Route("/credits", func(r chi.Router) {
			r.Get("/balance", creditHandler.GetBalance)
			r.Get("/ledger", creditHandler.GetLedger)
		})

		r.Route("/renewal-settings", func(r chi.Router) {
			r.Get("/", renewalHandler.GetSettings)
			r.Put("/", renewalHandler.UpdateSettings)
		})
	})

	// Tutor and admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateRealms(jwtMgr, auth.RealmTutor, auth.RealmAdmin))

		r.Post("/credits/deduct", creditHandler.Deduct)
		r.Post("/credits/restore", creditHandler.Restore)
		r.Post("/classes/{id}/complete", completionHandler.Complete)
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Post("/allocations", allocationAdmin.Allocate)
		r.Route("/students", func(r chi.Router) {
			r.Get("/", studentAdmin.ListStudents)
			r.Get("/{id}/ledger", studentAdmin.GetStudentLedger)
		})
	})

	return r
}
