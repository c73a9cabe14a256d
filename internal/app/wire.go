package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gamemart/ledger/internal/auth"
	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/guard"
	"github.com/gamemart/ledger/internal/handler"
	adminhandler "github.com/gamemart/ledger/internal/handler/admin"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/ledger"
	"github.com/gamemart/ledger/internal/notify"
	"github.com/gamemart/ledger/internal/provider"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/gamemart/ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyTTL      = 24 * time.Hour
	verifyWindow        = time.Minute
	gatewayFailures     = 5
	gatewayResetTimeout = 30 * time.Second
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Logger *slog.Logger
	Config *infra.Config
	Hub    *infra.WSHub

	// Redis is optional. When nil, rate limits and notification pushes
	// stay local to this instance.
	Redis  *redis.Client
	Fanout *notify.RedisFanout

	// Gateway overrides the HTTP gateway client, for tests.
	Gateway provider.Gateway
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) (chi.Router, error) {
	pool := deps.Pool
	jwtMgr := deps.JWTMgr
	logger := deps.Logger
	cfg := deps.Config

	fee, err := cfg.RegistrationFeeAmount()
	if err != nil {
		return nil, fmt.Errorf("registration fee: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository()
	walletTxRepo := repository.NewWalletTransactionRepository()
	orderRepo := repository.NewOrderRepository()
	paymentRepo := repository.NewPaymentRepository()
	redeemRepo := repository.NewRedeemRepository()
	storeRepo := repository.NewStoreRepository()
	productRepo := repository.NewProductRepository()
	notificationRepo := repository.NewNotificationRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Ledger engine
	ledgerEngine := ledger.NewEngine(userRepo, walletTxRepo, outboxRepo)

	// External gateway
	gateway := deps.Gateway
	if gateway == nil {
		breaker := guard.NewCircuitBreaker(gatewayFailures, gatewayResetTimeout)
		gateway = provider.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayWebhookSecret, cfg.GatewayTimeout, breaker)
	}

	// Notifications
	dispatcher := notify.NewDispatcher(pool, notificationRepo, userRepo, deps.Hub, deps.Fanout, logger)

	// Services
	redeemSvc := service.NewRedeemService(pool, redeemRepo, orderRepo, outboxRepo, ledgerEngine, dispatcher, cfg.RedeemCodeValidityDays, logger)
	orderSvc := service.NewOrderService(pool, orderRepo, userRepo, storeRepo, productRepo, paymentRepo, redeemRepo, outboxRepo, ledgerEngine, dispatcher, logger)
	walletSvc := service.NewWalletService(pool, userRepo, walletTxRepo, ledgerEngine, dispatcher, logger)
	resellerSvc := service.NewResellerService(pool, storeRepo, logger)
	paymentSvc := service.NewPaymentService(pool, gateway, paymentRepo, orderRepo, userRepo, storeRepo, redeemRepo, outboxRepo,
		ledgerEngine, redeemSvc, dispatcher, service.PaymentConfig{
			Currency:        cfg.Currency,
			RegistrationFee: fee,
			PublicBaseURL:   cfg.PublicBaseURL,
			FrontendBaseURL: cfg.FrontendBaseURL,
		}, logger)

	// Guards
	idempotency := guard.NewIdempotencyGuard(idempotencyTTL)
	verifyLimit := guard.NewLimiter(deps.Redis, "ledger:verify", cfg.VerifyRateLimit, verifyWindow, logger)

	// Handlers
	walletHandler := handler.NewWalletHandler(walletSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	resellerHandler := handler.NewResellerHandler(resellerSvc)
	redeemHandler := handler.NewRedeemHandler(redeemSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, idempotency, verifyLimit, logger)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, logger)
	notificationHandler := handler.NewNotificationHandler(dispatcher)
	wsHandler := handler.NewWSHandler(deps.Hub)

	// Admin handlers
	orderAdmin := adminhandler.NewOrderAdminHandler(orderSvc)
	redeemAdmin := adminhandler.NewRedeemAdminHandler(redeemSvc)
	userAdmin := adminhandler.NewUserAdminHandler(walletSvc)
	paymentAdmin := adminhandler.NewPaymentAdminHandler(paymentSvc)

	// Health checks
	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return infra.HealthCheck(ctx, pool) },
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.Metrics)
	r.Use(handler.CORSWithOrigins(cfg.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	// Public
	r.Get("/health", handler.HealthHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	// Raw body required for signature verification
	r.Post("/webhooks/gateway", webhookHandler.HandleGatewayWebhook)

	r.Post("/resellers/register", paymentHandler.RegisterReseller)

	r.With(auth.AuthenticateQuery(jwtMgr)).Get("/ws", wsHandler.Serve)

	// Registration payments are polled before the reseller has an account.
	r.With(auth.OptionalAuthenticate(jwtMgr)).Get("/payments/{paymentId}/verify", paymentHandler.Verify)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(jwtMgr))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", walletHandler.GetBalance)
			r.Get("/transactions", walletHandler.GetTransactions)
		})

		r.Post("/redeem", redeemHandler.Redeem)
		r.Get("/redeem-cards", redeemHandler.ListCards)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{id}", orderHandler.GetOrder)
		})

		r.Post("/payments", paymentHandler.Initialize)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Post("/{id}/read", notificationHandler.MarkRead)
		})

		// Reseller
		r.Route("/reseller", func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleReseller))

			r.Get("/orders", orderHandler.ListResellerOrders)
			r.Post("/orders/bulk", orderHandler.BulkProcess)
			r.Post("/orders/{id}/process", orderHandler.ProcessOrder)
			r.Put("/products/{productId}/markup", resellerHandler.SetMarkup)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleAdmin))

			r.Patch("/orders/{id}/status", orderAdmin.UpdateStatus)
			r.Post("/orders/{id}/refund", orderAdmin.Refund)

			r.Route("/redeem-codes", func(r chi.Router) {
				r.Post("/", redeemAdmin.GenerateCodes)
				r.Get("/", redeemAdmin.ListCodes)
				r.Patch("/{id}", redeemAdmin.UpdateCodeStatus)
				r.Delete("/{id}", redeemAdmin.DeleteCode)
			})

			r.Route("/redeem-cards", func(r chi.Router) {
				r.Post("/", redeemAdmin.CreateCard)
				r.Get("/", redeemAdmin.ListCards)
				r.Patch("/{id}", redeemAdmin.UpdateCardStatus)
				r.Delete("/{id}", redeemAdmin.DeleteCard)
			})

			r.Route("/users/{id}", func(r chi.Router) {
				r.Post("/wallet/credit", userAdmin.CreditWallet)
				r.Get("/wallet/audit", userAdmin.AuditWallet)
				r.Patch("/status", userAdmin.UpdateStatus)
			})

			r.Get("/payments/{paymentId}", paymentAdmin.GetPayment)
		})
	})

	return r, nil
}
