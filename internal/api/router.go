package api

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/api/handler"
	"github.com/ayo6706/payout-settlement/internal/api/middleware"
	"github.com/ayo6706/payout-settlement/internal/api/spec"
	"github.com/ayo6706/payout-settlement/internal/config"
)

const adminRole = "admin"

// Router wires HTTP handlers to the payout services.
type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	redis     redis.Cmdable
	idem      middleware.IdempotencyStore
	payoutSvc handler.PayoutService
	webhooks  handler.WebhookProcessor
}

// NewRouter creates a Router. redis and idem may be nil.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db handler.Pinger,
	redis redis.Cmdable,
	idem middleware.IdempotencyStore,
	payoutSvc handler.PayoutService,
	webhooks handler.WebhookProcessor,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redis,
		idem:      idem,
		payoutSvc: payoutSvc,
		webhooks:  webhooks,
	}
}

// Routes builds the chi router.
func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	payoutHandler := handler.NewPayoutHandler(api.payoutSvc)
	webhookHandler := handler.NewWebhookHandler(api.webhooks)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Post("/v1/webhooks/network", webhookHandler.HandleNetworkWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.RequireRole(adminRole))
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.With(middleware.IdempotencyMiddleware(api.idem, api.logger)).
			Post("/v1/sellers/{id}/payouts", payoutHandler.SettleSeller)
		r.Get("/v1/sellers/{id}/payouts", payoutHandler.ListSellerPayouts)

		r.Get("/v1/payouts/reviews", payoutHandler.ListReviews)
		r.Post("/v1/payouts/reviews/{id}/resolve", payoutHandler.ResolveReview)
		r.Get("/v1/payouts/{id}", payoutHandler.GetPayout)
	})

	return r
}
