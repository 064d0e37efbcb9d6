package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ayo6706/payout-settlement/internal/api"
	"github.com/ayo6706/payout-settlement/internal/api/middleware"
	"github.com/ayo6706/payout-settlement/internal/config"
	"github.com/ayo6706/payout-settlement/internal/db"
	"github.com/ayo6706/payout-settlement/internal/idempotency"
	"github.com/ayo6706/payout-settlement/internal/lock"
	"github.com/ayo6706/payout-settlement/internal/network"
	"github.com/ayo6706/payout-settlement/internal/network/stripenet"
	"github.com/ayo6706/payout-settlement/internal/notify"
	"github.com/ayo6706/payout-settlement/internal/observability"
	"github.com/ayo6706/payout-settlement/internal/repository"
	"github.com/ayo6706/payout-settlement/internal/service"
	"github.com/ayo6706/payout-settlement/internal/worker"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	// cache stays a nil interface without Redis so that health and
	// idempotency skip it.
	var cache redis.Cmdable
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
		locker = lock.NewRedisLocker(redisClient, "payout-lock")
	} else {
		logger.Warn("REDIS_URL not set, using process-local locks")
	}

	publisher := newPublisher(cfg.AMQPURL)
	defer publisher.Close()
	notifier := notify.NewNotifier(publisher, notify.DefaultExchange)

	nw := newNetwork(cfg)
	store := service.NewQueryStore(repository.NewStore(pool))
	opts := service.Options{
		InstantFeePercent:         cfg.InstantFeePercent,
		LockTTL:                   cfg.LockTTL,
		ReversalConfirmationDelay: cfg.ReversalConfirmationDelay,
		StaleAfter:                cfg.StalePayoutAfter,
	}

	idemStore := idempotency.NewStore(cache, pool, cfg.IdempotencyTTL).WithEventTTL(cfg.EventDedupTTL)
	payoutSvc := service.NewPayoutService(store, nw, locker, notifier, opts)
	reconciler := service.NewPayoutEventReconciler(store, nw, locker, notifier, opts)
	webhookSvc := service.NewWebhookService(reconciler, idemStore, cfg.WebhookHMACKey, cfg.WebhookSkipSignature)
	reconciliationSvc := service.NewReconciliationService(store, opts)

	checkWorker := worker.NewReversalCheckWorker(reconciler).
		WithPollInterval(cfg.ReversalCheckInterval).
		WithBatchSize(cfg.ReversalCheckBatchSize)
	stopChecks := checkWorker.Run(ctx)
	logger.Info("reversal check worker started", zap.Stringer("worker", checkWorker))

	stopSweep, err := worker.NewReconciliationWorker(reconciliationSvc).
		WithSchedule(cfg.ReconciliationSchedule).
		Run(ctx)
	if err != nil {
		stopChecks()
		return err
	}

	router := api.NewRouter(cfg, logger, pool, cache, idemStore, payoutSvc, webhookSvc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("network", cfg.NetworkProvider))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopChecks()
			stopSweep()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopChecks()
	stopSweep()

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// newPublisher falls back to logging when RabbitMQ is absent or unreachable.
// Notifications are best effort and never block settlement.
func newPublisher(amqpURL string) notify.Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		zap.L().Warn("AMQP_URL not set, seller notifications will only be logged")
		return notify.LogPublisher{}
	}
	pub, err := notify.NewAMQPPublisher(amqpURL)
	if err != nil {
		zap.L().Warn("rabbitmq unavailable, seller notifications will only be logged", zap.Error(err))
		return notify.LogPublisher{}
	}
	return pub
}

func newNetwork(cfg *config.Config) network.Network {
	if cfg.NetworkProvider == config.NetworkStripe {
		return stripenet.New(cfg.NetworkAPIKey)
	}
	zap.L().Warn("using simulated payment network")
	return network.NewSimulated()
}
