package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/api"
	"github.com/rayyanshah04/FlexPay/internal/config"
	"github.com/rayyanshah04/FlexPay/internal/logging"
	"github.com/rayyanshah04/FlexPay/internal/notify"
	"github.com/rayyanshah04/FlexPay/internal/ratelimit"
	"github.com/rayyanshah04/FlexPay/internal/reference"
	"github.com/rayyanshah04/FlexPay/internal/service"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	log := logging.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := store.Open(ctx, cfg.DBSource, int32(cfg.DBMaxConns))
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to database")
	}
	defer dbPool.Close()

	if cfg.MigrateOnStart {
		migrator, err := store.NewMigrator(dbPool, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to prepare migrations")
		}
		if err := migrator.Up(); err != nil {
			log.WithError(err).Fatal("Failed to apply migrations")
		}
		if err := migrator.Close(); err != nil {
			log.WithError(err).Warn("Failed to close migrator")
		}
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Notification broker required in production")
	}
	defer notifier.Close()

	var limiter api.RateLimiter
	if redisClient := newRedisClient(ctx, cfg, log); redisClient != nil {
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	repo := store.NewPostgresRepository(dbPool)
	refs := reference.NewGenerator(repo,
		reference.WithMaxAttempts(cfg.ReferenceMaxAttempts),
		reference.WithCollisionHook(service.ReferenceCollision),
	)
	dispatcher := service.NewDispatcher(notifier, cfg.NotifyTimeout(), log)

	handler := api.NewHandler(api.Deps{
		Accounts:             service.NewAccountService(repo, log),
		Transfers:            service.NewTransferService(repo, refs, dispatcher, log, service.WithLocation(cfg.Location)),
		Redemptions:          service.NewRedemptionService(repo, refs, log, service.WithLocation(cfg.Location)),
		History:              service.NewHistoryService(repo, service.WithLocation(cfg.Location)),
		Limiter:              limiter,
		Store:                repo,
		RedeemLimitPerMinute: cfg.RedeemRateLimitPerMinute,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "environment": cfg.Env, "timezone": cfg.Location.String()}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	dispatcher.Drain()
}

// newNotifier publishes to RabbitMQ when configured. Outside production it
// falls back to logging when the broker is missing or unreachable.
func newNotifier(cfg *config.Config, log logrus.FieldLogger) (notify.Notifier, error) {
	if cfg.RabbitMQURL == "" {
		if cfg.IsProduction() {
			return nil, errors.New("RABBITMQ_URL is not set")
		}
		log.Warn("RABBITMQ_URL not set; notifications will only be logged")
		return notify.NewLogNotifier(log), nil
	}
	publisher, err := notify.NewRabbitPublisher(cfg.RabbitMQURL, cfg.NotificationExchange, cfg.NotificationRoutingKey, log)
	if err != nil {
		if cfg.IsProduction() {
			return nil, err
		}
		log.WithError(err).Warn("RabbitMQ unavailable; notifications will only be logged")
		return notify.NewLogNotifier(log), nil
	}
	log.WithField("exchange", cfg.NotificationExchange).Info("RabbitMQ notification publisher connected")
	return publisher, nil
}

// newRedisClient returns nil when rate limiting is not configured or Redis is unreachable.
func newRedisClient(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set; coupon rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("Invalid REDIS_URL; coupon rate limiting disabled")
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("Redis ping failed; coupon rate limiting disabled")
		client.Close()
		return nil
	}
	log.Info("Redis connected")
	return client
}
