package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsadrianapaiva/amr-app-sub001/config"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/cache"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/email"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/kafka"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/logger"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/notify"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/availability"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const sweepLock = "expire-holds"

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log)

	loc, err := cfg.Location()
	if err != nil {
		log.WithError(err).Fatal("load timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.AvailabilityTTL())
	defer redisCache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic)
	defer producer.Close()

	gw := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey: cfg.Payments.SecretKey,
		Currency:  cfg.Booking.Currency,
		Timeout:   cfg.GatewayTimeout(),
	})

	bookingRepo := repository.NewBookingRepository(pool)
	availabilityService := availability.NewService(bookingRepo, loc, log, availability.WithCache(redisCache))
	bookingService := booking.NewBookingService(
		bookingRepo,
		repository.NewAssetRepository(pool),
		availabilityService,
		gw,
		loc,
		cfg.HoldTTL(),
		log,
		booking.WithProducer(producer),
	)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Worker.ExpirationSweep, func() {
		expireHolds(ctx, redisCache, bookingService, log)
	}); err != nil {
		log.WithError(err).Fatal("schedule hold sweep")
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, log)
	defer consumer.Close()

	dispatcher := notify.NewDispatcher(bookingRepo, email.NewSender(log), cfg.Worker.OpsEmail, log)

	go func() {
		if err := consumer.Consume(ctx, dispatcher.HandleEvent); err != nil {
			log.WithError(err).Error("notification consumer stopped")
		}
	}()

	log.Info("worker started")
	<-ctx.Done()
	log.Info("worker stopped")
}

// expireHolds runs one sweep unless another worker instance holds the lock.
func expireHolds(ctx context.Context, locks *cache.RedisCache, svc booking.BookingUseCase, log logrus.FieldLogger) {
	acquired, err := locks.AcquireLock(ctx, sweepLock, time.Minute)
	if err != nil {
		log.WithError(err).Warn("hold sweep lock unavailable")
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := locks.ReleaseLock(ctx, sweepLock); err != nil {
			log.WithError(err).Warn("failed to release hold sweep lock")
		}
	}()

	if _, err := svc.ExpireHolds(ctx); err != nil {
		log.WithError(err).Error("hold sweep failed")
	}
}
