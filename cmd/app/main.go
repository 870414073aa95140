package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/itsadrianapaiva/amr-app-sub001/api"
	"github.com/itsadrianapaiva/amr-app-sub001/config"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/bootstrap"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/cache"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/gateway"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/kafka"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/logger"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/availability"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/booking"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/service/payments"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

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
		SecretKey:         cfg.Payments.SecretKey,
		Currency:          cfg.Booking.Currency,
		SuccessURL:        cfg.Payments.CheckoutSuccessURL,
		CancelURL:         cfg.Payments.CheckoutCancelURL,
		BalanceSuccessURL: cfg.Payments.BalanceSuccessURL,
		BalanceCancelURL:  cfg.Payments.BalanceCancelURL,
		Timeout:           cfg.GatewayTimeout(),
	})

	bookingRepo := repository.NewBookingRepository(pool)
	assetRepo := repository.NewAssetRepository(pool)

	availabilityService := availability.NewService(bookingRepo, loc, log, availability.WithCache(redisCache))
	bookingService := booking.NewBookingService(
		bookingRepo,
		assetRepo,
		availabilityService,
		gw,
		loc,
		cfg.HoldTTL(),
		log,
		booking.WithProducer(producer),
		booking.WithPricing(cfg.Booking.VATPercent, cfg.Booking.DiscountPercentage, cfg.Booking.AddOnPricesCents),
	)
	processor := payments.NewProcessor(bookingRepo, gw, availabilityService, log, payments.WithPublisher(producer))
	authorizer := payments.NewBalanceAuthorizer(bookingRepo, gw, log)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Handlers{
		Bookings:     api.NewBookingHandler(bookingService, authorizer, log),
		Availability: api.NewAvailabilityHandler(availabilityService, log),
		Webhooks:     api.NewWebhookHandler(gateway.NewVerifier(cfg.Payments.WebhookSecret), processor, cfg.WebhookTimeout(), log),
	}, cfg.HTTP.AllowedOrigins, log)

	if err := bootstrap.Run(ctx, cfg.HTTP.Address, router, log); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
