package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/api/router"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/availability"
	appconfig "github.com/hanyusok/calldoc-reservation-sub000/internal/config"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/ledger"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/meeting"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/notify"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/observability/metrics"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/payments"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/scheduling"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

func main() {
	// A .env file is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reservation API server", "env", cfg.Env, "port", cfg.Port)

	practitionerID, err := uuid.Parse(cfg.PractitionerID)
	if err != nil {
		logger.Error("PRACTITIONER_ID must be a valid uuid", "error", err)
		os.Exit(1)
	}
	loc, err := time.LoadLocation(cfg.PractitionerTZ)
	if err != nil {
		logger.Error("invalid PRACTITIONER_TZ", "tz", cfg.PractitionerTZ, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, confirm lock and velocity checks disabled", "error", err)
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coreMetrics := metrics.NewCoreMetrics(registry)

	// Availability.
	workStart, err := availability.ParseClock(cfg.DefaultWorkdayStart)
	if err != nil {
		logger.Error("invalid DEFAULT_WORKDAY_START", "error", err)
		os.Exit(1)
	}
	workEnd, err := availability.ParseClock(cfg.DefaultWorkdayEnd)
	if err != nil {
		logger.Error("invalid DEFAULT_WORKDAY_END", "error", err)
		os.Exit(1)
	}
	defaultWeek := availability.DefaultWeekly(cfg.DefaultWeekDaysOff, workStart, workEnd)
	availabilityRepo := availability.NewRepository(pool)
	schedulingRepo := scheduling.NewRepository(pool)
	availabilitySvc := availability.NewService(availabilityRepo, schedulingRepo, availability.ServiceConfig{
		PractitionerID: practitionerID,
		Location:       loc,
		Granularity:    cfg.SlotGranularity,
		LeadTime:       cfg.BookingLeadTime,
		DefaultWeek:    defaultWeek,
	}, logger)

	// Notifications.
	outboxStore := notify.NewOutboxStore(pool)
	notifySvc := notify.NewService(outboxStore, logger)
	emailSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	var deliverer *notify.Deliverer
	if emailSender != nil {
		handler := notify.NewEmailHandler(emailSender, outboxStore)
		deliverer = notify.NewDeliverer(outboxStore, handler, logger)
		go deliverer.Start(ctx)
	}

	// Payments.
	paymentsRepo := payments.NewRepository(pool)
	gateway := payments.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, logger).
		WithTimeout(cfg.GatewayTimeout)
	paymentsSvc := payments.NewService(paymentsRepo, gateway, logger).
		WithGatewayTimeout(cfg.GatewayTimeout).
		WithRooms(roomProvider(meeting.NewClient(cfg.MeetingBaseURL, cfg.MeetingAPIKey, logger))).
		WithNotifier(notifySvc).
		WithMetrics(coreMetrics)
	if redisClient != nil {
		paymentsSvc = paymentsSvc.
			WithVelocity(payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
				MaxAttempts: cfg.VelocityMaxAttempts,
				Window:      cfg.VelocityWindow,
			}, logger)).
			WithLocker(payments.NewOrderLocker(redisClient))
	}

	// Scheduling.
	schedulingSvc := scheduling.NewService(schedulingRepo, availabilitySvc, practitionerID, loc, logger).
		WithRefunder(paymentsSvc).
		WithNotifier(notifySvc).
		WithMetrics(coreMetrics)

	ledgerRepo := ledger.NewRepository(pool)

	r := router.New(&router.Config{
		Logger:             logger,
		Availability:       availability.NewHandler(availabilitySvc, logger),
		Scheduling:         scheduling.NewHandler(schedulingSvc, logger),
		Payments:           payments.NewHandler(paymentsSvc, logger),
		Ledger:             ledger.NewHandler(ledgerRepo, logger),
		Webhook:            payments.NewWebhookHandler(paymentsSvc, cfg.GatewayWebhookSecret, logger),
		JWTSecret:          cfg.JWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSec:    float64(cfg.RateLimitPerSec),
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// roomProvider keeps a nil *meeting.Client from becoming a non-nil interface.
func roomProvider(c *meeting.Client) payments.RoomProvider {
	if c == nil {
		return nil
	}
	return c
}
