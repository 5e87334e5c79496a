package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/bookings"
	"ms-booking/internal/bookings/booking_api"
	bookingdb "ms-booking/internal/bookings/db"
	redislock "ms-booking/internal/bookings/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/events"
	eventdb "ms-booking/internal/events/db"
	"ms-booking/internal/events/event_api"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/server"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/users"
	usersdb "ms-booking/internal/users/db"
	"ms-booking/internal/users/user_api"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(logger.Options{Service: "booking-service", Dir: cfg.Log.Dir, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx := context.Background()
	log.Info("APP", "Starting Booking Service initialization")

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	resolver, tokens := buildAuth(ctx, cfg.Auth, log)

	var issuer users.TokenIssuer
	if tokens != nil {
		issuer = tokens
	}
	userService := users.NewUserService(&usersdb.DB{Bun: bunDB}, issuer, log)

	sink, producer := buildSink(ctx, cfg, userService.RecipientEmail, log)
	emitter := sse.NewAvailabilityEmitter()
	// stream subscribers are served before SMTP or Kafka
	dispatcher := notify.NewAsyncDispatcher(notify.FanOut{emitter, sink}, log,
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithWorkers(cfg.Notify.Workers),
	)

	var lock bookings.EventLocker
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = connectRedis(ctx, cfg.Redis, log)
		if redisClient != nil {
			lock = redislock.NewEventLock(redisClient, log, cfg.Redis.LockTTL)
		}
	}

	bookingService := bookings.NewBookingService(&bookingdb.DB{Bun: bunDB}, lock, dispatcher, log)
	eventService := events.NewEventService(&eventdb.DB{Bun: bunDB}, log)
	analyticsService := analytics.NewService(analytics.NewDB(bunDB))

	qrSecret := cfg.QR.SecretKey
	if qrSecret == "" {
		log.Warn("CONFIG", "QR_SECRET_KEY not set, falling back to JWT_SECRET for booking passes")
		qrSecret = cfg.Auth.JWTSecret
	}

	log.Info("HTTP", "Setting up router and middleware")
	opts := server.Options{
		Resolver:       resolver,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         healthCheck(bunDB, redisClient),
	}
	if cfg.Auth.OIDCIssuer != "" {
		opts.Provision = userService.EnsureSubject
	}
	router := server.NewRouter(opts, server.Handlers{
		Users:     &user_api.Handler{Service: userService, Logger: log},
		Events:    &event_api.Handler{Service: eventService, Logger: log},
		Bookings:  &booking_api.Handler{Service: bookingService, Passes: qr.NewGenerator(qrSecret), Logger: log},
		Analytics: analytics_api.NewHandler(analyticsService, log),
		Stream:    sse.NewHandler(emitter, bookingService.Availability, log),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	if err := dispatcher.Close(ctxShutdown); err != nil {
		log.Warn("NOTIFY", fmt.Sprintf("Dispatcher did not drain: %v", err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Info("APP", "Booking Service shutdown complete")
}

// buildAuth picks the token resolver. Local JWTs are always issued when a
// secret is configured; an OIDC issuer takes over verification.
func buildAuth(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Resolver, *auth.JWTManager) {
	var tokens *auth.JWTManager
	if cfg.JWTSecret != "" {
		tokens = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	}

	if cfg.OIDCIssuer == "" {
		log.Info("AUTH", "Using local HS256 tokens")
		return tokens, tokens
	}

	oidcResolver, err := auth.NewOIDCResolver(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.OIDCIssuer, err))
	}
	log.Info("AUTH", fmt.Sprintf("Verifying tokens against OIDC issuer %s", cfg.OIDCIssuer))
	if tokens == nil {
		log.Warn("AUTH", "JWT_SECRET not set, register/login will not issue tokens")
	}
	return oidcResolver, tokens
}

// buildSink returns the Kafka sink when enabled, otherwise direct mail.
// With Kafka the notifier resolves recipients on its side.
func buildSink(ctx context.Context, cfg *config.Config, resolve notify.RecipientResolver, log *logger.Logger) (notify.Sink, *kafka.Producer) {
	if !cfg.Kafka.Enabled {
		log.Info("NOTIFY", "Kafka disabled, delivering notifications by mail directly")
		return &notify.MailSink{Mailer: notify.NewMailer(cfg.Email, log), Resolve: resolve}, nil
	}

	topics := []string{cfg.Kafka.Topics.BookingConfirmed, cfg.Kafka.Topics.BookingCancelled}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return &notify.KafkaSink{
		Publisher: producer,
		Topics: map[notify.Kind]string{
			notify.KindBookingConfirmed: cfg.Kafka.Topics.BookingConfirmed,
			notify.KindBookingCancelled: cfg.Kafka.Topics.BookingCancelled,
		},
	}, producer
}

// connectRedis returns nil when Redis is unreachable; bookings then rely on
// the database guard alone.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("REDIS", fmt.Sprintf("Redis connection error, event lock disabled: %v", err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func healthCheck(db *bun.DB, rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
