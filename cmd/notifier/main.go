package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/users"
	usersdb "ms-booking/internal/users/db"
)

// notifier consumes booking notifications from Kafka and delivers them by mail.
func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(logger.Options{Service: "booking-notifier", Dir: cfg.Log.Dir, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	if !cfg.Kafka.Enabled {
		log.Fatal("CONFIG", "KAFKA_ENABLED must be true for the notifier")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	userService := users.NewUserService(&usersdb.DB{Bun: bunDB}, nil, log)
	worker := &notify.Worker{
		Mailer:  notify.NewMailer(cfg.Email, log),
		Resolve: userService.RecipientEmail,
		Logger:  log,
	}

	topics := []string{cfg.Kafka.Topics.BookingConfirmed, cfg.Kafka.Topics.BookingCancelled}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topics, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	log.Info("APP", fmt.Sprintf("Notifier consuming %v as group %s", topics, cfg.Kafka.GroupID))
	if err := consumer.Start(ctx, worker.Handle); err != nil {
		log.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
	log.Info("APP", "Notifier shutdown complete")
}
