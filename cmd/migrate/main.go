package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-booking/internal/auth"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/events"
	eventdb "ms-booking/internal/events/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/users"
	usersdb "ms-booking/internal/users/db"
)

func main() {
	action := flag.String("action", "up", "up | down | goto | version | reset | create | drop")
	target := flag.Uint("version", 0, "target version for -action goto")
	seed := flag.Bool("seed", false, "create the admin user and sample events after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(logger.Options{Service: "booking-migrate", Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx := context.Background()
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	runner := migrations.NewRunner(db, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)

	if err := run(ctx, *action, *target, db, runner, log); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if *seed {
		if err := seedData(ctx, db, log); err != nil {
			log.Fatal("SEED", err.Error())
		}
	}

	if err := runner.Close(); err != nil {
		log.Warn("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", "Done.")
}

func run(ctx context.Context, action string, target uint, db *bun.DB, runner *migrations.Runner, log *logger.Logger) error {
	switch action {
	case "up":
		return runner.MigrateUp()
	case "down":
		return runner.MigrateDown()
	case "goto":
		return runner.MigrateTo(target)
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		log.Info("MIGRATE", fmt.Sprintf("Schema version %d (dirty=%t)", version, dirty))
		return nil
	case "reset":
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		return runner.MigrateUp()
	case "create":
		// bun models only; for scratch databases without migration files
		log.Info("MIGRATE", "Creating tables from models...")
		return database.CreateSchema(ctx, db)
	case "drop":
		log.Info("MIGRATE", "Dropping tables...")
		return database.DropSchema(ctx, db)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// seedData ensures an admin account (ADMIN_EMAIL / ADMIN_PASSWORD) and, on an
// empty events table, a few upcoming sample events.
func seedData(ctx context.Context, db *bun.DB, log *logger.Logger) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		email, password = "admin@example.com", "admin123"
		log.Warn("SEED", "ADMIN_EMAIL/ADMIN_PASSWORD not set, using development defaults")
	}

	userService := users.NewUserService(&usersdb.DB{Bun: db}, nil, log)
	admin, err := userService.EnsureAdmin(ctx, "admin", email, password)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info("SEED", fmt.Sprintf("Admin user %s (%s)", admin.ID, admin.Email))
	if ok, err := auth.CheckPassword(admin.PasswordHash, password); err == nil && !ok {
		log.Warn("SEED", "Existing admin password differs from ADMIN_PASSWORD")
	}

	count, err := db.NewSelect().Model((*models.Event)(nil)).Count(ctx)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	if count > 0 {
		log.Info("SEED", fmt.Sprintf("%d events present, skipping sample events", count))
		return nil
	}

	eventService := events.NewEventService(&eventdb.DB{Bun: db}, log)
	samples := []struct {
		title, description, location string
		days, capacity               int
		price                        float64
	}{
		{"Summer Fest", "Annual summer music festival.", "Central Park", 30, 500, 49.0},
		{"Go Meetup", "Talks on concurrency and tooling.", "Tech Hub", 7, 40, 5.0},
		{"Jazz Night", "An evening of live jazz.", "Blue Room", 14, 80, 25.0},
	}
	for _, s := range samples {
		date := models.FlexTime{Time: time.Now().UTC().AddDate(0, 0, s.days).Truncate(time.Hour)}
		_, err := eventService.CreateEvent(ctx, models.EventInput{
			Title:       &s.title,
			Description: &s.description,
			Location:    &s.location,
			Date:        &date,
			Capacity:    &s.capacity,
			Price:       &s.price,
		})
		if err != nil {
			return fmt.Errorf("seed event %q: %w", s.title, err)
		}
	}
	log.Info("SEED", fmt.Sprintf("Created %d sample events", len(samples)))
	return nil
}
