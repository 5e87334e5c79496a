package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// ActiveBookingIndex backs the one-active-booking-per-user-and-event rule.
const ActiveBookingIndex = "bookings_active_user_event_uidx"

var schemaModels = []interface{}{
	(*models.User)(nil),
	(*models.Event)(nil),
	(*models.Booking)(nil),
}

// CreateSchema builds the tables and indexes from the bun models. The SQL
// migrations under migrations/ describe the same schema for PostgreSQL.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Unique().
		Index(ActiveBookingIndex).
		Column("user_id", "event_id").
		Where("status = 'booked'").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create active booking index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_event_status_idx").
		Column("event_id", "status").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create booking event index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.Event)(nil)).
		Index("events_starts_at_idx").
		Column("starts_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create event date index: %w", err)
	}
	return nil
}

// DropSchema removes every table in reverse dependency order.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for i := len(schemaModels) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(schemaModels[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", schemaModels[i], err)
		}
	}
	return nil
}
