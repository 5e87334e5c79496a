package analytics

import (
	"context"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// EventCountsData represents raw per-event booking counts from the database
type EventCountsData struct {
	EventID   string `bun:"event_id"`
	Title     string `bun:"title"`
	Capacity  int    `bun:"capacity"`
	Booked    int    `bun:"booked"`
	Cancelled int    `bun:"cancelled"`
}

// GetEventCounts counts booked and cancelled bookings per event, ordered by
// event date. An empty ids slice means every event.
func (db *DB) GetEventCounts(ctx context.Context, ids []string) ([]EventCountsData, error) {
	var rows []EventCountsData
	q := db.bun.NewSelect().
		ColumnExpr("e.id AS event_id").
		ColumnExpr("e.title").
		ColumnExpr("e.capacity").
		ColumnExpr("COALESCE(SUM(CASE WHEN b.status = 'booked' THEN 1 ELSE 0 END), 0) AS booked").
		ColumnExpr("COALESCE(SUM(CASE WHEN b.status = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled").
		TableExpr("events AS e").
		Join("LEFT JOIN bookings AS b ON b.event_id = e.id")

	if len(ids) > 0 {
		q = q.Where("e.id IN (?)", bun.In(ids))
	}

	err := q.
		GroupExpr("e.id, e.title, e.capacity, e.starts_at").
		OrderExpr("e.starts_at ASC, e.id ASC").
		Scan(ctx, &rows)

	return rows, err
}

// DailyBookingsData represents bookings created per calendar day
type DailyBookingsData struct {
	Day       string `bun:"day"`
	Booked    int    `bun:"booked"`
	Cancelled int    `bun:"cancelled"`
}

// GetDailyBookingsByEventID groups an event's bookings by creation day
func (db *DB) GetDailyBookingsByEventID(ctx context.Context, eventID string) ([]DailyBookingsData, error) {
	var daily []DailyBookingsData
	err := db.bun.NewRaw(`
		SELECT
			CAST(DATE(b.created_at) AS TEXT) AS day,
			SUM(CASE WHEN b.status = 'booked' THEN 1 ELSE 0 END) AS booked,
			SUM(CASE WHEN b.status = 'cancelled' THEN 1 ELSE 0 END) AS cancelled
		FROM
			bookings b
		WHERE
			b.event_id = ?
		GROUP BY
			DATE(b.created_at)
		ORDER BY
			DATE(b.created_at)
	`, eventID).Scan(ctx, &daily)

	return daily, err
}
