package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

// DB is the booking record store. It is the only code that writes booking
// status or the per-event booked_count.
type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select event %s: %w", id, err)
	}
	return &event, nil
}

// CountActiveBookings counts booked rows for the event.
func (d *DB) CountActiveBookings(ctx context.Context, eventID string) (int, error) {
	n, err := d.Bun.NewSelect().
		Model((*models.Booking)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.BookingStatusBooked).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bookings for event %s: %w", eventID, err)
	}
	return n, nil
}

// ---------------- ADMISSION ----------------

// Admit reserves one slot on the event and inserts b in a single transaction.
// The slot is taken by a conditional increment that only matches while the
// event exists, is below capacity and does not start before b.CreatedAt. The partial
// unique index on (user_id, event_id) rejects a second active booking, which
// rolls the increment back.
func (d *DB) Admit(ctx context.Context, b *models.Booking) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("booked_count = booked_count + 1").
			Set("updated_at = ?", b.CreatedAt).
			Where("id = ?", b.EventID).
			Where("booked_count < capacity").
			Where("starts_at >= ?", b.CreatedAt).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("reserve slot on event %s: %w", b.EventID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve slot on event %s: %w", b.EventID, err)
		}
		if n == 0 {
			return refusal(ctx, tx, b.EventID, b.CreatedAt)
		}

		if _, err := tx.NewInsert().Model(b).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return models.ErrAlreadyBooked
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
}

// refusal explains why the conditional increment matched nothing.
func refusal(ctx context.Context, tx bun.Tx, eventID string, now time.Time) error {
	var event models.Event
	err := tx.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("select event %s: %w", eventID, err)
	}
	if event.IsPast(now) {
		return models.ErrEventExpired
	}
	return models.ErrEventFull
}

// ---------------- CANCELLATION ----------------

// Cancel flips an owned booking from booked to cancelled and frees its slot.
// Missing and foreign bookings both report ErrBookingNotFound.
func (d *DB) Cancel(ctx context.Context, userID, bookingID string, at time.Time) (*models.Booking, error) {
	var booking models.Booking

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", models.BookingStatusCancelled).
			Set("cancelled_at = ?", at).
			Where("id = ?", bookingID).
			Where("user_id = ?", userID).
			Where("status = ?", models.BookingStatusBooked).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cancel booking %s: %w", bookingID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("cancel booking %s: %w", bookingID, err)
		}

		err = tx.NewSelect().
			Model(&booking).
			Where("id = ?", bookingID).
			Where("user_id = ?", userID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("select booking %s: %w", bookingID, err)
		}
		if n == 0 {
			return models.ErrAlreadyCancelled
		}

		_, err = tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("booked_count = booked_count - 1").
			Set("updated_at = ?", at).
			Where("id = ?", booking.EventID).
			Where("booked_count > 0").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("release slot on event %s: %w", booking.EventID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := d.attachEvents(ctx, []*models.Booking{&booking}); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ---------------- READS ----------------

// GetActiveBooking returns the user's booked row for the event, or nil.
func (d *DB) GetActiveBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Where("status = ?", models.BookingStatusBooked).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active booking: %w", err)
	}
	return &booking, nil
}

func (d *DB) GetBookingForUser(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", bookingID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select booking %s: %w", bookingID, err)
	}

	if err := d.attachEvents(ctx, []*models.Booking{&booking}); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for user %s: %w", userID, err)
	}

	if err := d.attachEvents(ctx, pointers(bookings)); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListBookingsByEvent is the admin roster: every booking for the event with
// its owner's contact details.
func (d *DB) ListBookingsByEvent(ctx context.Context, eventID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings for event %s: %w", eventID, err)
	}

	ptrs := pointers(bookings)
	if err := d.attachEvents(ctx, ptrs); err != nil {
		return nil, err
	}
	if err := d.attachUsers(ctx, ptrs); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (d *DB) attachEvents(ctx context.Context, bookings []*models.Booking) error {
	ids := distinct(bookings, func(b *models.Booking) string { return b.EventID })
	if len(ids) == 0 {
		return nil
	}

	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("resolve booking events: %w", err)
	}

	byID := make(map[string]*models.Event, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}
	for _, b := range bookings {
		b.Event = byID[b.EventID]
	}
	return nil
}

func (d *DB) attachUsers(ctx context.Context, bookings []*models.Booking) error {
	ids := distinct(bookings, func(b *models.Booking) string { return b.UserID })
	if len(ids) == 0 {
		return nil
	}

	var users []models.User
	err := d.Bun.NewSelect().
		Model(&users).
		Column("id", "username", "email").
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("resolve booking users: %w", err)
	}

	byID := make(map[string]models.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = models.UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
	}
	for _, b := range bookings {
		if s, ok := byID[b.UserID]; ok {
			summary := s
			b.User = &summary
		}
	}
	return nil
}

func pointers(bookings []models.Booking) []*models.Booking {
	out := make([]*models.Booking, len(bookings))
	for i := range bookings {
		out[i] = &bookings[i]
	}
	return out
}

func distinct(bookings []*models.Booking, key func(*models.Booking) string) []string {
	seen := make(map[string]struct{}, len(bookings))
	var ids []string
	for _, b := range bookings {
		k := key(b)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ids = append(ids, k)
	}
	return ids
}
