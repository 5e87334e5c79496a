package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID          string        `bun:"id,pk" json:"id"`
	UserID      string        `bun:"user_id,notnull" json:"userId"`
	EventID     string        `bun:"event_id,notnull" json:"eventId"`
	Status      BookingStatus `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time     `bun:"created_at,notnull" json:"createdAt"`
	CancelledAt *time.Time    `bun:"cancelled_at,nullzero" json:"cancelledAt,omitempty"`

	// Resolved by the store; null when the event has been deleted.
	Event *Event       `bun:"-" json:"event"`
	User  *UserSummary `bun:"-" json:"user,omitempty"`
}

func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusBooked
}

type CreateBookingCommand struct {
	UserID  string
	EventID string
}

func (c CreateBookingCommand) Validate() error {
	if strings.TrimSpace(c.EventID) == "" {
		return InvalidInput("Event ID is required.")
	}
	if c.UserID == "" {
		return ErrUnauthorized
	}
	return nil
}

type CancelBookingCommand struct {
	UserID    string
	BookingID string
}

func (c CancelBookingCommand) Validate() error {
	if c.UserID == "" {
		return ErrUnauthorized
	}
	if strings.TrimSpace(c.BookingID) == "" {
		return ErrBookingNotFound
	}
	return nil
}

type CreateBookingRequest struct {
	EventID string `json:"eventId"`
}
