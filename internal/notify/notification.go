package notify

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/models"
)

type Kind string

const (
	KindBookingConfirmed Kind = "booking.confirmed"
	KindBookingCancelled Kind = "booking.cancelled"
)

// Notification is the message handed to the dispatcher and, when Kafka is
// enabled, the JSON payload on the wire.
type Notification struct {
	Kind       Kind      `json:"kind"`
	BookingID  string    `json:"bookingId"`
	UserID     string    `json:"userId"`
	EventID    string    `json:"eventId"`
	Recipient  string    `json:"recipient,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurredAt"`
}

func BookingConfirmed(b *models.Booking, eventTitle string) Notification {
	return Notification{
		Kind:       KindBookingConfirmed,
		BookingID:  b.ID,
		UserID:     b.UserID,
		EventID:    b.EventID,
		Subject:    "Booking Confirmation",
		Body:       fmt.Sprintf("You have booked: %s", eventTitle),
		OccurredAt: b.CreatedAt,
	}
}

func BookingCancelled(b *models.Booking, eventTitle string) Notification {
	occurred := time.Now().UTC()
	if b.CancelledAt != nil {
		occurred = *b.CancelledAt
	}
	return Notification{
		Kind:       KindBookingCancelled,
		BookingID:  b.ID,
		UserID:     b.UserID,
		EventID:    b.EventID,
		Subject:    "Booking Cancelled",
		Body:       fmt.Sprintf("Your booking for: %s has been cancelled.", eventTitle),
		OccurredAt: occurred,
	}
}

// Dispatcher accepts notifications without blocking and without reporting
// delivery failures to the caller.
type Dispatcher interface {
	Dispatch(n Notification)
}

// Sink performs the actual delivery.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// RecipientResolver looks up the contact address for a user id.
type RecipientResolver func(ctx context.Context, userID string) (string, error)
