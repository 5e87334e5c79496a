package bookings

import (
	"context"
	"time"

	"ms-booking/internal/models"
)

const (
	ReasonEventPast = "event in the past"
	ReasonEventFull = "event fully booked"
)

type CapacityStore interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	CountActiveBookings(ctx context.Context, eventID string) (int, error)
}

// Admission is a point-in-time answer to "may one more booking be taken".
type Admission struct {
	EventID   string `json:"eventId"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Remaining int    `json:"remaining"`
	Admit     bool   `json:"admit"`
	Reason    string `json:"reason,omitempty"`
}

// Err converts a refused admission into its domain error.
func (a Admission) Err() error {
	switch {
	case a.Admit:
		return nil
	case a.Reason == ReasonEventPast:
		return models.ErrEventExpired
	default:
		return models.ErrEventFull
	}
}

// CapacityEvaluator is read-only. The store's conditional write is what
// actually holds the line under concurrency.
type CapacityEvaluator struct {
	store CapacityStore
	now   func() time.Time
}

func NewCapacityEvaluator(store CapacityStore, now func() time.Time) *CapacityEvaluator {
	if now == nil {
		now = time.Now
	}
	return &CapacityEvaluator{store: store, now: now}
}

func (c *CapacityEvaluator) CanAdmit(ctx context.Context, eventID string) (Admission, error) {
	event, err := c.store.GetEventByID(ctx, eventID)
	if err != nil {
		return Admission{}, err
	}
	return c.evaluate(ctx, event)
}

func (c *CapacityEvaluator) evaluate(ctx context.Context, event *models.Event) (Admission, error) {
	booked, err := c.store.CountActiveBookings(ctx, event.ID)
	if err != nil {
		return Admission{}, err
	}

	a := Admission{
		EventID:  event.ID,
		Capacity: event.Capacity,
		Booked:   booked,
	}
	if remaining := event.Capacity - booked; remaining > 0 {
		a.Remaining = remaining
	}

	switch {
	case event.IsPast(c.now()):
		a.Reason = ReasonEventPast
	case booked >= event.Capacity:
		a.Reason = ReasonEventFull
	default:
		a.Admit = true
	}
	return a, nil
}
