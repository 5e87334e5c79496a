package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"
)

type DBLayer interface {
	CapacityStore
	GetActiveBooking(ctx context.Context, userID, eventID string) (*models.Booking, error)
	Admit(ctx context.Context, b *models.Booking) error
	Cancel(ctx context.Context, userID, bookingID string, at time.Time) (*models.Booking, error)
	GetBookingForUser(ctx context.Context, userID, bookingID string) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListBookingsByEvent(ctx context.Context, eventID string) ([]models.Booking, error)
}

// EventLocker is an optional cross-instance mutex keyed by event id.
type EventLocker interface {
	Acquire(ctx context.Context, eventID string) (release func(), err error)
}

// BookingService is the only writer of booking status.
type BookingService struct {
	DB         DBLayer
	Lock       EventLocker
	Dispatcher notify.Dispatcher
	Evaluator  *CapacityEvaluator
	Logger     *logger.Logger
	now        func() time.Time
}

func NewBookingService(db DBLayer, lock EventLocker, dispatcher notify.Dispatcher, log *logger.Logger) *BookingService {
	return newBookingService(db, lock, dispatcher, log, time.Now)
}

func newBookingService(db DBLayer, lock EventLocker, dispatcher notify.Dispatcher, log *logger.Logger, now func() time.Time) *BookingService {
	return &BookingService{
		DB:         db,
		Lock:       lock,
		Dispatcher: dispatcher,
		Evaluator:  NewCapacityEvaluator(db, now),
		Logger:     log,
		now:        now,
	}
}

// CreateBooking admits one booking for the caller. Checks run in order:
// event id present, event exists, capacity evaluator admits (past before
// full), no active booking for the pair. The store repeats the capacity and
// uniqueness checks atomically, so concurrent callers racing past the
// prechecks still get one of the same errors.
func (s *BookingService) CreateBooking(ctx context.Context, cmd models.CreateBookingCommand) (*models.Booking, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if s.Lock != nil {
		release, err := s.Lock.Acquire(ctx, cmd.EventID)
		if err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Proceeding without event lock for %s: %v", cmd.EventID, err))
		} else {
			defer release()
		}
	}

	event, err := s.DB.GetEventByID(ctx, cmd.EventID)
	if err != nil {
		return nil, err
	}

	admission, err := s.Evaluator.evaluate(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("evaluate capacity: %w", err)
	}
	if err := admission.Err(); err != nil {
		s.Logger.LogBooking("REFUSED", cmd.EventID, admission.Reason)
		return nil, err
	}

	existing, err := s.DB.GetActiveBooking(ctx, cmd.UserID, cmd.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrAlreadyBooked
	}

	booking := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    cmd.UserID,
		EventID:   cmd.EventID,
		Status:    models.BookingStatusBooked,
		CreatedAt: s.now().UTC(),
	}
	if err := s.DB.Admit(ctx, booking); err != nil {
		return nil, err
	}

	view := event.AsOf(s.now())
	view.BookedCount = admission.Booked + 1
	booking.Event = &view

	s.Logger.LogBooking("CREATE", booking.ID, fmt.Sprintf("user=%s event=%s", booking.UserID, booking.EventID))
	s.Dispatcher.Dispatch(notify.BookingConfirmed(booking, event.Title))

	return booking, nil
}

// CancelBooking moves an owned booking from booked to cancelled.
func (s *BookingService) CancelBooking(ctx context.Context, cmd models.CancelBookingCommand) (*models.Booking, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	booking, err := s.DB.Cancel(ctx, cmd.UserID, cmd.BookingID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	title := booking.EventID
	if booking.Event != nil {
		title = booking.Event.Title
		view := booking.Event.AsOf(s.now())
		booking.Event = &view
	}

	s.Logger.LogBooking("CANCEL", booking.ID, fmt.Sprintf("user=%s event=%s", booking.UserID, booking.EventID))
	s.Dispatcher.Dispatch(notify.BookingCancelled(booking, title))

	return booking, nil
}

func (s *BookingService) ListBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings, err := s.DB.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.resolveViews(bookings)
	return bookings, nil
}

// GetBooking hides other users' bookings behind ErrBookingNotFound.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingForUser(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Event != nil {
		view := booking.Event.AsOf(s.now())
		booking.Event = &view
	}
	return booking, nil
}

// ListEventBookings is the admin roster for an event.
func (s *BookingService) ListEventBookings(ctx context.Context, eventID string) ([]models.Booking, error) {
	bookings, err := s.DB.ListBookingsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.resolveViews(bookings)
	return bookings, nil
}

func (s *BookingService) Availability(ctx context.Context, eventID string) (Admission, error) {
	return s.Evaluator.CanAdmit(ctx, eventID)
}

func (s *BookingService) resolveViews(bookings []models.Booking) {
	now := s.now()
	for i := range bookings {
		if bookings[i].Event != nil {
			view := bookings[i].Event.AsOf(now)
			bookings[i].Event = &view
		}
	}
}
