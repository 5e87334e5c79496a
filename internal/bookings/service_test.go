package bookings

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"
)

type MockDB struct {
	mock.Mock
}

func (m *MockDB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if e := args.Get(0); e != nil {
		return e.(*models.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDB) CountActiveBookings(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockDB) GetActiveBooking(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	args := m.Called(ctx, userID, eventID)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDB) Admit(ctx context.Context, b *models.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockDB) Cancel(ctx context.Context, userID, bookingID string, at time.Time) (*models.Booking, error) {
	args := m.Called(ctx, userID, bookingID, at)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDB) GetBookingForUser(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, userID, bookingID)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDB) ListBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockDB) ListBookingsByEvent(ctx context.Context, eventID string) ([]models.Booking, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]models.Booking), args.Error(1)
}

type MockLock struct {
	mock.Mock
}

func (m *MockLock) Acquire(ctx context.Context, eventID string) (func(), error) {
	args := m.Called(ctx, eventID)
	if f := args.Get(0); f != nil {
		return f.(func()), args.Error(1)
	}
	return nil, args.Error(1)
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureDispatcher) Dispatch(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

var fixedNow = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(db DBLayer, lock EventLocker) (*BookingService, *captureDispatcher) {
	d := &captureDispatcher{}
	return newBookingService(db, lock, d, logger.Nop(), func() time.Time { return fixedNow }), d
}

func upcomingEvent(capacity int) *models.Event {
	return &models.Event{ID: "e1", Title: "Jazz Night", Capacity: capacity, Date: fixedNow.Add(48 * time.Hour), Active: true}
}

func TestCreateBooking_Success(t *testing.T) {
	db := new(MockDB)
	svc, dispatched := newTestService(db, nil)
	ctx := context.Background()

	db.On("GetEventByID", ctx, "e1").Return(upcomingEvent(2), nil)
	db.On("CountActiveBookings", ctx, "e1").Return(1, nil)
	db.On("GetActiveBooking", ctx, "u1", "e1").Return(nil, nil)
	db.On("Admit", ctx, mock.MatchedBy(func(b *models.Booking) bool {
		return b.UserID == "u1" && b.EventID == "e1" && b.Status == models.BookingStatusBooked && b.CreatedAt.Equal(fixedNow)
	})).Return(nil)

	booking, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
	require.NoError(t, err)
	assert.NotEmpty(t, booking.ID)
	require.NotNil(t, booking.Event)
	assert.Equal(t, "Jazz Night", booking.Event.Title)
	assert.Equal(t, 2, booking.Event.BookedCount)

	require.Len(t, dispatched.sent, 1)
	assert.Equal(t, notify.KindBookingConfirmed, dispatched.sent[0].Kind)
	assert.Equal(t, "You have booked: Jazz Night", dispatched.sent[0].Body)
	db.AssertExpectations(t)
}

func TestCreateBooking_PreconditionOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("missing event id", func(t *testing.T) {
		db := new(MockDB)
		svc, _ := newTestService(db, nil)
		_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1"})
		assert.ErrorIs(t, err, models.ErrInvalidInput)
		db.AssertNotCalled(t, "GetEventByID", mock.Anything, mock.Anything)
	})

	t.Run("event not found", func(t *testing.T) {
		db := new(MockDB)
		svc, _ := newTestService(db, nil)
		db.On("GetEventByID", ctx, "e1").Return(nil, models.ErrEventNotFound)
		_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
		assert.ErrorIs(t, err, models.ErrEventNotFound)
	})

	t.Run("past wins over full", func(t *testing.T) {
		db := new(MockDB)
		svc, _ := newTestService(db, nil)
		past := upcomingEvent(1)
		past.Date = fixedNow.Add(-time.Hour)
		db.On("GetEventByID", ctx, "e1").Return(past, nil)
		db.On("CountActiveBookings", ctx, "e1").Return(1, nil)
		_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
		assert.ErrorIs(t, err, models.ErrEventExpired)
		db.AssertNotCalled(t, "Admit", mock.Anything, mock.Anything)
	})

	t.Run("full before duplicate", func(t *testing.T) {
		db := new(MockDB)
		svc, _ := newTestService(db, nil)
		db.On("GetEventByID", ctx, "e1").Return(upcomingEvent(1), nil)
		db.On("CountActiveBookings", ctx, "e1").Return(1, nil)
		_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
		assert.ErrorIs(t, err, models.ErrEventFull)
		db.AssertNotCalled(t, "GetActiveBooking", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate", func(t *testing.T) {
		db := new(MockDB)
		svc, dispatched := newTestService(db, nil)
		db.On("GetEventByID", ctx, "e1").Return(upcomingEvent(5), nil)
		db.On("CountActiveBookings", ctx, "e1").Return(1, nil)
		db.On("GetActiveBooking", ctx, "u1", "e1").Return(&models.Booking{ID: "b0"}, nil)
		_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
		assert.ErrorIs(t, err, models.ErrAlreadyBooked)
		assert.Empty(t, dispatched.sent)
	})
}

func TestCreateBooking_StoreRefusalPropagates(t *testing.T) {
	db := new(MockDB)
	svc, dispatched := newTestService(db, nil)
	ctx := context.Background()

	db.On("GetEventByID", ctx, "e1").Return(upcomingEvent(1), nil)
	db.On("CountActiveBookings", ctx, "e1").Return(0, nil)
	db.On("GetActiveBooking", ctx, "u1", "e1").Return(nil, nil)
	// another request took the last slot between precheck and write
	db.On("Admit", ctx, mock.Anything).Return(models.ErrEventFull)

	_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
	assert.ErrorIs(t, err, models.ErrEventFull)
	assert.Empty(t, dispatched.sent)
}

func TestCreateBooking_UsesLockAndToleratesLockFailure(t *testing.T) {
	ctx := context.Background()

	db := new(MockDB)
	db.On("GetEventByID", ctx, "e1").Return(upcomingEvent(3), nil)
	db.On("CountActiveBookings", ctx, "e1").Return(0, nil)
	db.On("GetActiveBooking", ctx, mock.Anything, "e1").Return(nil, nil)
	db.On("Admit", ctx, mock.Anything).Return(nil)

	released := false
	lock := new(MockLock)
	lock.On("Acquire", ctx, "e1").Return(func() { released = true }, nil).Once()
	lock.On("Acquire", ctx, "e1").Return(nil, errors.New("redis unavailable")).Once()

	svc, _ := newTestService(db, lock)

	_, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
	require.NoError(t, err)
	assert.True(t, released)

	_, err = svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u2", EventID: "e1"})
	require.NoError(t, err)
	lock.AssertExpectations(t)
}

func TestCancelBooking(t *testing.T) {
	db := new(MockDB)
	svc, dispatched := newTestService(db, nil)
	ctx := context.Background()

	cancelledAt := fixedNow
	db.On("Cancel", ctx, "u1", "b1", fixedNow).Return(&models.Booking{
		ID: "b1", UserID: "u1", EventID: "e1", Status: models.BookingStatusCancelled,
		CancelledAt: &cancelledAt, Event: upcomingEvent(5),
	}, nil).Once()
	db.On("Cancel", ctx, "u1", "b1", fixedNow).Return(nil, models.ErrAlreadyCancelled).Once()

	booking, err := svc.CancelBooking(ctx, models.CancelBookingCommand{UserID: "u1", BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
	require.Len(t, dispatched.sent, 1)
	assert.Equal(t, "Your booking for: Jazz Night has been cancelled.", dispatched.sent[0].Body)

	_, err = svc.CancelBooking(ctx, models.CancelBookingCommand{UserID: "u1", BookingID: "b1"})
	assert.ErrorIs(t, err, models.ErrAlreadyCancelled)
	assert.Len(t, dispatched.sent, 1)
}

func TestGetBooking_ComputesPastAsInactive(t *testing.T) {
	db := new(MockDB)
	svc, _ := newTestService(db, nil)
	ctx := context.Background()

	past := upcomingEvent(5)
	past.Date = fixedNow.Add(-time.Hour)
	db.On("GetBookingForUser", ctx, "u1", "b1").Return(&models.Booking{ID: "b1", Event: past}, nil)
	db.On("GetBookingForUser", ctx, "u2", "b1").Return(nil, models.ErrBookingNotFound)

	b, err := svc.GetBooking(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.False(t, b.Event.Active)
	assert.True(t, past.Active, "stored event is untouched")

	_, err = svc.GetBooking(ctx, "u2", "b1")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	db := new(MockDB)
	ctx := context.Background()
	db.On("GetEventByID", ctx, "e1").Return(upcomingEvent(2), nil)
	db.On("CountActiveBookings", ctx, "e1").Return(0, nil)
	db.On("GetActiveBooking", ctx, "u1", "e1").Return(nil, nil)
	db.On("Admit", ctx, mock.Anything).Return(nil)

	var logs bytes.Buffer
	log := logger.NewWithWriter(&logs)
	failing := notify.NewAsyncDispatcher(failingSink{}, log)
	svc := newBookingService(db, nil, failing, log, func() time.Time { return fixedNow })

	booking, err := svc.CreateBooking(ctx, models.CreateBookingCommand{UserID: "u1", EventID: "e1"})
	require.NoError(t, failing.Close(ctx))

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusBooked, booking.Status)
	assert.Contains(t, logs.String(), "mail server unreachable")
}

type failingSink struct{}

func (failingSink) Deliver(context.Context, notify.Notification) error {
	return errors.New("mail server unreachable")
}
