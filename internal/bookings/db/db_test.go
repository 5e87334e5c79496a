package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and serialises transactions
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, database.CreateSchema(context.Background(), bunDB))
	return &DB{Bun: bunDB}
}

func seedEvent(t *testing.T, d *DB, capacity int, startsIn time.Duration) *models.Event {
	t.Helper()
	now := time.Now().UTC()
	event := &models.Event{
		ID:          uuid.NewString(),
		Title:       "Concert",
		Description: "Live music",
		Location:    "Arena",
		Date:        now.Add(startsIn),
		Capacity:    capacity,
		BookedCount: 0,
		Price:       25,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := d.Bun.NewInsert().Model(event).Exec(context.Background())
	require.NoError(t, err)
	return event
}

func seedUser(t *testing.T, d *DB, name string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         models.RoleCustomer,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := d.Bun.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func newBooking(userID, eventID string) *models.Booking {
	return &models.Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    models.BookingStatusBooked,
		CreatedAt: time.Now().UTC(),
	}
}

func bookedCount(t *testing.T, d *DB, eventID string) int {
	t.Helper()
	e, err := d.GetEventByID(context.Background(), eventID)
	require.NoError(t, err)
	return e.BookedCount
}

func TestAdmit_Success(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 2, 24*time.Hour)

	b := newBooking("u1", event.ID)
	require.NoError(t, d.Admit(ctx, b))

	count, err := d.CountActiveBookings(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, bookedCount(t, d, event.ID))

	active, err := d.GetActiveBooking(ctx, "u1", event.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, b.ID, active.ID)
}

func TestAdmit_RefusalReasons(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	err := d.Admit(ctx, newBooking("u1", "missing"))
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	past := seedEvent(t, d, 10, -time.Hour)
	err = d.Admit(ctx, newBooking("u1", past.ID))
	assert.ErrorIs(t, err, models.ErrEventExpired)

	full := seedEvent(t, d, 1, time.Hour)
	require.NoError(t, d.Admit(ctx, newBooking("u1", full.ID)))
	err = d.Admit(ctx, newBooking("u2", full.ID))
	assert.ErrorIs(t, err, models.ErrEventFull)
	assert.Equal(t, 1, bookedCount(t, d, full.ID))
}

func TestAdmit_StartTimeBoundary(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 5, time.Hour)

	// an event starting exactly now is not past for the evaluator either
	atStart := newBooking("u1", event.ID)
	atStart.CreatedAt = event.Date
	require.NoError(t, d.Admit(ctx, atStart))

	late := newBooking("u2", event.ID)
	late.CreatedAt = event.Date.Add(time.Millisecond)
	assert.ErrorIs(t, d.Admit(ctx, late), models.ErrEventExpired)
	assert.Equal(t, 1, bookedCount(t, d, event.ID))
}

func TestAdmit_DuplicateRollsBackCounter(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 5, time.Hour)

	require.NoError(t, d.Admit(ctx, newBooking("u1", event.ID)))
	err := d.Admit(ctx, newBooking("u1", event.ID))

	assert.ErrorIs(t, err, models.ErrAlreadyBooked)
	assert.Equal(t, 1, bookedCount(t, d, event.ID))

	count, err := d.CountActiveBookings(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAdmit_ConcurrentNeverOversells(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 3, time.Hour)

	const attempts = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		full     int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := d.Admit(ctx, newBooking(fmt.Sprintf("user-%d", i), event.ID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case assert.ErrorIs(t, err, models.ErrEventFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	assert.Equal(t, attempts-3, full)

	count, err := d.CountActiveBookings(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, bookedCount(t, d, event.ID))
}

func TestAdmit_ConcurrentSameUser(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 10, time.Hour)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- d.Admit(ctx, newBooking("same-user", event.ID))
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyBooked)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, bookedCount(t, d, event.ID))
}

func TestCancel_Lifecycle(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 1, time.Hour)

	b := newBooking("u1", event.ID)
	require.NoError(t, d.Admit(ctx, b))

	cancelled, err := d.Cancel(ctx, "u1", b.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.Event)
	assert.Equal(t, event.ID, cancelled.Event.ID)
	assert.Equal(t, 0, bookedCount(t, d, event.ID))

	_, err = d.Cancel(ctx, "u1", b.ID, time.Now().UTC())
	assert.ErrorIs(t, err, models.ErrAlreadyCancelled)
	assert.Equal(t, 0, bookedCount(t, d, event.ID))

	// the freed slot can be taken again, by the same user
	again := newBooking("u1", event.ID)
	require.NoError(t, d.Admit(ctx, again))
	assert.Equal(t, 1, bookedCount(t, d, event.ID))
}

func TestCancel_NotOwned(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 1, time.Hour)

	b := newBooking("owner", event.ID)
	require.NoError(t, d.Admit(ctx, b))

	_, err := d.Cancel(ctx, "intruder", b.ID, time.Now().UTC())
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	_, err = d.Cancel(ctx, "owner", "nope", time.Now().UTC())
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	still, err := d.GetBookingForUser(ctx, "owner", b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusBooked, still.Status)
}

func TestGetBookingForUser_ScopedToOwner(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 1, time.Hour)
	b := newBooking("owner", event.ID)
	require.NoError(t, d.Admit(ctx, b))

	_, err := d.GetBookingForUser(ctx, "someone-else", b.ID)
	assert.ErrorIs(t, err, models.ErrBookingNotFound)

	got, err := d.GetBookingForUser(ctx, "owner", b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Event)
	assert.Equal(t, "Concert", got.Event.Title)
}

func TestListBookings(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, d, "alice")
	bob := seedUser(t, d, "bob")
	e1 := seedEvent(t, d, 5, time.Hour)
	e2 := seedEvent(t, d, 5, 2*time.Hour)

	require.NoError(t, d.Admit(ctx, newBooking(alice.ID, e1.ID)))
	require.NoError(t, d.Admit(ctx, newBooking(alice.ID, e2.ID)))
	require.NoError(t, d.Admit(ctx, newBooking(bob.ID, e1.ID)))

	mine, err := d.ListBookingsByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, b := range mine {
		assert.NotNil(t, b.Event)
	}

	roster, err := d.ListBookingsByEvent(ctx, e1.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	names := []string{roster[0].User.Username, roster[1].User.Username}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)

	empty, err := d.ListBookingsByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListBookings_DeletedEventResolvesToNil(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	event := seedEvent(t, d, 5, time.Hour)
	require.NoError(t, d.Admit(ctx, newBooking("u1", event.ID)))

	_, err := d.Bun.NewDelete().Model((*models.Event)(nil)).Where("id = ?", event.ID).Exec(ctx)
	require.NoError(t, err)

	list, err := d.ListBookingsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Event)
	assert.Equal(t, models.BookingStatusBooked, list[0].Status)
}
