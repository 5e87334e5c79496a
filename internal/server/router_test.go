package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/bookings"
	"ms-booking/internal/bookings/booking_api"
	bookingdb "ms-booking/internal/bookings/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/events"
	eventdb "ms-booking/internal/events/db"
	"ms-booking/internal/events/event_api"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notify"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/users"
	usersdb "ms-booking/internal/users/db"
	"ms-booking/internal/users/user_api"
)

type testApp struct {
	handler http.Handler
	users   *users.UserService
}

func newTestApp(t *testing.T, configure ...func(*Options, *users.UserService)) *testApp {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	log := logger.Nop()
	tokens := auth.NewJWTManager("router-test-secret", time.Hour)
	userService := users.NewUserService(&usersdb.DB{Bun: bunDB}, tokens, log)

	emitter := sse.NewAvailabilityEmitter()
	dispatcher := notify.NewAsyncDispatcher(
		notify.FanOut{emitter, &notify.MailSink{Mailer: notify.NewMailer(config.EmailConfig{}, log), Resolve: userService.RecipientEmail}},
		log,
	)
	t.Cleanup(func() { dispatcher.Close(context.Background()) })

	bookingService := bookings.NewBookingService(&bookingdb.DB{Bun: bunDB}, nil, dispatcher, log)

	opts := Options{
		Resolver:       tokens,
		Logger:         log,
		AllowedOrigins: []string{"*"},
		Health:         bunDB.PingContext,
	}
	for _, c := range configure {
		c(&opts, userService)
	}

	h := NewRouter(opts, Handlers{
		Users:     &user_api.Handler{Service: userService, Logger: log},
		Events:    &event_api.Handler{Service: events.NewEventService(&eventdb.DB{Bun: bunDB}, log), Logger: log},
		Bookings:  &booking_api.Handler{Service: bookingService, Passes: qr.NewGenerator("qr-secret"), Logger: log},
		Analytics: analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), log),
		Stream:    sse.NewHandler(emitter, bookingService.Availability, log),
	})
	return &testApp{handler: h, users: userService}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) register(t *testing.T, name string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": name, "email": name + "@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Token
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	_, err := a.users.EnsureAdmin(context.Background(), "admin", "admin@example.com", "adminpass")
	require.NoError(t, err)
	rec := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "adminpass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthGates(t *testing.T) {
	app := newTestApp(t)
	customer := app.register(t, "carol")

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/api/v1/bookings", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/api/v1/bookings", "garbage", nil).Code)
	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodPost, "/api/v1/events", customer, map[string]string{}).Code)
	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodGet, "/api/v1/admin/stats", customer, nil).Code)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/v1/events/nope/availability/stream", "", nil).Code)

	me := app.do(t, http.MethodGet, "/api/v1/auth/me", customer, nil)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"carol"`)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	admin := app.adminToken(t)
	alice := app.register(t, "alice")
	bob := app.register(t, "bob")

	rec := app.do(t, http.MethodPost, "/api/v1/events", admin, map[string]interface{}{
		"title": "Launch", "description": "Product launch", "location": "Dock 4",
		"date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339), "capacity": 1, "price": 12.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[models.Event](t, rec)

	rec = app.do(t, http.MethodGet, "/api/v1/events", "", nil)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	rec = app.do(t, http.MethodPost, "/api/v1/bookings", alice, map[string]string{"eventId": event.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decode[models.Booking](t, rec)
	assert.Equal(t, models.BookingStatusBooked, booking.Status)

	rec = app.do(t, http.MethodPost, "/api/v1/bookings", alice, map[string]string{"eventId": event.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/v1/bookings", bob, map[string]string{"eventId": event.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EVENT_FULL")

	rec = app.do(t, http.MethodGet, "/api/v1/events/"+event.ID+"/availability", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"remaining":0`)

	rec = app.do(t, http.MethodGet, "/api/v1/bookings/"+booking.ID+"/qr", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	// not owned reads as not found
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPut, "/api/v1/bookings/"+booking.ID, bob, nil).Code)

	rec = app.do(t, http.MethodPut, "/api/v1/bookings/"+booking.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.BookingStatusCancelled, decode[models.Booking](t, rec).Status)

	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPut, "/api/v1/bookings/"+booking.ID, alice, nil).Code)

	rec = app.do(t, http.MethodPost, "/api/v1/bookings", bob, map[string]string{"eventId": event.ID})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/v1/events/"+event.ID+"/bookings", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]models.Booking](t, rec)
	require.Len(t, roster, 2)

	rec = app.do(t, http.MethodGet, "/api/v1/events/"+event.ID+"/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[analytics.EventAnalytics](t, rec)
	assert.Equal(t, 1, stats.Booked)
	assert.Equal(t, 1, stats.Cancelled)

	rec = app.do(t, http.MethodDelete, "/api/v1/events/"+event.ID, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/v1/bookings", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]models.Booking](t, rec)
	require.Len(t, mine, 1)
	assert.Nil(t, mine[0].Event)
}

// subjectResolver stands in for an external identity provider: the raw
// token is looked up verbatim.
type subjectResolver map[string]models.Identity

func (r subjectResolver) Resolve(_ context.Context, raw string) (models.Identity, error) {
	id, ok := r[raw]
	if !ok {
		return models.Identity{}, models.ErrUnauthorized
	}
	return id, nil
}

func TestExternalIdentityBooksWithoutRegistering(t *testing.T) {
	idp := subjectResolver{
		"admin-token": {UserID: "kc-admin", Role: models.RoleAdmin},
		"dana-token":  {UserID: "kc-dana", Role: models.RoleCustomer, Email: "Dana@Example.com", Username: "dana"},
		"anon-token":  {UserID: "kc-anon", Role: models.RoleCustomer},
	}
	app := newTestApp(t, func(o *Options, us *users.UserService) {
		o.Resolver = idp
		o.Provision = us.EnsureSubject
	})

	rec := app.do(t, http.MethodPost, "/api/v1/events", "admin-token", map[string]interface{}{
		"title": "Meetup", "description": "Monthly", "location": "Lab",
		"date": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339), "capacity": 5, "price": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[models.Event](t, rec)

	rec = app.do(t, http.MethodPost, "/api/v1/bookings", "dana-token", map[string]string{"eventId": event.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "kc-dana", decode[models.Booking](t, rec).UserID)

	me := app.do(t, http.MethodGet, "/api/v1/auth/me", "dana-token", nil)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"email":"dana@example.com"`)

	email, err := app.users.RecipientEmail(context.Background(), "kc-dana")
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", email)

	// no e-mail claim: nothing provisioned, booking still admitted
	rec = app.do(t, http.MethodPost, "/api/v1/bookings", "anon-token", map[string]string{"eventId": event.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/v1/auth/me", "anon-token", nil).Code)

	rec = app.do(t, http.MethodGet, "/api/v1/events/"+event.ID+"/bookings", "admin-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]models.Booking](t, rec)
	require.Len(t, roster, 2)
}
