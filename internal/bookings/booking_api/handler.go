package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/bookings"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type BookingService interface {
	CreateBooking(ctx context.Context, cmd models.CreateBookingCommand) (*models.Booking, error)
	CancelBooking(ctx context.Context, cmd models.CancelBookingCommand) (*models.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]models.Booking, error)
	GetBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error)
	ListEventBookings(ctx context.Context, eventID string) ([]models.Booking, error)
	Availability(ctx context.Context, eventID string) (bookings.Admission, error)
}

// PassRenderer draws the QR pass for an active booking.
type PassRenderer interface {
	Render(b *models.Booking) ([]byte, error)
}

type Handler struct {
	Service BookingService
	Passes  PassRenderer
	Logger  *logger.Logger
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := utils.WriteError(w, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("%s: %d %v", op, status, err))
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "CreateBooking", models.InvalidInput("Invalid request body."))
		return
	}

	cmd := models.CreateBookingCommand{UserID: auth.UserID(r.Context()), EventID: req.EventID}
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: user=%s event=%s", cmd.UserID, cmd.EventID))

	booking, err := h.Service.CreateBooking(r.Context(), cmd)
	if err != nil {
		h.fail(w, "CreateBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, booking)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListBookings(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")

	booking, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), bookingID)
	if err != nil {
		h.fail(w, "GetBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, booking)
}

// CancelBooking serves PUT /bookings/{id}; the body is ignored.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	cmd := models.CancelBookingCommand{UserID: auth.UserID(r.Context()), BookingID: chi.URLParam(r, "id")}
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: user=%s booking=%s", cmd.UserID, cmd.BookingID))

	booking, err := h.Service.CancelBooking(r.Context(), cmd)
	if err != nil {
		h.fail(w, "CancelBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) GetBookingPass(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetBookingPass", err)
		return
	}
	if !booking.IsActive() {
		h.fail(w, "GetBookingPass", models.ErrAlreadyCancelled)
		return
	}

	png, err := h.Passes.Render(booking)
	if err != nil {
		h.fail(w, "GetBookingPass", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=booking-%s.png", booking.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ListEventBookings is admin-only.
func (h *Handler) ListEventBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListEventBookings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "ListEventBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.Availability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Availability", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, a)
}

// RegisterRoutes mounts the caller-scoped booking routes. The router must
// already have authenticated the request.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/{id}", h.GetBooking)
		r.Put("/{id}", h.CancelBooking)
		r.Get("/{id}/qr", h.GetBookingPass)
	})
}
