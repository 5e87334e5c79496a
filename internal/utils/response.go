package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-booking/internal/models"
)

type ErrorBody struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorTable = []errorMapping{
	{models.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND", "Event not found."},
	{models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND", "Booking not found."},
	{models.ErrEventFull, http.StatusBadRequest, "EVENT_FULL", "Event is fully booked."},
	{models.ErrEventExpired, http.StatusBadRequest, "EVENT_EXPIRED", "Cannot book past events."},
	{models.ErrAlreadyBooked, http.StatusConflict, "ALREADY_BOOKED", "You have already booked this event."},
	{models.ErrAlreadyCancelled, http.StatusBadRequest, "ALREADY_CANCELLED", "Booking is already cancelled."},
	{models.ErrUserExists, http.StatusConflict, "USER_EXISTS", "User already exists."},
	{models.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found."},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials."},
	{models.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required."},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Access denied."},
}

// ClassifyError maps err onto a status, a stable code and a client-safe message.
// Unknown errors become an opaque 500.
func ClassifyError(err error) (int, ErrorBody) {
	body := ErrorBody{Timestamp: time.Now().UTC()}

	var inputErr *models.InputError
	if errors.As(err, &inputErr) {
		body.Code = "INVALID_INPUT"
		body.Message = inputErr.Message
		return http.StatusBadRequest, body
	}
	if errors.Is(err, models.ErrInvalidInput) {
		body.Code = "INVALID_INPUT"
		body.Message = "Invalid request."
		return http.StatusBadRequest, body
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			body.Code = m.code
			body.Message = m.message
			return m.status, body
		}
	}

	body.Code = "INTERNAL_ERROR"
	body.Message = "Internal server error."
	return http.StatusInternalServerError, body
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func WriteError(w http.ResponseWriter, err error) int {
	status, body := ClassifyError(err)
	WriteJSON(w, status, body)
	return status
}

type MessageResponse struct {
	Message string `json:"message"`
}
