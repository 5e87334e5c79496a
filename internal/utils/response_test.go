package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/models"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.InvalidInput("Event ID is required."), http.StatusBadRequest, "INVALID_INPUT"},
		{fmt.Errorf("lookup: %w", models.ErrEventNotFound), http.StatusNotFound, "EVENT_NOT_FOUND"},
		{models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
		{models.ErrEventFull, http.StatusBadRequest, "EVENT_FULL"},
		{models.ErrEventExpired, http.StatusBadRequest, "EVENT_EXPIRED"},
		{models.ErrAlreadyBooked, http.StatusConflict, "ALREADY_BOOKED"},
		{models.ErrAlreadyCancelled, http.StatusBadRequest, "ALREADY_CANCELLED"},
		{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, body := ClassifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	status := WriteError(rec, errors.New("dial tcp 10.0.0.5:5432: refused"))

	assert.Equal(t, http.StatusInternalServerError, status)

	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Internal server error.", body.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestWriteError_InputMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, models.InvalidInput("Event ID is required."))

	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Event ID is required.", body.Message)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
