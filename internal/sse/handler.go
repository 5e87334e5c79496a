package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/bookings"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"
)

// AvailabilityFunc returns the current capacity snapshot for an event.
type AvailabilityFunc func(ctx context.Context, eventID string) (bookings.Admission, error)

// Handler streams availability snapshots over Server-Sent Events.
type Handler struct {
	Emitter      *AvailabilityEmitter
	Availability AvailabilityFunc
	Logger       *logger.Logger
	Heartbeat    time.Duration
}

func NewHandler(emitter *AvailabilityEmitter, availability AvailabilityFunc, log *logger.Logger) *Handler {
	return &Handler{Emitter: emitter, Availability: availability, Logger: log, Heartbeat: 15 * time.Second}
}

// StreamAvailability handles GET /events/{id}/availability/stream. It sends
// a snapshot on connect and a fresh one after every booking or cancellation.
func (h *Handler) StreamAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	ctx := r.Context()

	// resolve first so unknown events get a normal JSON 404
	snapshot, err := h.Availability(ctx, eventID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// the server WriteTimeout would otherwise cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	updates := h.Emitter.Subscribe(ctx, eventID)
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to availability stream for event: %s", eventID))

	h.send(w, flusher, snapshot)

	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case n, ok := <-updates:
			if !ok {
				return
			}
			snapshot, err := h.Availability(ctx, eventID)
			if err != nil {
				h.Logger.Warn("SSE", fmt.Sprintf("Availability after %s for event %s failed: %v", n.Kind, eventID, err))
				continue
			}
			h.send(w, flusher, snapshot)

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from availability stream for event: %s", eventID))
			return
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, snapshot bookings.Admission) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize availability: %v", err))
		return
	}
	fmt.Fprintf(w, "event: availability\ndata: %s\n\n", data)
	flusher.Flush()
}
