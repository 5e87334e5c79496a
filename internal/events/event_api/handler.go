package event_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/events"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type EventService interface {
	CreateEvent(ctx context.Context, in models.EventInput) (*models.Event, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	UpdateEvent(ctx context.Context, id string, in models.EventInput) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, f models.EventFilter) (events.Page, error)
	ListAllEvents(ctx context.Context, f models.EventFilter) (events.Page, error)
}

type Handler struct {
	Service EventService
	Logger  *logger.Logger
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status := utils.WriteError(w, err); status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	}
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListEvents)
}

func (h *Handler) ListAllEvents(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListAllEvents)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, models.EventFilter) (events.Page, error)) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, "ListEvents", err)
		return
	}

	page, err := fetch(r.Context(), filter)
	if err != nil {
		h.fail(w, "ListEvents", err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	utils.WriteJSON(w, http.StatusOK, page.Events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "GetEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, event)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		h.fail(w, "CreateEvent", err)
		return
	}

	event, err := h.Service.CreateEvent(r.Context(), in)
	if err != nil {
		h.fail(w, "CreateEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		h.fail(w, "UpdateEvent", err)
		return
	}

	event, err := h.Service.UpdateEvent(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, "UpdateEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, event)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.DeleteEvent(r.Context(), id); err != nil {
		h.fail(w, "DeleteEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.MessageResponse{Message: "Event deleted successfully."})
}

func decodeInput(r *http.Request) (models.EventInput, error) {
	var in models.EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var inputErr *models.InputError
		if errors.As(err, &inputErr) {
			return in, err
		}
		return in, models.InvalidInput("Invalid request body.")
	}
	return in, nil
}

// ParseFilter reads the listing query parameters. Unknown keys are ignored;
// malformed numbers and dates are rejected.
func ParseFilter(q url.Values) (models.EventFilter, error) {
	f := models.EventFilter{
		Title:    q.Get("title"),
		Location: q.Get("location"),
		Search:   q.Get("search"),
	}

	var err error
	if f.StartDate, err = optTime(q, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = optTime(q, "endDate"); err != nil {
		return f, err
	}
	if f.MinCapacity, err = optInt(q, "minCapacity"); err != nil {
		return f, err
	}
	if f.MaxCapacity, err = optInt(q, "maxCapacity"); err != nil {
		return f, err
	}
	if f.MinPrice, err = optFloat(q, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optFloat(q, "maxPrice"); err != nil {
		return f, err
	}

	page, err := optInt(q, "page")
	if err != nil {
		return f, err
	}
	if page != nil {
		if *page > models.MaxPage {
			return f, models.InvalidInput(fmt.Sprintf("page must not exceed %d.", models.MaxPage))
		}
		f.Page = *page
	}
	size, err := optInt(q, "pageSize")
	if err != nil {
		return f, err
	}
	if size != nil {
		f.PageSize = *size
	}

	f.Normalize()
	return f, nil
}

func optInt(q url.Values, key string) (*int, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, models.InvalidInput(fmt.Sprintf("%s must be an integer.", key))
	}
	return &v, nil
}

func optFloat(q url.Values, key string) (*float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, models.InvalidInput(fmt.Sprintf("%s must be a number.", key))
	}
	return &v, nil
}

func optTime(q url.Values, key string) (*time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := models.ParseFlexTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RegisterPublicRoutes mounts the unauthenticated reads.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
}

// RegisterAdminRoutes expects the admin role gate to be applied already.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/events", h.CreateEvent)
	r.Put("/events/{id}", h.UpdateEvent)
	r.Delete("/events/{id}", h.DeleteEvent)
	r.Get("/admin/events", h.ListAllEvents)
}
