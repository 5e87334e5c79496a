package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type DBLayer interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, f models.EventFilter, now time.Time) ([]models.Event, int, error)
}

// EventService is the administration side of events. Reads report Active as
// false for past events without writing anything back.
type EventService struct {
	DB     DBLayer
	Logger *logger.Logger
	now    func() time.Time
}

func NewEventService(db DBLayer, log *logger.Logger) *EventService {
	return &EventService{DB: db, Logger: log, now: time.Now}
}

func (s *EventService) CreateEvent(ctx context.Context, in models.EventInput) (*models.Event, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	event := &models.Event{
		ID:          uuid.NewString(),
		BookedCount: 0,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	in.Apply(event)

	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Created event %s (%s) capacity=%d", event.ID, event.Title, event.Capacity))

	view := event.AsOf(now)
	return &view, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := event.AsOf(s.now())
	return &view, nil
}

// UpdateEvent applies a partial update. Lowering capacity below the current
// booked count is allowed; it only stops further admissions.
func (s *EventService) UpdateEvent(ctx context.Context, id string, in models.EventInput) (*models.Event, error) {
	if err := in.ValidateUpdate(); err != nil {
		return nil, err
	}

	event, err := s.DB.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}

	in.Apply(event)
	event.UpdatedAt = s.now().UTC()

	if err := s.DB.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	if event.BookedCount > event.Capacity {
		s.Logger.Warn("EVENT", fmt.Sprintf("Event %s capacity %d is below booked count %d", event.ID, event.Capacity, event.BookedCount))
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Updated event %s", event.ID))

	view := event.AsOf(s.now())
	return &view, nil
}

func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.DB.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Deleted event %s", id))
	return nil
}

type Page struct {
	Events []models.Event
	Total  int
}

// ListEvents is the public listing: active, upcoming events only.
func (s *EventService) ListEvents(ctx context.Context, f models.EventFilter) (Page, error) {
	f.IncludeInactive = false
	return s.list(ctx, f)
}

// ListAllEvents is the admin listing with no active/upcoming restriction.
func (s *EventService) ListAllEvents(ctx context.Context, f models.EventFilter) (Page, error) {
	f.IncludeInactive = true
	return s.list(ctx, f)
}

func (s *EventService) list(ctx context.Context, f models.EventFilter) (Page, error) {
	now := s.now()
	events, total, err := s.DB.ListEvents(ctx, f, now)
	if err != nil {
		return Page{}, err
	}
	for i := range events {
		events[i] = events[i].AsOf(now)
	}
	return Page{Events: events, Total: total}, nil
}
