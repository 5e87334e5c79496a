package analytics

import (
	"context"
	"fmt"
	"math"

	"ms-booking/internal/models"
)

// Store is the read side analytics needs.
type Store interface {
	GetEventCounts(ctx context.Context, ids []string) ([]EventCountsData, error)
	GetDailyBookingsByEventID(ctx context.Context, eventID string) ([]DailyBookingsData, error)
}

// Service handles analytics operations
type Service struct {
	store Store
}

// NewService creates a new analytics service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// EventStats is the booking summary for one event
type EventStats struct {
	EventID     string  `json:"eventId"`
	Title       string  `json:"title"`
	Capacity    int     `json:"capacity"`
	Booked      int     `json:"booked"`
	Cancelled   int     `json:"cancelled"`
	Remaining   int     `json:"remaining"`
	Utilization float64 `json:"utilization"`
}

// DailyBookings contains booking activity for a single day
type DailyBookings struct {
	Date      string `json:"date"`
	Booked    int    `json:"booked"`
	Cancelled int    `json:"cancelled"`
}

// EventAnalytics is the per-event stats endpoint payload
type EventAnalytics struct {
	EventStats
	Daily []DailyBookings `json:"daily"`
}

// Overview aggregates stats across a set of events
type Overview struct {
	Events         []EventStats `json:"events"`
	TotalCapacity  int          `json:"totalCapacity"`
	TotalBooked    int          `json:"totalBooked"`
	TotalCancelled int          `json:"totalCancelled"`
	Utilization    float64      `json:"utilization"`
}

// GetEventAnalytics returns the summary and daily booking activity for one event
func (s *Service) GetEventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	rows, err := s.store.GetEventCounts(ctx, []string{eventID})
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrEventNotFound
	}

	daily, err := s.store.GetDailyBookingsByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("daily bookings: %w", err)
	}

	result := &EventAnalytics{
		EventStats: toStats(rows[0]),
		Daily:      make([]DailyBookings, 0, len(daily)),
	}
	for _, d := range daily {
		result.Daily = append(result.Daily, DailyBookings{Date: d.Day, Booked: d.Booked, Cancelled: d.Cancelled})
	}
	return result, nil
}

// GetOverview summarizes the given events, or every event when ids is empty
func (s *Service) GetOverview(ctx context.Context, ids []string) (*Overview, error) {
	rows, err := s.store.GetEventCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}

	overview := &Overview{Events: make([]EventStats, 0, len(rows))}
	for _, row := range rows {
		stats := toStats(row)
		overview.Events = append(overview.Events, stats)
		overview.TotalCapacity += stats.Capacity
		overview.TotalBooked += stats.Booked
		overview.TotalCancelled += stats.Cancelled
	}
	overview.Utilization = utilization(overview.TotalBooked, overview.TotalCapacity)
	return overview, nil
}

func toStats(row EventCountsData) EventStats {
	remaining := row.Capacity - row.Booked
	if remaining < 0 {
		remaining = 0
	}
	return EventStats{
		EventID:     row.EventID,
		Title:       row.Title,
		Capacity:    row.Capacity,
		Booked:      row.Booked,
		Cancelled:   row.Cancelled,
		Remaining:   remaining,
		Utilization: utilization(row.Booked, row.Capacity),
	}
}

// utilization is booked/capacity as a percentage rounded to two decimals
func utilization(booked, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return math.Round(float64(booked)/float64(capacity)*10000) / 100
}
