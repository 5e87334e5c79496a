package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateEvent(ctx context.Context, e *models.Event) error {
	if _, err := d.Bun.NewInsert().Model(e).Exec(ctx); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select event %s: %w", id, err)
	}
	return &event, nil
}

// UpdateEvent writes the editable columns. booked_count is owned by the
// booking store and never written here.
func (d *DB) UpdateEvent(ctx context.Context, e *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(e).
		Column("title", "description", "location", "starts_at", "capacity", "price", "active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrEventNotFound
	}
	return nil
}

// DeleteEvent removes the event row only. Bookings keep their event id.
func (d *DB) DeleteEvent(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Event)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrEventNotFound
	}
	return nil
}

// ListEvents applies f and returns one page plus the total match count.
// Unless f.IncludeInactive is set only active events starting at or after
// now are returned.
func (d *DB) ListEvents(ctx context.Context, f models.EventFilter, now time.Time) ([]models.Event, int, error) {
	events := []models.Event{}
	q := d.Bun.NewSelect().Model(&events)

	if !f.IncludeInactive {
		from := now
		if f.StartDate != nil && f.StartDate.After(now) {
			from = *f.StartDate
		}
		q = q.Where("active = ?", true).Where("starts_at >= ?", from)
	} else if f.StartDate != nil {
		q = q.Where("starts_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("starts_at <= ?", *f.EndDate)
	}

	if f.Title != "" {
		q = q.Where("LOWER(title) LIKE ?", likePattern(f.Title))
	}
	if f.Location != "" {
		q = q.Where("LOWER(location) LIKE ?", likePattern(f.Location))
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(title) LIKE ?", pattern).
				WhereOr("LOWER(location) LIKE ?", pattern).
				WhereOr("LOWER(description) LIKE ?", pattern)
		})
	}

	if f.MinCapacity != nil {
		q = q.Where("capacity >= ?", *f.MinCapacity)
	}
	if f.MaxCapacity != nil {
		q = q.Where("capacity <= ?", *f.MaxCapacity)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	f.Normalize()
	total, err := q.
		Order("starts_at ASC", "id ASC").
		Limit(f.PageSize).
		Offset(f.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}
