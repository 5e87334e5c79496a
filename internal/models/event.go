package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          string    `bun:"id,pk" json:"id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description,notnull" json:"description"`
	Location    string    `bun:"location,notnull" json:"location"`
	Date        time.Time `bun:"starts_at,notnull" json:"date"`
	Capacity    int       `bun:"capacity,notnull" json:"capacity"`
	BookedCount int       `bun:"booked_count,notnull" json:"bookedCount"`
	Price       float64   `bun:"price,notnull" json:"price"`
	Active      bool      `bun:"active,notnull" json:"active"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// IsPast reports whether the event's scheduled time is before now.
func (e *Event) IsPast(now time.Time) bool {
	return e.Date.Before(now)
}

func (e *Event) Remaining() int {
	if r := e.Capacity - e.BookedCount; r > 0 {
		return r
	}
	return 0
}

// AsOf returns a copy with Active reflecting the stored flag and the date.
// Nothing is written back.
func (e Event) AsOf(now time.Time) Event {
	e.Active = e.Active && !e.IsPast(now)
	return e
}

// EventInput is used for both create (all fields required) and partial update.
type EventInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Location    *string   `json:"location"`
	Date        *FlexTime `json:"date"`
	Capacity    *int      `json:"capacity"`
	Price       *float64  `json:"price"`
	Active      *bool     `json:"active"`
}

func (in EventInput) ValidateCreate() error {
	if blank(in.Title) || blank(in.Description) || blank(in.Location) || in.Date == nil ||
		in.Capacity == nil || in.Price == nil {
		return InvalidInput("All fields are required.")
	}
	if *in.Capacity < 1 {
		return InvalidInput("Capacity must be at least 1.")
	}
	if *in.Price <= 0 {
		return InvalidInput("Price must be a positive number.")
	}
	return nil
}

func (in EventInput) ValidateUpdate() error {
	if in.Title != nil && blank(in.Title) {
		return InvalidInput("Title cannot be empty.")
	}
	if in.Description != nil && blank(in.Description) {
		return InvalidInput("Description cannot be empty.")
	}
	if in.Location != nil && blank(in.Location) {
		return InvalidInput("Location cannot be empty.")
	}
	if in.Capacity != nil && *in.Capacity < 1 {
		return InvalidInput("Capacity must be at least 1.")
	}
	if in.Price != nil && *in.Price < 0 {
		return InvalidInput("Price cannot be negative.")
	}
	return nil
}

// Apply copies the provided fields onto e.
func (in EventInput) Apply(e *Event) {
	if in.Title != nil {
		e.Title = *in.Title
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Location != nil {
		e.Location = *in.Location
	}
	if in.Date != nil {
		e.Date = in.Date.Time
	}
	if in.Capacity != nil {
		e.Capacity = *in.Capacity
	}
	if in.Price != nil {
		e.Price = *in.Price
	}
	if in.Active != nil {
		e.Active = *in.Active
	}
}

type EventFilter struct {
	Title       string
	Location    string
	Search      string
	StartDate   *time.Time
	EndDate     *time.Time
	MinCapacity *int
	MaxCapacity *int
	MinPrice    *float64
	MaxPrice    *float64
	Page        int
	PageSize    int

	// IncludeInactive disables the active/upcoming restriction (admin listing).
	IncludeInactive bool
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (Page-1)*PageSize well inside the OFFSET range.
	MaxPage = 1_000_000
)

func (f *EventFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

func (f EventFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

func blank(s *string) bool {
	return s == nil || len(trimSpace(*s)) == 0
}
