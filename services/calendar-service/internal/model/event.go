package model

import (
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

// Event statuses. Completed and cancelled are terminal.
const (
	EventStatusUpcoming  = "upcoming"
	EventStatusCompleted = "completed"
	EventStatusCancelled = "cancelled"
)

// Event categories.
const (
	CategoryPersonal = "personal"
	CategoryWork     = "work"
	CategorySocial   = "social"
	CategoryHealth   = "health"
	CategoryOther    = "other"
)

func KnownCategory(c string) bool {
	switch c {
	case CategoryPersonal, CategoryWork, CategorySocial, CategoryHealth, CategoryOther:
		return true
	}
	return false
}

var categoryColors = map[string]string{
	CategoryPersonal: "#9C6ADE",
	CategoryWork:     "#4A6FA5",
	CategorySocial:   "#F5A623",
	CategoryHealth:   "#2BB673",
	CategoryOther:    "#8A94A6",
}

// CategoryColor returns the display color for a category, with the
// "other" color as the fallback for anything unknown.
func CategoryColor(category string) string {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	return categoryColors[CategoryOther]
}

// Event is a general calendar entry. A nil Time means the entry spans the
// whole day. Unlike appointments, events may be removed permanently by
// explicit user action.
type Event struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Date        caldate.Date
	Time        *caldate.TimeOfDay
	Location    string
	Category    string
	IsAllDay    bool
	Recurrence  *recurrence.Rule
	Status      string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayColor returns the stored color, falling back to the category
// color.
func (e Event) DisplayColor() string {
	if e.Color != "" {
		return e.Color
	}
	return CategoryColor(e.Category)
}
