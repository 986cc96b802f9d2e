// Package agenda merges the two entity streams, appointments and events,
// into the per-day agenda and the month marker map. Entries are derived
// projections rebuilt on every pass; nothing here is persisted.
package agenda

import (
	"fmt"
	"sort"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

const (
	SourceEvent       = "event"
	SourceAppointment = "appointment"
)

// Entry is one row of a day's agenda, read-only and recomputed on every
// aggregation pass. Time is nil for all-day entries.
type Entry struct {
	SourceKind      string             `json:"source_kind"`
	SourceID        string             `json:"source_id"`
	DisplayTitle    string             `json:"display_title"`
	Time            *caldate.TimeOfDay `json:"time"`
	IsAllDay        bool               `json:"is_all_day"`
	Location        string             `json:"location"`
	CategoryColor   string             `json:"category_color"`
	IsRecurring     bool               `json:"is_recurring"`
	RecurrenceLabel string             `json:"recurrence_label,omitempty"`
}

// ForDate builds the agenda for a single day. Both streams are filtered to
// entities that fall on the date directly or through their recurrence and
// are not cancelled, then ordered: all-day entries first, the rest by
// ascending time, ties broken by stream order with events ahead of
// appointments.
func ForDate(appts []model.Appointment, events []model.Event, date caldate.Date) []Entry {
	entries := make([]Entry, 0, len(appts)+len(events))

	for _, e := range events {
		if e.Status == model.EventStatusCancelled || !occursOn(e.Date, e.Recurrence, date) {
			continue
		}
		entry := Entry{
			SourceKind:    SourceEvent,
			SourceID:      e.ID,
			DisplayTitle:  e.Title,
			IsAllDay:      e.IsAllDay,
			Location:      e.Location,
			CategoryColor: e.DisplayColor(),
		}
		if !e.IsAllDay && e.Time != nil {
			t := *e.Time
			entry.Time = &t
		}
		if e.Recurrence != nil {
			entry.IsRecurring = true
			entry.RecurrenceLabel = e.Recurrence.Label()
		}
		entries = append(entries, entry)
	}

	for _, a := range appts {
		if a.Status == model.StatusCancelled || !occursOn(a.Date, a.Recurrence, date) {
			continue
		}
		t := a.Time
		entry := Entry{
			SourceKind:    SourceAppointment,
			SourceID:      a.ID,
			DisplayTitle:  appointmentTitle(a),
			Time:          &t,
			Location:      a.Location,
			CategoryColor: a.DisplayColor(),
		}
		if a.Recurrence != nil {
			entry.IsRecurring = true
			entry.RecurrenceLabel = a.Recurrence.Label()
		}
		entries = append(entries, entry)
	}

	// Stable sort keeps stream order for equal keys, which is what breaks
	// time ties in favor of events.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsAllDay != b.IsAllDay {
			return a.IsAllDay
		}
		if a.IsAllDay {
			return false
		}
		return a.Time.Minutes() < b.Time.Minutes()
	})
	return entries
}

// MarkersForMonth builds the month-view dot annotations: day-of-month to
// the colors of the entities falling on it. One marker per contributing
// entity, in stream order; duplicate colors are kept because the count of
// dots is meaningful.
func MarkersForMonth(appts []model.Appointment, events []model.Event, year, month int) map[int][]string {
	first := caldate.Date{Year: year, Month: month, Day: 1}
	last := caldate.Date{Year: year, Month: month, Day: caldate.DaysIn(year, month)}

	markers := make(map[int][]string)
	mark := func(anchor caldate.Date, rule *recurrence.Rule, color string) {
		for _, d := range occurrencesIn(anchor, rule, first, last) {
			markers[d.Day] = append(markers[d.Day], color)
		}
	}

	for _, e := range events {
		if e.Status == model.EventStatusCancelled {
			continue
		}
		mark(e.Date, e.Recurrence, e.DisplayColor())
	}
	for _, a := range appts {
		if a.Status == model.StatusCancelled {
			continue
		}
		mark(a.Date, a.Recurrence, a.DisplayColor())
	}
	return markers
}

// occursOn reports whether an entity anchored on anchor falls on date,
// either directly or through its recurrence rule.
func occursOn(anchor caldate.Date, rule *recurrence.Rule, date caldate.Date) bool {
	if anchor == date {
		return true
	}
	return rule != nil && rule.AppliesOn(anchor, date)
}

// occurrencesIn lists the days within [first, last] an entity falls on.
func occurrencesIn(anchor caldate.Date, rule *recurrence.Rule, first, last caldate.Date) []caldate.Date {
	if rule == nil {
		if anchor.Before(first) || anchor.After(last) {
			return nil
		}
		return []caldate.Date{anchor}
	}
	return rule.Occurrences(anchor, first, last)
}

func appointmentTitle(a model.Appointment) string {
	if a.Specialty != "" {
		return fmt.Sprintf("%s (%s)", a.DoctorName, a.Specialty)
	}
	return a.DoctorName
}
