// Package ics renders the owner's calendar as an iCalendar feed and
// materializes uploaded iCalendar payloads into calendar events.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

const prodID = "-//CareBook//calendar-service//EN"

// DefaultHorizonDays bounds recurrence expansion. One-off entries are
// always included; only the expansion of repeating series is windowed.
const DefaultHorizonDays = 365

// ExportOptions configures a feed render. Zero values fall back to UTC,
// the default horizon, and the current day.
type ExportOptions struct {
	// CalendarName becomes the X-WR-CALNAME of the feed when set.
	CalendarName string

	// Location is the time zone VEVENT start times are anchored in.
	Location *time.Location

	// From is the first day of the expansion window for repeating series.
	From caldate.Date

	// HorizonDays is the length of the expansion window in days.
	HorizonDays int

	// Now is stamped into each VEVENT's DTSTAMP.
	Now time.Time
}

// Export serializes the owner's appointments and events as an iCalendar
// document. Repeating series are written as discrete VEVENTs rather than
// RRULEs: the month-length clamping of monthly, quarterly and yearly
// patterns does not survive a round trip through BYMONTHDAY, which skips
// short months instead of clamping into them. Cancelled entries are
// omitted.
func Export(appts []model.Appointment, events []model.Event, opts ExportOptions) string {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.From.IsZero() {
		opts.From = caldate.FromTime(opts.Now.In(opts.Location))
	}
	to := opts.From.AddDays(opts.HorizonDays)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	if opts.CalendarName != "" {
		cal.SetXWRCalName(opts.CalendarName)
	}

	for _, a := range appts {
		if a.Status == model.StatusCancelled {
			continue
		}
		for _, day := range occurrenceDays(a.Date, a.Recurrence, opts.From, to) {
			ve := cal.AddEvent(occurrenceUID(a.ID, day))
			ve.SetDtStampTime(opts.Now)
			ve.SetSummary(appointmentSummary(a))
			if a.Location != "" {
				ve.SetLocation(a.Location)
			}
			start := day.At(a.Time, opts.Location)
			ve.SetStartAt(start)
			ve.SetEndAt(start.Add(time.Duration(a.DurationMinutes) * time.Minute))
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	for _, e := range events {
		if e.Status == model.EventStatusCancelled {
			continue
		}
		for _, day := range occurrenceDays(e.Date, e.Recurrence, opts.From, to) {
			ve := cal.AddEvent(occurrenceUID(e.ID, day))
			ve.SetDtStampTime(opts.Now)
			ve.SetSummary(e.Title)
			if e.Description != "" {
				ve.SetDescription(e.Description)
			}
			if e.Location != "" {
				ve.SetLocation(e.Location)
			}
			if e.IsAllDay || e.Time == nil {
				ve.SetAllDayStartAt(day.At(caldate.TimeOfDay{}, opts.Location))
				ve.SetAllDayEndAt(day.AddDays(1).At(caldate.TimeOfDay{}, opts.Location))
			} else {
				// A DTSTART with no DTEND is a point-in-time event per
				// RFC 5545; personal events carry no duration.
				ve.SetStartAt(day.At(*e.Time, opts.Location))
			}
			ve.SetProperty(ical.ComponentPropertyCategories, e.Category)
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal.Serialize()
}

// occurrenceDays resolves the concrete days an entry appears on. One-off
// entries contribute their single day regardless of the window; series
// expand within [from, to].
func occurrenceDays(anchor caldate.Date, rule *recurrence.Rule, from, to caldate.Date) []caldate.Date {
	if rule == nil {
		return []caldate.Date{anchor}
	}
	return rule.Occurrences(anchor, from, to)
}

func occurrenceUID(id string, day caldate.Date) string {
	return fmt.Sprintf("%s-%s@carebook", id, day)
}

func appointmentSummary(a model.Appointment) string {
	if a.Specialty != "" {
		return a.DoctorName + " (" + a.Specialty + ")"
	}
	return a.DoctorName
}
