package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

func date(y, m, d int) caldate.Date {
	return caldate.Date{Year: y, Month: m, Day: d}
}

func clock(h, m int) *caldate.TimeOfDay {
	return &caldate.TimeOfDay{Hour: h, Minute: m}
}

func exportOpts() ExportOptions {
	return ExportOptions{
		CalendarName: "Dana",
		Location:     time.UTC,
		From:         date(2024, 6, 1),
		HorizonDays:  14,
		Now:          time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func parseFeed(t *testing.T, out string) []*ical.VEvent {
	t.Helper()
	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("exported feed does not parse back: %v", err)
	}
	return cal.Events()
}

func findBySummary(t *testing.T, events []*ical.VEvent, summary string) []*ical.VEvent {
	t.Helper()
	var out []*ical.VEvent
	for _, ve := range events {
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value == summary {
			out = append(out, ve)
		}
	}
	return out
}

func TestExportExpandsWeeklyAppointment(t *testing.T) {
	appt := model.Appointment{
		ID:              "a1",
		DoctorName:      "Dr. Patel",
		Specialty:       "Dermatology",
		Date:            date(2024, 6, 3),
		Time:            caldate.TimeOfDay{Hour: 9, Minute: 0},
		Location:        "Suite 4",
		DurationMinutes: 45,
		Status:          model.StatusUpcoming,
		Recurrence:      &recurrence.Rule{Pattern: recurrence.Weekly},
	}

	out := Export([]model.Appointment{appt}, nil, exportOpts())
	events := parseFeed(t, out)

	got := findBySummary(t, events, "Dr. Patel (Dermatology)")
	if len(got) != 2 {
		t.Fatalf("expected 2 weekly occurrences inside the window, got %d", len(got))
	}
	start, err := got[0].GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt: %v", err)
	}
	want := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("expected first occurrence at %v, got %v", want, start)
	}
	end, err := got[0].GetEndAt()
	if err != nil {
		t.Fatalf("GetEndAt: %v", err)
	}
	if !end.Equal(want.Add(45 * time.Minute)) {
		t.Fatalf("expected end 45m after start, got %v", end)
	}
	if p := got[0].GetProperty(ical.ComponentPropertyLocation); p == nil || p.Value != "Suite 4" {
		t.Fatalf("expected LOCATION Suite 4, got %+v", p)
	}

	uid0 := got[0].GetProperty(ical.ComponentPropertyUniqueId).Value
	uid1 := got[1].GetProperty(ical.ComponentPropertyUniqueId).Value
	if uid0 == uid1 {
		t.Fatalf("occurrences of the same series must have distinct UIDs, both %q", uid0)
	}
}

func TestExportSkipsCancelled(t *testing.T) {
	appt := model.Appointment{
		ID:              "a2",
		DoctorName:      "Dr. Gone",
		Date:            date(2024, 6, 4),
		Time:            caldate.TimeOfDay{Hour: 11, Minute: 0},
		DurationMinutes: 30,
		Status:          model.StatusCancelled,
	}
	ev := model.Event{
		ID:     "e2",
		Title:  "Dropped plan",
		Date:   date(2024, 6, 5),
		Status: model.EventStatusCancelled,
	}

	out := Export([]model.Appointment{appt}, []model.Event{ev}, exportOpts())
	if events := parseFeed(t, out); len(events) != 0 {
		t.Fatalf("expected cancelled entries to be omitted, got %d events", len(events))
	}
}

func TestExportAllDayEvent(t *testing.T) {
	ev := model.Event{
		ID:       "e3",
		Title:    "Wellness day",
		Date:     date(2024, 6, 5),
		Category: model.CategoryHealth,
		IsAllDay: true,
		Status:   model.EventStatusUpcoming,
	}

	out := Export(nil, []model.Event{ev}, exportOpts())
	events := parseFeed(t, out)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	dtStart := events[0].GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		t.Fatal("missing DTSTART")
	}
	vs, ok := dtStart.ICalParameters["VALUE"]
	if !ok || len(vs) == 0 || !strings.EqualFold(vs[0], "DATE") {
		t.Fatalf("expected all-day DTSTART with VALUE=DATE, got params %v", dtStart.ICalParameters)
	}
	if dtStart.Value != "20240605" {
		t.Fatalf("expected DTSTART 20240605, got %q", dtStart.Value)
	}
	if p := events[0].GetProperty(ical.ComponentPropertyCategories); p == nil || p.Value != model.CategoryHealth {
		t.Fatalf("expected CATEGORIES health, got %+v", p)
	}
}

func TestExportKeepsOneOffOutsideWindow(t *testing.T) {
	tm := clock(16, 30)
	ev := model.Event{
		ID:     "e4",
		Title:  "Annual checkup planning",
		Date:   date(2025, 1, 10),
		Time:   tm,
		Status: model.EventStatusUpcoming,
	}

	out := Export(nil, []model.Event{ev}, exportOpts())
	events := parseFeed(t, out)
	if len(events) != 1 {
		t.Fatalf("expected the one-off beyond the horizon to be kept, got %d events", len(events))
	}
	start, err := events[0].GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt: %v", err)
	}
	want := time.Date(2025, 1, 10, 16, 30, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, start)
	}
}

func TestExportSeriesEndDateCapsExpansion(t *testing.T) {
	end := date(2024, 6, 5)
	ev := model.Event{
		ID:         "e5",
		Title:      "Stretching",
		Date:       date(2024, 6, 2),
		Time:       clock(7, 0),
		Status:     model.EventStatusUpcoming,
		Recurrence: &recurrence.Rule{Pattern: recurrence.Daily, EndDate: &end},
	}

	out := Export(nil, []model.Event{ev}, exportOpts())
	if events := parseFeed(t, out); len(events) != 4 {
		t.Fatalf("expected 4 daily occurrences through the end date, got %d", len(events))
	}
}

func TestExportFeedHeader(t *testing.T) {
	out := Export(nil, nil, exportOpts())
	if !strings.Contains(out, "METHOD:PUBLISH") {
		t.Fatal("expected METHOD:PUBLISH in feed")
	}
	if !strings.Contains(out, "X-WR-CALNAME:Dana") {
		t.Fatal("expected calendar name in feed")
	}
	if !strings.Contains(out, "BEGIN:VCALENDAR") || !strings.Contains(out, "END:VCALENDAR") {
		t.Fatal("expected a VCALENDAR wrapper")
	}
}

func TestExportTimedEventInProfileZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	opts := exportOpts()
	opts.Location = loc

	ev := model.Event{
		ID:     "e6",
		Title:  "Pharmacy pickup",
		Date:   date(2024, 6, 3),
		Time:   clock(18, 0),
		Status: model.EventStatusUpcoming,
	}

	out := Export(nil, []model.Event{ev}, opts)
	events := parseFeed(t, out)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	start, err := events[0].GetStartAt()
	if err != nil {
		t.Fatalf("GetStartAt: %v", err)
	}
	// 18:00 EDT is 22:00 UTC.
	want := time.Date(2024, 6, 3, 22, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, start)
	}
}
