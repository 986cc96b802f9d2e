package agenda

import (
	"testing"

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

func appt(id string, d caldate.Date, t caldate.TimeOfDay) model.Appointment {
	return model.Appointment{
		ID:         id,
		DoctorName: "Dr. Chen",
		Specialty:  "Dermatology",
		Date:       d,
		Time:       t,
		Location:   "Clinic",
		Status:     model.StatusUpcoming,
	}
}

func event(id string, d caldate.Date, t *caldate.TimeOfDay) model.Event {
	e := model.Event{
		ID:       id,
		Title:    "Event " + id,
		Date:     d,
		Location: "Somewhere",
		Category: model.CategoryPersonal,
		Status:   model.EventStatusUpcoming,
	}
	if t == nil {
		e.IsAllDay = true
	} else {
		e.Time = t
	}
	return e
}

func TestForDate_AllDayEventBeforeTimedAppointment(t *testing.T) {
	day := date(2024, 6, 1)
	appts := []model.Appointment{appt("a1", day, caldate.TimeOfDay{Hour: 9})}
	events := []model.Event{event("e1", day, nil)}

	entries := ForDate(appts, events, day)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].SourceKind != SourceEvent || !entries[0].IsAllDay {
		t.Fatalf("expected the all-day event first, got %+v", entries[0])
	}
	if entries[1].SourceKind != SourceAppointment {
		t.Fatalf("expected the appointment second, got %+v", entries[1])
	}
	if entries[1].DisplayTitle != "Dr. Chen (Dermatology)" {
		t.Fatalf("unexpected appointment title %q", entries[1].DisplayTitle)
	}
}

func TestForDate_OrdersByTimeThenStream(t *testing.T) {
	day := date(2024, 6, 1)
	appts := []model.Appointment{
		appt("a-0900", day, caldate.TimeOfDay{Hour: 9}),
		appt("a-0815", day, caldate.TimeOfDay{Hour: 8, Minute: 15}),
	}
	events := []model.Event{
		event("e-0900", day, clock(9, 0)),
		event("e-1030", day, clock(10, 30)),
	}

	entries := ForDate(appts, events, day)
	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.SourceID
	}
	want := []string{"a-0815", "e-0900", "a-0900", "e-1030"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestForDate_SkipsCancelledAndOtherDays(t *testing.T) {
	day := date(2024, 6, 1)
	cancelled := appt("a-cancel", day, caldate.TimeOfDay{Hour: 9})
	cancelled.Status = model.StatusCancelled
	appts := []model.Appointment{
		cancelled,
		appt("a-other-day", date(2024, 6, 2), caldate.TimeOfDay{Hour: 9}),
	}
	gone := event("e-cancel", day, clock(11, 0))
	gone.Status = model.EventStatusCancelled
	events := []model.Event{gone}

	if entries := ForDate(appts, events, day); len(entries) != 0 {
		t.Fatalf("expected empty agenda, got %v", entries)
	}
}

func TestForDate_ExpandsRecurrence(t *testing.T) {
	anchor := date(2024, 6, 3)
	weekly := appt("a-weekly", anchor, caldate.TimeOfDay{Hour: 14})
	weekly.Recurrence = &recurrence.Rule{Pattern: recurrence.Weekly}

	entries := ForDate([]model.Appointment{weekly}, nil, date(2024, 6, 17))
	if len(entries) != 1 {
		t.Fatalf("expected the weekly appointment to recur, got %v", entries)
	}
	if !entries[0].IsRecurring || entries[0].RecurrenceLabel != "Repeats weekly" {
		t.Fatalf("unexpected recurrence fields: %+v", entries[0])
	}

	if entries := ForDate([]model.Appointment{weekly}, nil, date(2024, 6, 18)); len(entries) != 0 {
		t.Fatalf("expected no occurrence on an off day, got %v", entries)
	}
}

func TestForDate_CompletedEventStillListed(t *testing.T) {
	day := date(2024, 6, 1)
	done := event("e-done", day, clock(8, 0))
	done.Status = model.EventStatusCompleted

	entries := ForDate(nil, []model.Event{done}, day)
	if len(entries) != 1 {
		t.Fatalf("expected completed event to remain on the agenda, got %v", entries)
	}
}

func TestMarkersForMonth(t *testing.T) {
	first := event("e1", date(2024, 6, 5), nil)
	first.Color = "#111111"
	second := event("e2", date(2024, 6, 5), clock(9, 0))
	second.Color = "#222222"
	events := []model.Event{first, second}

	a := appt("a1", date(2024, 6, 5), caldate.TimeOfDay{Hour: 10})
	a.Color = "#333333"
	outside := appt("a2", date(2024, 7, 1), caldate.TimeOfDay{Hour: 10})
	appts := []model.Appointment{a, outside}

	markers := MarkersForMonth(appts, events, 2024, 6)
	colors := markers[5]
	want := []string{"#111111", "#222222", "#333333"}
	if len(colors) != len(want) {
		t.Fatalf("expected %d markers on the 5th, got %v", len(want), colors)
	}
	for i := range want {
		if colors[i] != want[i] {
			t.Fatalf("expected marker order %v, got %v", want, colors)
		}
	}
	if _, ok := markers[1]; ok {
		t.Fatal("expected no marker outside the entity dates")
	}
	if len(markers) != 1 {
		t.Fatalf("expected markers on one day only, got %v", markers)
	}
}

func TestMarkersForMonth_KeepsDuplicateColors(t *testing.T) {
	e1 := event("e1", date(2024, 6, 12), nil)
	e2 := event("e2", date(2024, 6, 12), nil)
	// Same category, same derived color; the dot count still matters.
	markers := MarkersForMonth(nil, []model.Event{e1, e2}, 2024, 6)
	if len(markers[12]) != 2 {
		t.Fatalf("expected 2 markers, got %v", markers[12])
	}
}

func TestMarkersForMonth_ExpandsRecurrenceIntoMonth(t *testing.T) {
	daily := event("e-daily", date(2024, 5, 20), nil)
	daily.Recurrence = &recurrence.Rule{Pattern: recurrence.Daily}

	markers := MarkersForMonth(nil, []model.Event{daily}, 2024, 6)
	if len(markers) != 30 {
		t.Fatalf("expected a marker on every June day, got %d days", len(markers))
	}

	end := date(2024, 6, 10)
	capped := event("e-capped", date(2024, 6, 1), nil)
	capped.Recurrence = &recurrence.Rule{Pattern: recurrence.Daily, EndDate: &end}
	markers = MarkersForMonth(nil, []model.Event{capped}, 2024, 6)
	if len(markers) != 10 {
		t.Fatalf("expected markers through June 10 only, got %d days", len(markers))
	}
}

func TestView_ReplaceAndFocus(t *testing.T) {
	day := date(2024, 6, 1)
	v := NewView(day)

	snap := v.ReplaceEvents([]model.Event{event("e1", day, nil)})
	if len(snap.Entries) != 1 || snap.DataUnavailable {
		t.Fatalf("unexpected snapshot after events: %+v", snap)
	}

	snap = v.ReplaceAppointments([]model.Appointment{appt("a1", day, caldate.TimeOfDay{Hour: 9})})
	if len(snap.Entries) != 2 {
		t.Fatalf("expected both streams merged, got %d entries", len(snap.Entries))
	}

	// Moving focus keeps the held streams and recomputes for the new day.
	snap = v.Focus(date(2024, 6, 2), 2024, 6)
	if len(snap.Entries) != 0 {
		t.Fatalf("expected empty agenda on the 2nd, got %v", snap.Entries)
	}
	if len(snap.Markers[1]) != 2 {
		t.Fatalf("expected markers for June 1 to survive focus change, got %v", snap.Markers)
	}
}

func TestView_ReplaceIsIdempotentAndOrderIndependent(t *testing.T) {
	day := date(2024, 6, 1)
	appts := []model.Appointment{appt("a1", day, caldate.TimeOfDay{Hour: 9})}
	events := []model.Event{event("e1", day, nil)}

	a := NewView(day)
	a.ReplaceAppointments(appts)
	a.ReplaceEvents(events)
	first := a.Snapshot()

	b := NewView(day)
	b.ReplaceEvents(events)
	b.ReplaceAppointments(appts)
	b.ReplaceEvents(events)
	second := b.Snapshot()

	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("expected identical aggregations, got %d vs %d entries", len(first.Entries), len(second.Entries))
	}
	for i := range first.Entries {
		if first.Entries[i].SourceID != second.Entries[i].SourceID {
			t.Fatalf("entry %d differs: %+v vs %+v", i, first.Entries[i], second.Entries[i])
		}
	}
}

func TestView_FailRetainsLastGood(t *testing.T) {
	day := date(2024, 6, 1)
	v := NewView(day)
	v.ReplaceEvents([]model.Event{event("e1", day, nil)})

	snap := v.Fail()
	if !snap.DataUnavailable {
		t.Fatal("expected DataUnavailable after a stream failure")
	}
	if len(snap.Entries) != 1 {
		t.Fatalf("expected the last good agenda to be retained, got %v", snap.Entries)
	}

	snap = v.ReplaceEvents([]model.Event{event("e1", day, nil), event("e2", day, nil)})
	if snap.DataUnavailable {
		t.Fatal("expected a successful replace to clear DataUnavailable")
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("expected refreshed agenda, got %v", snap.Entries)
	}
}

func TestView_SnapshotsAreIsolated(t *testing.T) {
	day := date(2024, 6, 1)
	v := NewView(day)
	v.ReplaceEvents([]model.Event{event("e1", day, nil)})

	snap := v.Snapshot()
	snap.Entries[0].DisplayTitle = "mutated"
	snap.Markers[1] = append(snap.Markers[1], "#000000")

	fresh := v.Snapshot()
	if fresh.Entries[0].DisplayTitle == "mutated" {
		t.Fatal("expected snapshot entries to be copies")
	}
	if len(fresh.Markers[1]) != 1 {
		t.Fatalf("expected snapshot markers to be copies, got %v", fresh.Markers[1])
	}
}
