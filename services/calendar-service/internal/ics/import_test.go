package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

func icsPayload(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func importOpts() ImportOptions {
	return ImportOptions{
		Location:    time.UTC,
		From:        date(2024, 6, 1),
		HorizonDays: 30,
	}
}

func TestImportMixedFeed(t *testing.T) {
	body := icsPayload(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"UID:one@test",
		"DTSTART:20240610T140000Z",
		"SUMMARY:Physio follow-up\\, clinic",
		"DESCRIPTION:Bring referral\\nand insurance card",
		"LOCATION:Room 2",
		"CATEGORIES:Health",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:two@test",
		"DTSTART:20240612T090000Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20240613T090000Z",
		"SUMMARY:Morning walk",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:three@test",
		"DTSTART;VALUE=DATE:20240620",
		"SUMMARY:Wellness day",
		"CATEGORIES:Errands",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:four@test",
		"DTSTART:20240611T100000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:five@test",
		"DTSTART:20240611T100000Z",
		"SUMMARY:Called off upstream",
		"STATUS:CANCELLED",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	res, err := Import(body, importOpts())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Skipped != 2 {
		t.Fatalf("expected 2 skipped vevents (no summary, cancelled), got %d", res.Skipped)
	}
	if len(res.Events) != 6 {
		t.Fatalf("expected 6 materialized events, got %d", len(res.Events))
	}

	physio := res.Events[0]
	if physio.Title != "Physio follow-up, clinic" {
		t.Fatalf("expected escaped comma to be unescaped, got %q", physio.Title)
	}
	if physio.Description != "Bring referral\nand insurance card" {
		t.Fatalf("expected escaped newline to be unescaped, got %q", physio.Description)
	}
	if physio.Location != "Room 2" {
		t.Fatalf("expected location Room 2, got %q", physio.Location)
	}
	if physio.Category != model.CategoryHealth {
		t.Fatalf("expected category health, got %q", physio.Category)
	}
	if physio.Date != date(2024, 6, 10) {
		t.Fatalf("expected date 2024-06-10, got %s", physio.Date)
	}
	if physio.Time == nil || physio.Time.Hour != 14 || physio.Time.Minute != 0 {
		t.Fatalf("expected time 14:00, got %v", physio.Time)
	}
	if physio.IsAllDay {
		t.Fatal("timed vevent must not import as all-day")
	}
	if physio.Status != model.EventStatusUpcoming {
		t.Fatalf("expected upcoming status, got %q", physio.Status)
	}

	walks := res.Events[1:5]
	wantDays := []int{12, 14, 15, 16}
	for i, w := range walks {
		if w.Title != "Morning walk" {
			t.Fatalf("walk %d: expected series title, got %q", i, w.Title)
		}
		if w.Date != date(2024, 6, wantDays[i]) {
			t.Fatalf("walk %d: expected 2024-06-%02d, got %s", i, wantDays[i], w.Date)
		}
		if w.Time == nil || w.Time.Hour != 9 {
			t.Fatalf("walk %d: expected 09:00, got %v", i, w.Time)
		}
		if w.Recurrence != nil {
			t.Fatalf("walk %d: materialized occurrences must be one-off", i)
		}
		if w.Category != model.CategoryOther {
			t.Fatalf("walk %d: expected default category other, got %q", i, w.Category)
		}
	}

	wellness := res.Events[5]
	if !wellness.IsAllDay || wellness.Time != nil {
		t.Fatalf("expected all-day import, got allDay=%v time=%v", wellness.IsAllDay, wellness.Time)
	}
	if wellness.Date != date(2024, 6, 20) {
		t.Fatalf("expected date 2024-06-20, got %s", wellness.Date)
	}
	if wellness.Category != model.CategoryOther {
		t.Fatalf("unrecognized CATEGORIES must map to other, got %q", wellness.Category)
	}
}

func TestImportWindowsUnboundedSeries(t *testing.T) {
	body := icsPayload(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:weekly@test",
		"DTSTART:20240603T080000Z",
		"RRULE:FREQ=WEEKLY",
		"SUMMARY:Physio",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	opts := importOpts()
	opts.HorizonDays = 14

	res, err := Import(body, opts)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 occurrences inside a 14-day window, got %d", len(res.Events))
	}
	if res.Events[0].Date != date(2024, 6, 3) || res.Events[1].Date != date(2024, 6, 10) {
		t.Fatalf("expected 2024-06-03 and 2024-06-10, got %s and %s", res.Events[0].Date, res.Events[1].Date)
	}
}

func TestImportKeepsOneOffOutsideWindow(t *testing.T) {
	body := icsPayload(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:old@test",
		"DTSTART:20230101T120000Z",
		"SUMMARY:Archived visit",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	res, err := Import(body, importOpts())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected the past one-off to be kept, got %d events", len(res.Events))
	}
	if res.Events[0].Date != date(2023, 1, 1) {
		t.Fatalf("expected date 2023-01-01, got %s", res.Events[0].Date)
	}
}

func TestImportBadRuleDegradesToAnchor(t *testing.T) {
	body := icsPayload(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:bad@test",
		"DTSTART:20240610T140000Z",
		"RRULE:FREQ=BOGUS",
		"SUMMARY:Odd series",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	res, err := Import(body, importOpts())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected an unparseable rule to keep its anchor, got %d events", len(res.Events))
	}
	if res.Events[0].Date != date(2024, 6, 10) {
		t.Fatalf("expected anchor date, got %s", res.Events[0].Date)
	}
}

func TestImportEmptyPayload(t *testing.T) {
	if _, err := Import([]byte("  \n"), importOpts()); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestImportMalformedPayload(t *testing.T) {
	if _, err := Import([]byte("this is not a calendar"), importOpts()); err == nil {
		t.Fatal("expected a parse error for a non-ics payload")
	}
}
