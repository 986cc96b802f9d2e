package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/agenda"
	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
	"github.com/carebook-app/carebook/services/calendar-service/internal/storage"
	"github.com/carebook-app/carebook/services/calendar-service/internal/validate"
)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func sampleAppointment() model.Appointment {
	end := caldate.Date{Year: 2025, Month: 3, Day: 1}
	return model.Appointment{
		ID:              "appt-1",
		OwnerID:         "owner-1",
		DoctorName:      "Dr. Osei",
		Specialty:       "Cardiology",
		Date:            caldate.Date{Year: 2024, Month: 12, Day: 5},
		Time:            caldate.TimeOfDay{Hour: 10, Minute: 30},
		Location:        "Clinic B",
		DurationMinutes: 45,
		Status:          model.StatusUpcoming,
		Recurrence:      &recurrence.Rule{Pattern: recurrence.Monthly, EndDate: &end},
		Reminder:        model.Reminder{OffsetMinutes: 60, Channel: model.ChannelEmail},
		TimeZoneName:    "Europe/Berlin",
		CreatedAt:       time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestMergeAppointmentPatch_PartialOverride(t *testing.T) {
	existing := sampleAppointment()

	in, ok := mergeAppointmentPatch(existing, appointmentPatch{
		Time:            strPtr("14:00"),
		DurationMinutes: intPtr(30),
	})
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if in.Time != "14:00" || in.DurationMinutes != 30 {
		t.Fatalf("expected patched time and duration, got %q %d", in.Time, in.DurationMinutes)
	}
	if in.DoctorName != "Dr. Osei" || in.Date != "2024-12-05" {
		t.Fatalf("expected untouched fields preserved, got %q %q", in.DoctorName, in.Date)
	}
	if in.Recurrence == nil || in.Recurrence.Pattern != recurrence.Monthly || in.Recurrence.EndDate != "2025-03-01" {
		t.Fatalf("expected stored recurrence carried over, got %+v", in.Recurrence)
	}
	if in.Reminder == nil || in.Reminder.OffsetMinutes != 60 || in.Reminder.Channel != model.ChannelEmail {
		t.Fatalf("expected stored reminder carried over, got %+v", in.Reminder)
	}
}

func TestMergeAppointmentPatch_NullClearsRecurrence(t *testing.T) {
	in, ok := mergeAppointmentPatch(sampleAppointment(), appointmentPatch{
		Recurrence: json.RawMessage("null"),
	})
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if in.Recurrence != nil {
		t.Fatalf("expected null to clear the recurrence, got %+v", in.Recurrence)
	}
}

func TestMergeAppointmentPatch_ReplacesRecurrence(t *testing.T) {
	in, ok := mergeAppointmentPatch(sampleAppointment(), appointmentPatch{
		Recurrence: json.RawMessage(`{"pattern":"weekly"}`),
	})
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if in.Recurrence == nil || in.Recurrence.Pattern != recurrence.Weekly || in.Recurrence.EndDate != "" {
		t.Fatalf("expected replacement recurrence, got %+v", in.Recurrence)
	}
}

func TestMergeAppointmentPatch_NullReminderRestoresDefaults(t *testing.T) {
	in, ok := mergeAppointmentPatch(sampleAppointment(), appointmentPatch{
		Reminder: json.RawMessage("null"),
	})
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if in.Reminder != nil {
		t.Fatalf("expected nil reminder input so validation re-applies defaults, got %+v", in.Reminder)
	}
}

func TestMergeAppointmentPatch_BadBlockRejected(t *testing.T) {
	if _, ok := mergeAppointmentPatch(sampleAppointment(), appointmentPatch{
		Recurrence: json.RawMessage(`"weekly"`),
	}); ok {
		t.Fatal("expected non-object recurrence to be rejected")
	}
	if _, ok := mergeAppointmentPatch(sampleAppointment(), appointmentPatch{
		Reminder: json.RawMessage(`[1,2]`),
	}); ok {
		t.Fatal("expected non-object reminder to be rejected")
	}
}

func TestMergeEventPatch_AllDayDropsTime(t *testing.T) {
	tm := caldate.TimeOfDay{Hour: 18, Minute: 0}
	existing := model.Event{
		Title:    "Dinner",
		Date:     caldate.Date{Year: 2024, Month: 12, Day: 24},
		Time:     &tm,
		Category: model.CategorySocial,
		Status:   model.EventStatusUpcoming,
	}

	allDay := true
	in, ok := mergeEventPatch(existing, eventPatch{IsAllDay: &allDay})
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if !in.IsAllDay || in.Time != "" {
		t.Fatalf("expected all-day to clear the time, got allday=%v time=%q", in.IsAllDay, in.Time)
	}
}

func TestReplayIdempotent(t *testing.T) {
	rw := httptest.NewRecorder()
	if replayIdempotent(rw, storage.IdempotencyRecord{}, false) {
		t.Fatal("expected no replay for an unknown key")
	}

	// A key locked but never finalized must not replay either.
	rw = httptest.NewRecorder()
	if replayIdempotent(rw, storage.IdempotencyRecord{IdempotencyKey: "k"}, true) {
		t.Fatal("expected no replay for an unfinalized key")
	}

	rw = httptest.NewRecorder()
	rec := storage.IdempotencyRecord{
		EntityID:        "appt-1",
		StatusCode:      http.StatusCreated,
		ResponsePayload: []byte(`{"id":"appt-1"}`),
	}
	if !replayIdempotent(rw, rec, true) {
		t.Fatal("expected replay for a finalized key")
	}
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected stored status 201, got %d", rw.Code)
	}
	if rw.Body.String() != `{"id":"appt-1"}` {
		t.Fatalf("expected stored payload, got %s", rw.Body.String())
	}
}

func TestWriteFieldErrors(t *testing.T) {
	rw := httptest.NewRecorder()
	writeFieldErrors(rw, []validate.FieldError{
		{Field: "date", Code: "required", Message: "date is required"},
		{Field: "time", Code: "invalid_format", Message: "time must be HH:MM"},
	})
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	var body struct {
		Errors []struct {
			Field string `json:"field"`
			Code  string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not json: %v", err)
	}
	if len(body.Errors) != 2 || body.Errors[0].Field != "date" || body.Errors[1].Code != "invalid_format" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestAppointmentResponseShape(t *testing.T) {
	appt := sampleAppointment()
	now := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

	dto := appointmentResponse(appt, now)
	if dto.Status != model.StatusUpcoming {
		t.Fatalf("expected upcoming before the date, got %s", dto.Status)
	}
	if dto.Color != model.DefaultAppointmentColor {
		t.Fatalf("expected default color fallback, got %s", dto.Color)
	}
	if dto.Recurrence == nil || dto.Recurrence.Label == "" || *dto.Recurrence.EndDate != "2025-03-01" {
		t.Fatalf("unexpected recurrence dto: %+v", dto.Recurrence)
	}
	if dto.CancelledAt != "" {
		t.Fatalf("expected empty cancelled_at, got %s", dto.CancelledAt)
	}

	// The same appointment reads as past once the day is over.
	later := time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC)
	if got := appointmentResponse(appt, later).Status; got != model.StatusPast {
		t.Fatalf("expected past after the date, got %s", got)
	}

	cancelledAt := time.Date(2024, 11, 25, 10, 0, 0, 0, time.UTC)
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	dto = appointmentResponse(appt, later)
	if dto.Status != model.StatusCancelled || dto.CancelledAt != "2024-11-25T10:00:00Z" {
		t.Fatalf("expected cancelled with timestamp, got %s %s", dto.Status, dto.CancelledAt)
	}
}

func TestEventResponseExplicitNullTime(t *testing.T) {
	evt := model.Event{
		ID:       "evt-1",
		Title:    "Street fair",
		Date:     caldate.Date{Year: 2024, Month: 7, Day: 14},
		Category: model.CategorySocial,
		IsAllDay: true,
		Status:   model.EventStatusUpcoming,
	}
	body, err := json.Marshal(eventResponse(evt))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(body), `"time":null`) {
		t.Fatalf("expected explicit null time for all-day event, got %s", body)
	}
	if !strings.Contains(string(body), `"recurrence":null`) {
		t.Fatalf("expected explicit null recurrence, got %s", body)
	}
}

func TestFormatMarkers(t *testing.T) {
	markers := formatMarkers(2024, 3, map[int][]string{
		5:  {"#2BB673", "#2BB673"},
		28: {"#4A90D9"},
	})
	if len(markers) != 2 {
		t.Fatalf("expected 2 marked days, got %d", len(markers))
	}
	if got := markers["2024-03-05"]; len(got) != 2 {
		t.Fatalf("expected duplicate colors preserved on 2024-03-05, got %v", got)
	}
	if got := markers["2024-03-28"]; len(got) != 1 || got[0] != "#4A90D9" {
		t.Fatalf("unexpected markers for 2024-03-28: %v", got)
	}
}

func TestParseMonth(t *testing.T) {
	year, month, err := parseMonth("2024-02")
	if err != nil || year != 2024 || month != 2 {
		t.Fatalf("expected 2024-02 to parse, got %d-%d err=%v", year, month, err)
	}
	for _, bad := range []string{"", "2024", "2024-13", "02-2024", "2024-2"} {
		if _, _, err := parseMonth(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestSnapshotFrame(t *testing.T) {
	snap := agenda.Snapshot{
		Date:  caldate.Date{Year: 2024, Month: 9, Day: 2},
		Year:  2024,
		Month: 9,
		Markers: map[int][]string{
			2: {"#4A90D9"},
		},
		DataUnavailable: true,
	}
	frame := snapshotFrame(snap)
	if frame.Type != "snapshot" || frame.Date != "2024-09-02" || frame.Month != "2024-09" {
		t.Fatalf("unexpected frame header: %+v", frame)
	}
	if frame.Agenda == nil {
		t.Fatal("expected empty agenda to serialize as [], not null")
	}
	if !frame.DataUnavailable {
		t.Fatal("expected stale flag carried through")
	}
	if _, ok := frame.Markers["2024-09-02"]; !ok {
		t.Fatalf("expected marker keyed by full date, got %v", frame.Markers)
	}
}

func TestOwnerIDHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/appointments", nil)
	if got := ownerID(req); got != "" {
		t.Fatalf("expected empty owner without header, got %q", got)
	}
	req.Header.Set("X-Owner-Id", "  owner-7  ")
	if got := ownerID(req); got != "owner-7" {
		t.Fatalf("expected trimmed owner id, got %q", got)
	}
}

func TestAggregateTypeFor(t *testing.T) {
	if got := aggregateTypeFor("calendar.event.created.v1"); got != "event" {
		t.Fatalf("expected event aggregate, got %s", got)
	}
	for _, et := range []string{"calendar.appointment.created.v1", "reminder.schedule.v1", "reminder.cancel.v1"} {
		if got := aggregateTypeFor(et); got != "appointment" {
			t.Fatalf("expected appointment aggregate for %s, got %s", et, got)
		}
	}
}
