package validate

import (
	"testing"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func validAppointment() AppointmentInput {
	return AppointmentInput{
		DoctorName:      "Dr. Okafor",
		Specialty:       "Cardiology",
		Date:            "2024-06-11",
		Time:            "10:30",
		Location:        "Room 4, Westside Clinic",
		DurationMinutes: 30,
	}
}

func codesByField(errs []FieldError) map[string]string {
	m := make(map[string]string, len(errs))
	for _, e := range errs {
		m[e.Field] = e.Code
	}
	return m
}

func TestAppointment_Valid(t *testing.T) {
	appt, errs := Appointment(validAppointment(), now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if appt.Status != model.StatusUpcoming {
		t.Fatalf("expected status upcoming, got %q", appt.Status)
	}
	if appt.Reminder.OffsetMinutes != DefaultReminderOffsetMinutes || appt.Reminder.Channel != DefaultReminderChannel {
		t.Fatalf("expected reminder defaults, got %+v", appt.Reminder)
	}
	if appt.Date.String() != "2024-06-11" || appt.Time.String() != "10:30" {
		t.Fatalf("unexpected date/time: %s %s", appt.Date, appt.Time)
	}
}

func TestAppointment_PastDateIsTheOnlyError(t *testing.T) {
	in := validAppointment()
	in.Date = "2024-06-09"

	_, errs := Appointment(in, now)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "date" || errs[0].Code != CodePastDate {
		t.Fatalf("expected past_date on date, got %+v", errs[0])
	}
}

func TestAppointment_TodayEarlierTimeRejected(t *testing.T) {
	in := validAppointment()
	in.Date = "2024-06-10"
	in.Time = "11:59"

	_, errs := Appointment(in, now)
	if len(errs) != 1 || errs[0].Field != "time" || errs[0].Code != CodePastDate {
		t.Fatalf("expected past_date on time, got %v", errs)
	}

	// The current minute itself is still allowed.
	in.Time = "12:00"
	if _, errs := Appointment(in, now); len(errs) != 0 {
		t.Fatalf("expected 12:00 to be accepted at noon, got %v", errs)
	}
}

func TestAppointment_DurationBounds(t *testing.T) {
	for _, mins := range []int{10, 300, 0, -5} {
		in := validAppointment()
		in.DurationMinutes = mins
		_, errs := Appointment(in, now)
		if len(errs) != 1 || errs[0].Field != "duration_minutes" || errs[0].Code != CodeOutOfRange {
			t.Fatalf("expected out_of_range for %d minutes, got %v", mins, errs)
		}
	}
	for _, mins := range []int{15, 240, 60} {
		in := validAppointment()
		in.DurationMinutes = mins
		if _, errs := Appointment(in, now); len(errs) != 0 {
			t.Fatalf("expected %d minutes to be accepted, got %v", mins, errs)
		}
	}
}

func TestAppointment_AllViolationsReported(t *testing.T) {
	in := AppointmentInput{
		DoctorName:      "  ",
		Specialty:       "",
		Location:        "",
		Date:            "06/11/2024",
		Time:            "10:30pm",
		DurationMinutes: 5,
	}

	_, errs := Appointment(in, now)
	codes := codesByField(errs)
	want := map[string]string{
		"doctor_name":      CodeRequired,
		"specialty":        CodeRequired,
		"location":         CodeRequired,
		"date":             CodeInvalidFormat,
		"time":             CodeInvalidFormat,
		"duration_minutes": CodeOutOfRange,
	}
	if len(errs) != len(want) {
		t.Fatalf("expected %d errors, got %d: %v", len(want), len(errs), errs)
	}
	for field, code := range want {
		if codes[field] != code {
			t.Fatalf("expected %s on %s, got %q", code, field, codes[field])
		}
	}
}

func TestAppointment_Recurrence(t *testing.T) {
	in := validAppointment()
	in.Recurrence = &RecurrenceInput{Pattern: "weekly"}
	appt, errs := Appointment(in, now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if appt.Recurrence == nil || appt.Recurrence.Pattern != "weekly" || appt.Recurrence.EndDate != nil {
		t.Fatalf("unexpected recurrence: %+v", appt.Recurrence)
	}

	in.Recurrence = &RecurrenceInput{Pattern: "hourly"}
	_, errs = Appointment(in, now)
	if len(errs) != 1 || errs[0].Field != "recurrence.pattern" || errs[0].Code != CodeInvalidRecurrence {
		t.Fatalf("expected invalid_recurrence on pattern, got %v", errs)
	}

	in.Recurrence = &RecurrenceInput{Pattern: "weekly", EndDate: "2024-06-01"}
	_, errs = Appointment(in, now)
	if len(errs) != 1 || errs[0].Field != "recurrence.end_date" || errs[0].Code != CodeInvalidRecurrence {
		t.Fatalf("expected invalid_recurrence on end_date before start, got %v", errs)
	}

	in.Recurrence = &RecurrenceInput{Pattern: "weekly", EndDate: "June 30"}
	_, errs = Appointment(in, now)
	if len(errs) != 1 || errs[0].Field != "recurrence.end_date" || errs[0].Code != CodeInvalidFormat {
		t.Fatalf("expected invalid_format on unparseable end_date, got %v", errs)
	}
}

func TestAppointment_ReminderChannel(t *testing.T) {
	in := validAppointment()
	in.Reminder = &ReminderInput{OffsetMinutes: 60, Channel: "pager"}
	_, errs := Appointment(in, now)
	if len(errs) != 1 || errs[0].Field != "reminder.channel" {
		t.Fatalf("expected channel error, got %v", errs)
	}

	in.Reminder = &ReminderInput{OffsetMinutes: -10, Channel: "sms"}
	_, errs = Appointment(in, now)
	if len(errs) != 1 || errs[0].Field != "reminder.offset_minutes" || errs[0].Code != CodeOutOfRange {
		t.Fatalf("expected offset error, got %v", errs)
	}

	in.Reminder = &ReminderInput{OffsetMinutes: 1440, Channel: "all"}
	appt, errs := Appointment(in, now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if appt.Reminder.OffsetMinutes != 1440 || appt.Reminder.Channel != "all" {
		t.Fatalf("unexpected reminder: %+v", appt.Reminder)
	}
}

func TestEvent_AllDayNeedsNoTime(t *testing.T) {
	in := EventInput{
		Title:    "Family reunion",
		Date:     "2024-06-15",
		Location: "Riverside Park",
		Category: "social",
		IsAllDay: true,
	}
	evt, errs := Event(in, now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if !evt.IsAllDay || evt.Time != nil {
		t.Fatalf("expected all-day event with nil time, got %+v", evt)
	}

	// An empty time with the flag unset also means all-day.
	in.IsAllDay = false
	in.Time = ""
	evt, errs = Event(in, now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if !evt.IsAllDay {
		t.Fatal("expected empty time to imply all-day")
	}
}

func TestEvent_TimedEvent(t *testing.T) {
	in := EventInput{
		Title:    "Dentist follow-up call",
		Date:     "2024-06-10",
		Time:     "15:00",
		Location: "Home",
		Category: "health",
	}
	evt, errs := Event(in, now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if evt.IsAllDay || evt.Time == nil || evt.Time.String() != "15:00" {
		t.Fatalf("unexpected event time: %+v", evt)
	}

	in.Time = "09:00"
	_, errs = Event(in, now)
	if len(errs) != 1 || errs[0].Code != CodePastDate {
		t.Fatalf("expected past_date for earlier time today, got %v", errs)
	}
}

func TestEvent_CategoryDefaultsToOther(t *testing.T) {
	in := EventInput{Title: "Errand", Date: "2024-06-15", Location: "Downtown", IsAllDay: true}
	evt, errs := Event(in, now)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if evt.Category != model.CategoryOther {
		t.Fatalf("expected category other, got %q", evt.Category)
	}

	in.Category = "festivities"
	_, errs = Event(in, now)
	if len(errs) != 1 || errs[0].Field != "category" || errs[0].Code != CodeInvalidFormat {
		t.Fatalf("expected invalid_format on category, got %v", errs)
	}
}

func TestEvent_ColorFormat(t *testing.T) {
	in := EventInput{Title: "Trip", Date: "2024-07-01", Location: "Airport", IsAllDay: true, Color: "#12AB9f"}
	if _, errs := Event(in, now); len(errs) != 0 {
		t.Fatalf("expected valid hex color, got %v", errs)
	}
	in.Color = "blue"
	if _, errs := Event(in, now); len(errs) != 1 || errs[0].Field != "color" {
		t.Fatalf("expected color error, got %v", errs)
	}
}
