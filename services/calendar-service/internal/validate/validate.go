// Package validate checks candidate appointments and events before they
// are persisted. Every violated rule is reported, not just the first, so
// the client can show the complete list in one pass. Validation never has
// side effects and judges "past" against an explicit now parameter.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

// Error codes carried by FieldError.
const (
	CodeRequired          = "required"
	CodeInvalidFormat     = "invalid_format"
	CodePastDate          = "past_date"
	CodeOutOfRange        = "out_of_range"
	CodeInvalidRecurrence = "invalid_recurrence"
)

// Duration bounds for appointments, in minutes.
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 240
)

// Reminder defaults applied when the client sends none.
const (
	DefaultReminderOffsetMinutes = 30
	DefaultReminderChannel       = model.ChannelNotification
)

// FieldError names one violated rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RecurrenceInput is the raw recurrence block of a request. An empty
// EndDate means the series repeats indefinitely.
type RecurrenceInput struct {
	Pattern string
	EndDate string
}

// ReminderInput is the raw reminder block of a request.
type ReminderInput struct {
	OffsetMinutes int
	Channel       string
}

// AppointmentInput carries the raw request fields for an appointment.
// Date and Time stay strings here so format violations surface as field
// errors instead of decode failures.
type AppointmentInput struct {
	DoctorName      string
	Specialty       string
	Date            string
	Time            string
	Location        string
	DurationMinutes int
	Recurrence      *RecurrenceInput
	Reminder        *ReminderInput
	TimeZoneName    string
	Color           string
}

// EventInput carries the raw request fields for a calendar event. An
// all-day event has IsAllDay set and no time.
type EventInput struct {
	Title       string
	Description string
	Date        string
	Time        string
	Location    string
	Category    string
	IsAllDay    bool
	Recurrence  *RecurrenceInput
	Color       string
}

// Appointment validates in and, when clean, returns the appointment ready
// to persist (status upcoming, reminder defaults applied). On any
// violation the returned appointment is the zero value.
func Appointment(in AppointmentInput, now time.Time) (model.Appointment, []FieldError) {
	var errs []FieldError

	doctorName := strings.TrimSpace(in.DoctorName)
	if doctorName == "" {
		errs = append(errs, FieldError{Field: "doctor_name", Code: CodeRequired, Message: "doctor name is required"})
	}
	specialty := strings.TrimSpace(in.Specialty)
	if specialty == "" {
		errs = append(errs, FieldError{Field: "specialty", Code: CodeRequired, Message: "specialty is required"})
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		errs = append(errs, FieldError{Field: "location", Code: CodeRequired, Message: "location is required"})
	}

	date, dateOK, dateErrs := checkDate(in.Date, now)
	errs = append(errs, dateErrs...)

	var clock caldate.TimeOfDay
	timeOK := false
	if strings.TrimSpace(in.Time) == "" {
		errs = append(errs, FieldError{Field: "time", Code: CodeRequired, Message: "time is required"})
	} else if parsed, err := caldate.ParseClock(strings.TrimSpace(in.Time)); err != nil {
		errs = append(errs, FieldError{Field: "time", Code: CodeInvalidFormat, Message: "time must be HH:MM on a 24-hour clock"})
	} else {
		clock = parsed
		timeOK = true
	}
	if dateOK && timeOK && date == caldate.FromTime(now) && clock.Minutes() < caldate.ClockFromTime(now).Minutes() {
		errs = append(errs, FieldError{Field: "time", Code: CodePastDate, Message: "time has already passed today"})
	}

	if in.DurationMinutes < MinDurationMinutes || in.DurationMinutes > MaxDurationMinutes {
		errs = append(errs, FieldError{
			Field: "duration_minutes",
			Code:  CodeOutOfRange,
			Message: fmt.Sprintf("duration must be between %d and %d minutes",
				MinDurationMinutes, MaxDurationMinutes),
		})
	}

	rule, recErrs := checkRecurrence(in.Recurrence, date, dateOK)
	errs = append(errs, recErrs...)

	reminder := model.Reminder{OffsetMinutes: DefaultReminderOffsetMinutes, Channel: DefaultReminderChannel}
	if in.Reminder != nil {
		reminder = model.Reminder{OffsetMinutes: in.Reminder.OffsetMinutes, Channel: strings.TrimSpace(in.Reminder.Channel)}
		if !model.KnownChannel(reminder.Channel) {
			errs = append(errs, FieldError{Field: "reminder.channel", Code: CodeInvalidFormat, Message: "channel must be notification, email, sms, or all"})
		}
		if reminder.OffsetMinutes < 0 {
			errs = append(errs, FieldError{Field: "reminder.offset_minutes", Code: CodeOutOfRange, Message: "reminder offset cannot be negative"})
		}
	}

	color := strings.TrimSpace(in.Color)
	if color != "" && !validHexColor(color) {
		errs = append(errs, FieldError{Field: "color", Code: CodeInvalidFormat, Message: "color must be #RRGGBB"})
	}

	if len(errs) > 0 {
		return model.Appointment{}, errs
	}
	return model.Appointment{
		DoctorName:      doctorName,
		Specialty:       specialty,
		Date:            date,
		Time:            clock,
		Location:        location,
		DurationMinutes: in.DurationMinutes,
		Status:          model.StatusUpcoming,
		Recurrence:      rule,
		Reminder:        reminder,
		TimeZoneName:    strings.TrimSpace(in.TimeZoneName),
		Color:           color,
	}, nil
}

// Event validates in and, when clean, returns the event ready to persist.
// An empty time with IsAllDay unset is accepted as all-day, mirroring the
// "no time means whole day" storage convention.
func Event(in EventInput, now time.Time) (model.Event, []FieldError) {
	var errs []FieldError

	title := strings.TrimSpace(in.Title)
	if title == "" {
		errs = append(errs, FieldError{Field: "title", Code: CodeRequired, Message: "title is required"})
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		errs = append(errs, FieldError{Field: "location", Code: CodeRequired, Message: "location is required"})
	}

	date, dateOK, dateErrs := checkDate(in.Date, now)
	errs = append(errs, dateErrs...)

	allDay := in.IsAllDay || strings.TrimSpace(in.Time) == ""
	var clock *caldate.TimeOfDay
	if !allDay {
		parsed, err := caldate.ParseClock(strings.TrimSpace(in.Time))
		if err != nil {
			errs = append(errs, FieldError{Field: "time", Code: CodeInvalidFormat, Message: "time must be HH:MM on a 24-hour clock"})
		} else {
			clock = &parsed
			if dateOK && date == caldate.FromTime(now) && parsed.Minutes() < caldate.ClockFromTime(now).Minutes() {
				errs = append(errs, FieldError{Field: "time", Code: CodePastDate, Message: "time has already passed today"})
			}
		}
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = model.CategoryOther
	} else if !model.KnownCategory(category) {
		errs = append(errs, FieldError{Field: "category", Code: CodeInvalidFormat, Message: "category must be personal, work, social, health, or other"})
	}

	rule, recErrs := checkRecurrence(in.Recurrence, date, dateOK)
	errs = append(errs, recErrs...)

	color := strings.TrimSpace(in.Color)
	if color != "" && !validHexColor(color) {
		errs = append(errs, FieldError{Field: "color", Code: CodeInvalidFormat, Message: "color must be #RRGGBB"})
	}

	if len(errs) > 0 {
		return model.Event{}, errs
	}
	return model.Event{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Date:        date,
		Time:        clock,
		Location:    location,
		Category:    category,
		IsAllDay:    allDay,
		Recurrence:  rule,
		Status:      model.EventStatusUpcoming,
		Color:       color,
	}, nil
}

// checkDate parses and bounds a date string. A valid date strictly before
// today is rejected with a single past_date error.
func checkDate(raw string, now time.Time) (caldate.Date, bool, []FieldError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return caldate.Date{}, false, []FieldError{{Field: "date", Code: CodeRequired, Message: "date is required"}}
	}
	date, err := caldate.ParseDate(trimmed)
	if err != nil {
		return caldate.Date{}, false, []FieldError{{Field: "date", Code: CodeInvalidFormat, Message: "date must be YYYY-MM-DD"}}
	}
	if date.Before(caldate.FromTime(now)) {
		return date, false, []FieldError{{Field: "date", Code: CodePastDate, Message: "date is in the past"}}
	}
	return date, true, nil
}

func checkRecurrence(in *RecurrenceInput, date caldate.Date, dateOK bool) (*recurrence.Rule, []FieldError) {
	if in == nil {
		return nil, nil
	}
	var errs []FieldError

	pattern := strings.TrimSpace(in.Pattern)
	if !recurrence.KnownPattern(pattern) {
		errs = append(errs, FieldError{Field: "recurrence.pattern", Code: CodeInvalidRecurrence, Message: "pattern must be daily, weekly, biweekly, monthly, quarterly, or yearly"})
	}

	rule := &recurrence.Rule{Pattern: pattern}
	if strings.TrimSpace(in.EndDate) != "" {
		end, err := caldate.ParseDate(strings.TrimSpace(in.EndDate))
		if err != nil {
			errs = append(errs, FieldError{Field: "recurrence.end_date", Code: CodeInvalidFormat, Message: "end date must be YYYY-MM-DD"})
		} else {
			rule.EndDate = &end
			if dateOK && end.Before(date) {
				errs = append(errs, FieldError{Field: "recurrence.end_date", Code: CodeInvalidRecurrence, Message: "end date is before the start date"})
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return rule, nil
}

func validHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
