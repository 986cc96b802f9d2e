package model

import (
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

// Appointment statuses. "past" is never written to storage; it is derived
// from the clock on read so the transition happens without user action.
const (
	StatusUpcoming  = "upcoming"
	StatusPast      = "past"
	StatusCancelled = "cancelled"
)

// Reminder channels.
const (
	ChannelNotification = "notification"
	ChannelEmail        = "email"
	ChannelSMS          = "sms"
	ChannelAll          = "all"
)

func KnownChannel(c string) bool {
	switch c {
	case ChannelNotification, ChannelEmail, ChannelSMS, ChannelAll:
		return true
	}
	return false
}

// DefaultAppointmentColor marks appointments that were saved without an
// explicit color.
const DefaultAppointmentColor = "#4A90D9"

// Reminder is the notification preference embedded in an appointment.
type Reminder struct {
	OffsetMinutes int
	Channel       string
}

// Appointment is a scheduled visit with a care provider. Date and Time are
// wall-clock values; TimeZoneName records where the user was when booking
// and is informational only, never used for conversion. Appointments are
// never hard-deleted, only cancelled.
type Appointment struct {
	ID              string
	OwnerID         string
	DoctorName      string
	Specialty       string
	Date            caldate.Date
	Time            caldate.TimeOfDay
	Location        string
	DurationMinutes int
	Status          string
	Recurrence      *recurrence.Rule
	Reminder        Reminder
	TimeZoneName    string
	Color           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

// EffectiveStatus resolves the stored status against the clock: an
// upcoming appointment whose start has passed reports as past. Cancelled
// stays cancelled.
func (a Appointment) EffectiveStatus(now time.Time) string {
	if a.Status == StatusCancelled {
		return StatusCancelled
	}
	today := caldate.FromTime(now)
	if a.Date.Before(today) {
		return StatusPast
	}
	if a.Date == today && a.Time.Minutes() < caldate.ClockFromTime(now).Minutes() {
		return StatusPast
	}
	return StatusUpcoming
}

// DisplayColor returns the stored color, falling back to the default.
func (a Appointment) DisplayColor() string {
	if a.Color != "" {
		return a.Color
	}
	return DefaultAppointmentColor
}
