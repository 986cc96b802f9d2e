package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/carebook-app/carebook/libs/metrics"
	"github.com/carebook-app/carebook/services/calendar-service/internal/feed"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/outbox"
	"github.com/carebook-app/carebook/services/calendar-service/internal/policy"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
	"github.com/carebook-app/carebook/services/calendar-service/internal/storage"
	"github.com/carebook-app/carebook/services/calendar-service/internal/validate"
)

// CalendarHandler serves the owner-facing calendar API. Every write goes
// through one transaction that persists the entity, records the outbox
// event, and finalizes the idempotency key; the hub is only invalidated
// after the commit succeeds, so streams never see uncommitted state.
type CalendarHandler struct {
	repo    *storage.CalendarRepository
	outbox  *outbox.Repository
	hub     *feed.Hub
	policy  policy.Provider
	logger  *slog.Logger
	metrics *metrics.CalendarMetrics
}

func NewCalendarHandler(repo *storage.CalendarRepository, outboxRepo *outbox.Repository, hub *feed.Hub, policyProvider policy.Provider, logger *slog.Logger, m *metrics.CalendarMetrics) *CalendarHandler {
	return &CalendarHandler{
		repo:    repo,
		outbox:  outboxRepo,
		hub:     hub,
		policy:  policyProvider,
		logger:  logger,
		metrics: m,
	}
}

// ownerID reads the owner identity injected by the gateway.
func ownerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Owner-Id"))
}

// ownerProfile resolves the owner's scheduling profile and time zone,
// degrading to defaults when profile-service is unreachable.
func (h *CalendarHandler) ownerProfile(ctx context.Context, owner string) (policy.Profile, *time.Location) {
	var profile policy.Profile
	if h.policy != nil {
		p, err := h.policy.OwnerProfile(ctx, owner)
		if err != nil {
			h.logger.Warn("owner profile fetch failed; using defaults", "err", err)
		} else {
			profile = p
		}
	}
	loc := time.UTC
	if profile.Timezone != "" {
		if l, err := time.LoadLocation(profile.Timezone); err == nil {
			loc = l
		} else {
			h.logger.Warn("profile time zone invalid; using utc", "tz", profile.Timezone)
		}
	}
	return profile, loc
}

type recurrenceDTO struct {
	Pattern string  `json:"pattern"`
	EndDate *string `json:"end_date"`
	Label   string  `json:"label"`
}

type reminderDTO struct {
	OffsetMinutes int    `json:"offset_minutes"`
	Channel       string `json:"channel"`
}

// appointmentDTO is the wire form of an appointment. Recurrence and its
// end date are explicit nulls, never omitted, so clients can bind them
// without probing for key presence.
type appointmentDTO struct {
	ID              string         `json:"id"`
	DoctorName      string         `json:"doctor_name"`
	Specialty       string         `json:"specialty"`
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	Location        string         `json:"location"`
	DurationMinutes int            `json:"duration_minutes"`
	Status          string         `json:"status"`
	Recurrence      *recurrenceDTO `json:"recurrence"`
	Reminder        reminderDTO    `json:"reminder"`
	TimeZone        string         `json:"time_zone,omitempty"`
	Color           string         `json:"color"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	CancelledAt     string         `json:"cancelled_at,omitempty"`
}

type eventDTO struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Date        string         `json:"date"`
	Time        *string        `json:"time"`
	Location    string         `json:"location"`
	Category    string         `json:"category"`
	IsAllDay    bool           `json:"is_all_day"`
	Recurrence  *recurrenceDTO `json:"recurrence"`
	Status      string         `json:"status"`
	Color       string         `json:"color"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

func appointmentResponse(a model.Appointment, now time.Time) appointmentDTO {
	dto := appointmentDTO{
		ID:              a.ID,
		DoctorName:      a.DoctorName,
		Specialty:       a.Specialty,
		Date:            a.Date.String(),
		Time:            a.Time.String(),
		Location:        a.Location,
		DurationMinutes: a.DurationMinutes,
		Status:          a.EffectiveStatus(now),
		Recurrence:      recurrenceResponse(a.Recurrence),
		Reminder:        reminderDTO{OffsetMinutes: a.Reminder.OffsetMinutes, Channel: a.Reminder.Channel},
		TimeZone:        a.TimeZoneName,
		Color:           a.DisplayColor(),
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		dto.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func eventResponse(e model.Event) eventDTO {
	dto := eventDTO{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date.String(),
		Location:    e.Location,
		Category:    e.Category,
		IsAllDay:    e.IsAllDay,
		Recurrence:  recurrenceResponse(e.Recurrence),
		Status:      e.Status,
		Color:       e.DisplayColor(),
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.Time != nil {
		s := e.Time.String()
		dto.Time = &s
	}
	return dto
}

func recurrenceResponse(rule *recurrence.Rule) *recurrenceDTO {
	if rule == nil {
		return nil
	}
	dto := &recurrenceDTO{Pattern: rule.Pattern, Label: rule.Label()}
	if rule.EndDate != nil {
		s := rule.EndDate.String()
		dto.EndDate = &s
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeFieldErrors reports every violated rule at once as a 400.
func writeFieldErrors(w http.ResponseWriter, errs []validate.FieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
}

// replayIdempotent writes the stored response for a key that already
// completed. Keys finalized without an entity (error outcomes) are not
// replayed; the request runs again.
func replayIdempotent(w http.ResponseWriter, rec storage.IdempotencyRecord, exists bool) bool {
	if !exists || rec.EntityID == "" || rec.StatusCode <= 0 {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.StatusCode)
	if len(rec.ResponsePayload) > 0 {
		_, _ = w.Write(rec.ResponsePayload)
	}
	return true
}
