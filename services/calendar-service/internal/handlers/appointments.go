package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/outbox"
	"github.com/carebook-app/carebook/services/calendar-service/internal/policy"
	"github.com/carebook-app/carebook/services/calendar-service/internal/storage"
	"github.com/carebook-app/carebook/services/calendar-service/internal/validate"
)

type recurrenceInput struct {
	Pattern string `json:"pattern"`
	EndDate string `json:"end_date"`
}

type reminderInput struct {
	OffsetMinutes int    `json:"offset_minutes"`
	Channel       string `json:"channel"`
}

type appointmentRequest struct {
	DoctorName      string           `json:"doctor_name"`
	Specialty       string           `json:"specialty"`
	Date            string           `json:"date"`
	Time            string           `json:"time"`
	Location        string           `json:"location"`
	DurationMinutes int              `json:"duration_minutes"`
	Recurrence      *recurrenceInput `json:"recurrence"`
	Reminder        *reminderInput   `json:"reminder"`
	TimeZone        string           `json:"time_zone"`
	Color           string           `json:"color"`
}

// appointmentPatch distinguishes absent fields from cleared ones: a
// missing key keeps the stored value, an explicit null on recurrence
// removes the series.
type appointmentPatch struct {
	DoctorName      *string         `json:"doctor_name"`
	Specialty       *string         `json:"specialty"`
	Date            *string         `json:"date"`
	Time            *string         `json:"time"`
	Location        *string         `json:"location"`
	DurationMinutes *int            `json:"duration_minutes"`
	Recurrence      json.RawMessage `json:"recurrence"`
	Reminder        json.RawMessage `json:"reminder"`
	TimeZone        *string         `json:"time_zone"`
	Color           *string         `json:"color"`
}

func (h *CalendarHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	profile, loc := h.ownerProfile(ctx, owner)
	now := time.Now().In(loc)

	appt, errs := validate.Appointment(validate.AppointmentInput{
		DoctorName:      req.DoctorName,
		Specialty:       req.Specialty,
		Date:            req.Date,
		Time:            req.Time,
		Location:        req.Location,
		DurationMinutes: req.DurationMinutes,
		Recurrence:      recurrenceValidateInput(req.Recurrence),
		Reminder:        reminderValidateInput(req.Reminder),
		TimeZoneName:    req.TimeZone,
		Color:           req.Color,
	}, now)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	appt.OwnerID = owner

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := idempotencyKey(r)
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, owner, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if replayIdempotent(w, rec, exists) {
			return
		}
	}

	id, err := h.repo.CreateAppointment(ctx, tx, &appt)
	if err != nil {
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	if err := h.insertOutbox(ctx, tx, "calendar.appointment.created.v1", id, appointmentEventPayload(appt)); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	h.scheduleReminders(ctx, tx, appt, req.Reminder != nil, profile, loc, now)

	respBody, err := json.Marshal(appointmentResponse(appt, now))
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, owner, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("appointment", "create")
	h.hub.InvalidateAppointments(context.WithoutCancel(ctx), owner)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *CalendarHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	appts, err := h.repo.ListAppointments(r.Context(), owner)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	_, loc := h.ownerProfile(r.Context(), owner)
	now := time.Now().In(loc)
	items := make([]appointmentDTO, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentResponse(appt, now))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CalendarHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "appointment id required", http.StatusBadRequest)
		return
	}

	var patch appointmentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	profile, loc := h.ownerProfile(ctx, owner)
	now := time.Now().In(loc)

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := h.repo.GetAppointmentForUpdate(ctx, tx, owner, id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	switch existing.EffectiveStatus(now) {
	case model.StatusCancelled:
		http.Error(w, "appointment is cancelled", http.StatusConflict)
		return
	case model.StatusPast:
		http.Error(w, "appointment is in the past", http.StatusConflict)
		return
	}

	in, ok := mergeAppointmentPatch(existing, patch)
	if !ok {
		http.Error(w, "invalid recurrence or reminder block", http.StatusBadRequest)
		return
	}
	appt, errs := validate.Appointment(in, now)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	appt.ID = existing.ID
	appt.OwnerID = owner
	appt.CreatedAt = existing.CreatedAt

	if err := h.repo.UpdateAppointment(ctx, tx, &appt); err != nil {
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	if err := h.insertOutbox(ctx, tx, "calendar.appointment.updated.v1", appt.ID, appointmentEventPayload(appt)); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	// Reschedule from scratch: the old reminder instant may no longer apply.
	h.cancelReminders(ctx, tx, appt)
	h.scheduleReminders(ctx, tx, appt, true, profile, loc, now)

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("appointment", "update")
	h.hub.InvalidateAppointments(context.WithoutCancel(ctx), owner)
	writeJSON(w, http.StatusOK, appointmentResponse(appt, now))
}

func (h *CalendarHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "appointment id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	_, loc := h.ownerProfile(ctx, owner)
	now := time.Now().In(loc)

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, owner, id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
		writeJSON(w, http.StatusOK, appointmentResponse(appt, now))
		return
	}
	if appt.EffectiveStatus(now) == model.StatusPast {
		http.Error(w, "appointment is in the past", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.CancelAppointment(ctx, tx, owner, appt.ID)
	if err != nil {
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt
	appt.UpdatedAt = cancelledAt

	payload := appointmentEventPayload(appt)
	payload["cancelled_at"] = cancelledAt.UTC().Format(time.RFC3339)
	if err := h.insertOutbox(ctx, tx, "calendar.appointment.cancelled.v1", appt.ID, payload); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	h.cancelReminders(ctx, tx, appt)

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("appointment", "cancel")
	h.hub.InvalidateAppointments(context.WithoutCancel(ctx), owner)
	writeJSON(w, http.StatusOK, appointmentResponse(appt, now))
}

// mergeAppointmentPatch overlays the provided fields onto the stored
// appointment and returns the full input for revalidation.
func mergeAppointmentPatch(existing model.Appointment, patch appointmentPatch) (validate.AppointmentInput, bool) {
	in := validate.AppointmentInput{
		DoctorName:      existing.DoctorName,
		Specialty:       existing.Specialty,
		Date:            existing.Date.String(),
		Time:            existing.Time.String(),
		Location:        existing.Location,
		DurationMinutes: existing.DurationMinutes,
		TimeZoneName:    existing.TimeZoneName,
		Color:           existing.Color,
	}
	if existing.Recurrence != nil {
		in.Recurrence = &validate.RecurrenceInput{Pattern: existing.Recurrence.Pattern}
		if existing.Recurrence.EndDate != nil {
			in.Recurrence.EndDate = existing.Recurrence.EndDate.String()
		}
	}
	in.Reminder = &validate.ReminderInput{
		OffsetMinutes: existing.Reminder.OffsetMinutes,
		Channel:       existing.Reminder.Channel,
	}

	if patch.DoctorName != nil {
		in.DoctorName = *patch.DoctorName
	}
	if patch.Specialty != nil {
		in.Specialty = *patch.Specialty
	}
	if patch.Date != nil {
		in.Date = *patch.Date
	}
	if patch.Time != nil {
		in.Time = *patch.Time
	}
	if patch.Location != nil {
		in.Location = *patch.Location
	}
	if patch.DurationMinutes != nil {
		in.DurationMinutes = *patch.DurationMinutes
	}
	if patch.TimeZone != nil {
		in.TimeZoneName = *patch.TimeZone
	}
	if patch.Color != nil {
		in.Color = *patch.Color
	}

	if len(patch.Recurrence) > 0 {
		if isJSONNull(patch.Recurrence) {
			in.Recurrence = nil
		} else {
			var rec recurrenceInput
			if err := json.Unmarshal(patch.Recurrence, &rec); err != nil {
				return validate.AppointmentInput{}, false
			}
			in.Recurrence = &validate.RecurrenceInput{Pattern: rec.Pattern, EndDate: rec.EndDate}
		}
	}
	if len(patch.Reminder) > 0 {
		if isJSONNull(patch.Reminder) {
			in.Reminder = nil // validation restores the defaults
		} else {
			var rem reminderInput
			if err := json.Unmarshal(patch.Reminder, &rem); err != nil {
				return validate.AppointmentInput{}, false
			}
			in.Reminder = &validate.ReminderInput{OffsetMinutes: rem.OffsetMinutes, Channel: rem.Channel}
		}
	}
	return in, true
}

func recurrenceValidateInput(in *recurrenceInput) *validate.RecurrenceInput {
	if in == nil {
		return nil
	}
	return &validate.RecurrenceInput{Pattern: in.Pattern, EndDate: in.EndDate}
}

func reminderValidateInput(in *reminderInput) *validate.ReminderInput {
	if in == nil {
		return nil
	}
	return &validate.ReminderInput{OffsetMinutes: in.OffsetMinutes, Channel: in.Channel}
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func appointmentEventPayload(a model.Appointment) map[string]any {
	return map[string]any{
		"appointment_id":   a.ID,
		"owner_id":         a.OwnerID,
		"doctor_name":      a.DoctorName,
		"specialty":        a.Specialty,
		"date":             a.Date.String(),
		"time":             a.Time.String(),
		"duration_minutes": a.DurationMinutes,
		"location":         a.Location,
		"status":           a.Status,
	}
}

func (h *CalendarHandler) insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: aggregateTypeFor(eventType),
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

// aggregateTypeFor keys outbox rows by the entity the event concerns.
// Reminder control events aggregate on the appointment they remind for.
func aggregateTypeFor(eventType string) string {
	if strings.HasPrefix(eventType, "calendar.event.") {
		return "event"
	}
	return "appointment"
}

// scheduleReminders enqueues reminder.schedule.v1 rows for the
// appointment. When the client sent no reminder block and the owner's
// profile defines default offsets, one reminder is scheduled per profile
// offset; otherwise the appointment's own (possibly defaulted) reminder
// is used. Instants already in the past are skipped. Failures are logged,
// not fatal: a missed reminder must not fail the booking.
func (h *CalendarHandler) scheduleReminders(ctx context.Context, tx pgx.Tx, appt model.Appointment, explicit bool, profile policy.Profile, loc *time.Location, now time.Time) {
	start := appt.Date.At(appt.Time, loc)

	offsets := []time.Duration{time.Duration(appt.Reminder.OffsetMinutes) * time.Minute}
	if !explicit && len(profile.ReminderOffsets) > 0 {
		offsets = profile.ReminderOffsets
	}
	for _, offset := range offsets {
		remindAt := start.Add(-offset)
		if remindAt.Before(now) {
			continue
		}
		payload := map[string]any{
			"appointment_id": appt.ID,
			"owner_id":       appt.OwnerID,
			"channel":        appt.Reminder.Channel,
			"remind_at":      remindAt.UTC().Format(time.RFC3339),
			"template_data": map[string]any{
				"doctor_name": appt.DoctorName,
				"specialty":   appt.Specialty,
				"date":        appt.Date.String(),
				"time":        appt.Time.String(),
				"location":    appt.Location,
			},
		}
		if err := h.insertOutbox(ctx, tx, "reminder.schedule.v1", appt.ID, payload); err != nil {
			h.logger.Error("failed to enqueue reminder", "err", err)
		}
	}
}

// cancelReminders tells the scheduler to drop any pending reminders for
// the appointment.
func (h *CalendarHandler) cancelReminders(ctx context.Context, tx pgx.Tx, appt model.Appointment) {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"owner_id":       appt.OwnerID,
	}
	if err := h.insertOutbox(ctx, tx, "reminder.cancel.v1", appt.ID, payload); err != nil {
		h.logger.Error("failed to enqueue reminder cancellation", "err", err)
	}
}
