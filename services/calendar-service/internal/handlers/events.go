package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/storage"
	"github.com/carebook-app/carebook/services/calendar-service/internal/validate"
)

type eventRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Date        string           `json:"date"`
	Time        string           `json:"time"`
	Location    string           `json:"location"`
	Category    string           `json:"category"`
	IsAllDay    bool             `json:"is_all_day"`
	Recurrence  *recurrenceInput `json:"recurrence"`
	Color       string           `json:"color"`
}

type eventPatch struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Date        *string         `json:"date"`
	Time        *string         `json:"time"`
	Location    *string         `json:"location"`
	Category    *string         `json:"category"`
	IsAllDay    *bool           `json:"is_all_day"`
	Recurrence  json.RawMessage `json:"recurrence"`
	Color       *string         `json:"color"`
}

func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	evt, errs := validate.Event(validate.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
		Location:    req.Location,
		Category:    req.Category,
		IsAllDay:    req.IsAllDay,
		Recurrence:  recurrenceValidateInput(req.Recurrence),
		Color:       req.Color,
	}, time.Now())
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	evt.OwnerID = owner

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key := idempotencyKey(r)
	if key != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, owner, key)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if replayIdempotent(w, rec, exists) {
			return
		}
	}

	id, err := h.repo.CreateEvent(ctx, tx, &evt)
	if err != nil {
		http.Error(w, "failed to create event", http.StatusInternalServerError)
		return
	}

	if err := h.insertOutbox(ctx, tx, "calendar.event.created.v1", id, eventEventPayload(evt)); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(eventResponse(evt))
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if key != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, owner, key, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("event", "create")
	h.hub.InvalidateEvents(context.WithoutCancel(ctx), owner)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	events, err := h.repo.ListEvents(r.Context(), owner)
	if err != nil {
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	items := make([]eventDTO, 0, len(events))
	for _, evt := range events {
		items = append(items, eventResponse(evt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "event id required", http.StatusBadRequest)
		return
	}

	var patch eventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := h.repo.GetEventForUpdate(ctx, tx, owner, id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load event", http.StatusInternalServerError)
		return
	}
	if existing.Status != model.EventStatusUpcoming {
		http.Error(w, "event is "+existing.Status, http.StatusConflict)
		return
	}

	in, ok := mergeEventPatch(existing, patch)
	if !ok {
		http.Error(w, "invalid recurrence block", http.StatusBadRequest)
		return
	}
	evt, errs := validate.Event(in, time.Now())
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	evt.ID = existing.ID
	evt.OwnerID = owner
	evt.CreatedAt = existing.CreatedAt

	if err := h.repo.UpdateEvent(ctx, tx, &evt); err != nil {
		http.Error(w, "failed to update event", http.StatusInternalServerError)
		return
	}

	if err := h.insertOutbox(ctx, tx, "calendar.event.updated.v1", evt.ID, eventEventPayload(evt)); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("event", "update")
	h.hub.InvalidateEvents(context.WithoutCancel(ctx), owner)
	writeJSON(w, http.StatusOK, eventResponse(evt))
}

func (h *CalendarHandler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	h.transitionEvent(w, r, model.EventStatusCompleted, "calendar.event.completed.v1", "complete")
}

func (h *CalendarHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	h.transitionEvent(w, r, model.EventStatusCancelled, "calendar.event.cancelled.v1", "cancel")
}

// transitionEvent moves an event into a terminal status. Re-requesting
// the status it already holds replays the current state; asking for the
// other terminal status conflicts.
func (h *CalendarHandler) transitionEvent(w http.ResponseWriter, r *http.Request, target, eventType, op string) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "event id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	evt, err := h.repo.GetEventForUpdate(ctx, tx, owner, id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load event", http.StatusInternalServerError)
		return
	}
	if evt.Status == target {
		writeJSON(w, http.StatusOK, eventResponse(evt))
		return
	}
	if evt.Status != model.EventStatusUpcoming {
		http.Error(w, "event is "+evt.Status, http.StatusConflict)
		return
	}

	updatedAt, err := h.repo.SetEventStatus(ctx, tx, owner, evt.ID, target)
	if err != nil {
		http.Error(w, "failed to update event status", http.StatusInternalServerError)
		return
	}
	evt.Status = target
	evt.UpdatedAt = updatedAt

	if err := h.insertOutbox(ctx, tx, eventType, evt.ID, eventEventPayload(evt)); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("event", op)
	h.hub.InvalidateEvents(context.WithoutCancel(ctx), owner)
	writeJSON(w, http.StatusOK, eventResponse(evt))
}

func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "event id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := h.repo.DeleteEvent(ctx, tx, owner, id)
	if err != nil {
		http.Error(w, "failed to delete event", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	payload := map[string]any{"event_id": id, "owner_id": owner}
	if err := h.insertOutbox(ctx, tx, "calendar.event.deleted.v1", id, payload); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWrite("event", "delete")
	h.hub.InvalidateEvents(context.WithoutCancel(ctx), owner)
	w.WriteHeader(http.StatusNoContent)
}

func mergeEventPatch(existing model.Event, patch eventPatch) (validate.EventInput, bool) {
	in := validate.EventInput{
		Title:       existing.Title,
		Description: existing.Description,
		Date:        existing.Date.String(),
		Location:    existing.Location,
		Category:    existing.Category,
		IsAllDay:    existing.IsAllDay,
		Color:       existing.Color,
	}
	if existing.Time != nil {
		in.Time = existing.Time.String()
	}
	if existing.Recurrence != nil {
		in.Recurrence = &validate.RecurrenceInput{Pattern: existing.Recurrence.Pattern}
		if existing.Recurrence.EndDate != nil {
			in.Recurrence.EndDate = existing.Recurrence.EndDate.String()
		}
	}

	if patch.Title != nil {
		in.Title = *patch.Title
	}
	if patch.Description != nil {
		in.Description = *patch.Description
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
	if patch.Category != nil {
		in.Category = *patch.Category
	}
	if patch.IsAllDay != nil {
		in.IsAllDay = *patch.IsAllDay
		if in.IsAllDay {
			in.Time = ""
		}
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
				return validate.EventInput{}, false
			}
			in.Recurrence = &validate.RecurrenceInput{Pattern: rec.Pattern, EndDate: rec.EndDate}
		}
	}
	return in, true
}

func eventEventPayload(e model.Event) map[string]any {
	payload := map[string]any{
		"event_id":   e.ID,
		"owner_id":   e.OwnerID,
		"title":      e.Title,
		"date":       e.Date.String(),
		"category":   e.Category,
		"is_all_day": e.IsAllDay,
		"status":     e.Status,
	}
	if e.Time != nil {
		payload["time"] = e.Time.String()
	}
	return payload
}
