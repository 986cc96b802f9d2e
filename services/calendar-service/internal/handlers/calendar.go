package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/agenda"
	"github.com/carebook-app/carebook/services/calendar-service/internal/availability"
	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/ics"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

const maxImportBytes = 1 << 20

// Slots lists bookable start times for a day. The sequence is computed
// fresh on every request against the owner's local clock.
func (h *CalendarHandler) Slots(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	date, err := caldate.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	profile, loc := h.ownerProfile(r.Context(), owner)
	slots := availability.SlotsIn(date, time.Now().In(loc), profile.Workday)

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	writeJSON(w, http.StatusOK, out)
}

type agendaResponse struct {
	Date    string         `json:"date"`
	Entries []agenda.Entry `json:"entries"`
}

func (h *CalendarHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	date, err := caldate.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	appts, events, ok := h.loadStreams(w, r.Context(), owner)
	if !ok {
		return
	}
	entries := agenda.ForDate(appts, events, date)
	if entries == nil {
		entries = []agenda.Entry{}
	}
	writeJSON(w, http.StatusOK, agendaResponse{Date: date.String(), Entries: entries})
}

type markersResponse struct {
	Month   string              `json:"month"`
	Markers map[string][]string `json:"markers"`
}

func (h *CalendarHandler) Markers(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	year, month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		http.Error(w, "month must be YYYY-MM", http.StatusBadRequest)
		return
	}

	appts, events, ok := h.loadStreams(w, r.Context(), owner)
	if !ok {
		return
	}
	byDay := agenda.MarkersForMonth(appts, events, year, month)
	writeJSON(w, http.StatusOK, markersResponse{
		Month:   fmt.Sprintf("%04d-%02d", year, month),
		Markers: formatMarkers(year, month, byDay),
	})
}

// formatMarkers keys the marker map by full date so clients match grid
// cells without reassembling day numbers.
func formatMarkers(year, month int, byDay map[int][]string) map[string][]string {
	markers := make(map[string][]string, len(byDay))
	for day, colors := range byDay {
		markers[fmt.Sprintf("%04d-%02d-%02d", year, month, day)] = colors
	}
	return markers
}

// DescribeRecurrence renders the human-readable label for a recurrence
// pattern without persisting anything. Clients use it for form previews.
func (h *CalendarHandler) DescribeRecurrence(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if !recurrence.KnownPattern(pattern) {
		http.Error(w, "unknown recurrence pattern", http.StatusBadRequest)
		return
	}
	rule := recurrence.Rule{Pattern: pattern}
	if raw := r.URL.Query().Get("until"); raw != "" {
		end, err := caldate.ParseDate(raw)
		if err != nil {
			http.Error(w, "until must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		rule.EndDate = &end
	}
	writeJSON(w, http.StatusOK, map[string]string{"label": rule.Label()})
}

func (h *CalendarHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}
	appts, events, ok := h.loadStreams(w, r.Context(), owner)
	if !ok {
		return
	}

	profile, loc := h.ownerProfile(r.Context(), owner)
	name := profile.DisplayName
	if name == "" {
		name = "CareBook"
	}
	feed := ics.Export(appts, events, ics.ExportOptions{
		CalendarName: name,
		Location:     loc,
	})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="carebook.ics"`)
	_, _ = io.WriteString(w, feed)
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportICS ingests an uploaded iCalendar feed as events. Each usable
// VEVENT occurrence becomes its own upcoming event; entries the feed
// marks cancelled or that lack a start or summary are counted as
// skipped.
func (h *CalendarHandler) ImportICS(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		http.Error(w, "owner identity required", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, "payload too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	ctx := r.Context()
	_, loc := h.ownerProfile(ctx, owner)
	result, err := ics.Import(body, ics.ImportOptions{Location: loc})
	if err != nil {
		if errors.Is(err, ics.ErrEmptyPayload) {
			http.Error(w, "empty ics payload", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid ics payload", http.StatusBadRequest)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	imported := 0
	for i := range result.Events {
		evt := result.Events[i]
		evt.OwnerID = owner
		id, err := h.repo.CreateEvent(ctx, tx, &evt)
		if err != nil {
			http.Error(w, "failed to store imported events", http.StatusInternalServerError)
			return
		}
		if err := h.insertOutbox(ctx, tx, "calendar.event.created.v1", id, eventEventPayload(evt)); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
		imported++
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	if imported > 0 {
		h.metrics.ObserveWrite("event", "import")
		h.hub.InvalidateEvents(context.WithoutCancel(ctx), owner)
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: imported, Skipped: result.Skipped})
}

// loadStreams fetches both entity streams, writing the error response
// itself when either read fails.
func (h *CalendarHandler) loadStreams(w http.ResponseWriter, ctx context.Context, owner string) ([]model.Appointment, []model.Event, bool) {
	appts, err := h.repo.ListAppointments(ctx, owner)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return nil, nil, false
	}
	events, err := h.repo.ListEvents(ctx, owner)
	if err != nil {
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return nil, nil, false
	}
	return appts, events, true
}

func parseMonth(s string) (year, month int, err error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), int(t.Month()), nil
}
