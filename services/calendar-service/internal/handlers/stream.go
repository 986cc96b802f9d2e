package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/carebook-app/carebook/services/calendar-service/internal/agenda"
	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

// streamRequest is what the client sends over the calendar stream.
type streamRequest struct {
	Type  string `json:"type"` // "focus", "ping"
	Date  string `json:"date"`
	Month string `json:"month"`
}

// streamSnapshot is one complete aggregation pushed to the client. Every
// frame replaces the previous one wholesale; the client never patches.
type streamSnapshot struct {
	Type            string              `json:"type"` // "snapshot"
	Date            string              `json:"date"`
	Month           string              `json:"month"`
	Agenda          []agenda.Entry      `json:"agenda"`
	Markers         map[string][]string `json:"markers"`
	DataUnavailable bool                `json:"data_unavailable,omitempty"`
}

type streamError struct {
	Type  string `json:"type"` // "error", "pong"
	Error string `json:"error,omitempty"`
}

// HandleStream upgrades to a WebSocket and serves live agenda snapshots
// for the focused date and month.
func (h *CalendarHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveStream(conn, r)
	}).ServeHTTP(w, r)
}

func (h *CalendarHandler) serveStream(conn *websocket.Conn, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		_ = websocket.JSON.Send(conn, streamError{Type: "error", Error: "owner identity required"})
		return
	}

	_, loc := h.ownerProfile(r.Context(), owner)
	date := caldate.FromTime(time.Now().In(loc))
	if raw := r.URL.Query().Get("date"); raw != "" {
		if d, err := caldate.ParseDate(raw); err == nil {
			date = d
		} else {
			_ = websocket.JSON.Send(conn, streamError{Type: "error", Error: "date must be YYYY-MM-DD"})
			return
		}
	}
	view := agenda.NewView(date)
	if raw := r.URL.Query().Get("month"); raw != "" {
		if year, month, err := parseMonth(raw); err == nil {
			view.Focus(date, year, month)
		}
	}

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	// Sends interleave from the subscriber callbacks and the receive
	// loop; the mutex keeps frames whole.
	var sendMu sync.Mutex
	send := func(snap agenda.Snapshot) {
		sendMu.Lock()
		defer sendMu.Unlock()
		_ = websocket.JSON.Send(conn, snapshotFrame(snap))
	}

	unsubAppts := h.hub.SubscribeAppointments(r.Context(), owner, func(appts []model.Appointment, err error) {
		if err != nil {
			send(view.Fail())
			return
		}
		send(view.ReplaceAppointments(appts))
	})
	defer unsubAppts()
	unsubEvents := h.hub.SubscribeEvents(r.Context(), owner, func(events []model.Event, err error) {
		if err != nil {
			send(view.Fail())
			return
		}
		send(view.ReplaceEvents(events))
	})
	defer unsubEvents()

	h.logger.Info("calendar stream opened", "owner_id", owner, "date", date.String())

	for {
		var msg streamRequest
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("calendar stream closed", "owner_id", owner, "err", err)
			return
		}

		switch msg.Type {
		case "ping":
			sendMu.Lock()
			_ = websocket.JSON.Send(conn, streamError{Type: "pong"})
			sendMu.Unlock()
		case "focus":
			d, err := caldate.ParseDate(msg.Date)
			if err != nil {
				sendMu.Lock()
				_ = websocket.JSON.Send(conn, streamError{Type: "error", Error: "date must be YYYY-MM-DD"})
				sendMu.Unlock()
				continue
			}
			var year, month int
			if msg.Month != "" {
				if year, month, err = parseMonth(msg.Month); err != nil {
					sendMu.Lock()
					_ = websocket.JSON.Send(conn, streamError{Type: "error", Error: "month must be YYYY-MM"})
					sendMu.Unlock()
					continue
				}
			}
			send(view.Focus(d, year, month))
		}
	}
}

func snapshotFrame(snap agenda.Snapshot) streamSnapshot {
	frame := streamSnapshot{
		Type:            "snapshot",
		Date:            snap.Date.String(),
		Month:           fmt.Sprintf("%04d-%02d", snap.Year, snap.Month),
		Agenda:          snap.Entries,
		Markers:         formatMarkers(snap.Year, snap.Month, snap.Markers),
		DataUnavailable: snap.DataUnavailable,
	}
	if frame.Agenda == nil {
		frame.Agenda = []agenda.Entry{}
	}
	return frame
}
