// Package feed delivers calendar changes to live subscribers. Each
// subscriber receives the owner's complete entity list on every change,
// never a delta, so late or reordered deliveries cannot corrupt a view;
// the newest snapshot simply replaces whatever came before.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/carebook-app/carebook/libs/metrics"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

// Loader reads an owner's full entity lists. *storage.CalendarRepository
// satisfies it.
type Loader interface {
	ListAppointments(ctx context.Context, ownerID string) ([]model.Appointment, error)
	ListEvents(ctx context.Context, ownerID string) ([]model.Event, error)
}

// AppointmentFunc receives a complete appointment list, or the error that
// prevented loading one. On error the previous list stays authoritative.
type AppointmentFunc func(appts []model.Appointment, err error)

// EventFunc is the event-stream counterpart of AppointmentFunc.
type EventFunc func(events []model.Event, err error)

// Hub tracks the live subscriptions per owner and fans fresh snapshots
// out whenever a write or a peer replica's change lands.
type Hub struct {
	loader  Loader
	logger  *slog.Logger
	metrics *metrics.CalendarMetrics

	mu        sync.RWMutex
	nextID    uint64
	apptSubs  map[string]map[uint64]AppointmentFunc
	eventSubs map[string]map[uint64]EventFunc
}

func NewHub(loader Loader, logger *slog.Logger, m *metrics.CalendarMetrics) *Hub {
	return &Hub{
		loader:    loader,
		logger:    logger,
		metrics:   m,
		apptSubs:  make(map[string]map[uint64]AppointmentFunc),
		eventSubs: make(map[string]map[uint64]EventFunc),
	}
}

// SubscribeAppointments registers onUpdate for the owner's appointment
// stream and immediately delivers the current list, so a new subscriber
// starts from a complete snapshot. The returned function removes the
// subscription; it is safe to call more than once.
func (h *Hub) SubscribeAppointments(ctx context.Context, ownerID string, onUpdate AppointmentFunc) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.apptSubs[ownerID] == nil {
		h.apptSubs[ownerID] = make(map[uint64]AppointmentFunc)
	}
	h.apptSubs[ownerID][id] = onUpdate
	h.mu.Unlock()

	onUpdate(h.loadAppointments(ctx, ownerID))

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.apptSubs[ownerID], id)
			if len(h.apptSubs[ownerID]) == 0 {
				delete(h.apptSubs, ownerID)
			}
		})
	}
}

// SubscribeEvents mirrors SubscribeAppointments for the event stream.
func (h *Hub) SubscribeEvents(ctx context.Context, ownerID string, onUpdate EventFunc) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.eventSubs[ownerID] == nil {
		h.eventSubs[ownerID] = make(map[uint64]EventFunc)
	}
	h.eventSubs[ownerID][id] = onUpdate
	h.mu.Unlock()

	onUpdate(h.loadEvents(ctx, ownerID))

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.eventSubs[ownerID], id)
			if len(h.eventSubs[ownerID]) == 0 {
				delete(h.eventSubs, ownerID)
			}
		})
	}
}

// InvalidateAppointments reloads the owner's appointments once and pushes
// the result to every subscriber of that stream.
func (h *Hub) InvalidateAppointments(ctx context.Context, ownerID string) {
	subs := h.appointmentSubscribers(ownerID)
	if len(subs) == 0 {
		return
	}
	appts, err := h.loadAppointments(ctx, ownerID)
	for _, fn := range subs {
		fn(appts, err)
	}
}

// InvalidateEvents reloads the owner's events once and pushes the result
// to every subscriber of that stream.
func (h *Hub) InvalidateEvents(ctx context.Context, ownerID string) {
	subs := h.eventSubscribers(ownerID)
	if len(subs) == 0 {
		return
	}
	events, err := h.loadEvents(ctx, ownerID)
	for _, fn := range subs {
		fn(events, err)
	}
}

// Invalidate refreshes both streams for the owner.
func (h *Hub) Invalidate(ctx context.Context, ownerID string) {
	h.InvalidateAppointments(ctx, ownerID)
	h.InvalidateEvents(ctx, ownerID)
}

func (h *Hub) loadAppointments(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	appts, err := h.loader.ListAppointments(ctx, ownerID)
	if err != nil {
		h.logger.Error("appointment snapshot load failed", "err", err, "owner_id", ownerID)
		return nil, err
	}
	h.metrics.ObserveSnapshot("appointments")
	return appts, nil
}

func (h *Hub) loadEvents(ctx context.Context, ownerID string) ([]model.Event, error) {
	events, err := h.loader.ListEvents(ctx, ownerID)
	if err != nil {
		h.logger.Error("event snapshot load failed", "err", err, "owner_id", ownerID)
		return nil, err
	}
	h.metrics.ObserveSnapshot("events")
	return events, nil
}

func (h *Hub) appointmentSubscribers(ownerID string) []AppointmentFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]AppointmentFunc, 0, len(h.apptSubs[ownerID]))
	for _, fn := range h.apptSubs[ownerID] {
		subs = append(subs, fn)
	}
	return subs
}

func (h *Hub) eventSubscribers(ownerID string) []EventFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := make([]EventFunc, 0, len(h.eventSubs[ownerID]))
	for _, fn := range h.eventSubs[ownerID] {
		subs = append(subs, fn)
	}
	return subs
}
