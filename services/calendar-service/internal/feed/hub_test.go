package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
	"github.com/carebook-app/carebook/services/calendar-service/internal/recurrence"
)

type fakeLoader struct {
	mu     sync.Mutex
	appts  map[string][]model.Appointment
	events map[string][]model.Event
	fail   bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		appts:  make(map[string][]model.Appointment),
		events: make(map[string][]model.Event),
	}
}

func (l *fakeLoader) ListAppointments(_ context.Context, ownerID string) ([]model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return nil, errors.New("store unreachable")
	}
	return l.appts[ownerID], nil
}

func (l *fakeLoader) ListEvents(_ context.Context, ownerID string) ([]model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return nil, errors.New("store unreachable")
	}
	return l.events[ownerID], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestHub_SubscribeDeliversInitialSnapshot(t *testing.T) {
	loader := newFakeLoader()
	end := caldate.Date{Year: 2025, Month: 3, Day: 1}
	stored := model.Appointment{
		ID:         "a1",
		OwnerID:    "owner-1",
		DoctorName: "Dr. Ibe",
		Date:       caldate.Date{Year: 2024, Month: 7, Day: 9},
		Time:       caldate.TimeOfDay{Hour: 10, Minute: 30},
		Status:     model.StatusUpcoming,
		Recurrence: &recurrence.Rule{Pattern: recurrence.Monthly, EndDate: &end},
	}
	loader.appts["owner-1"] = []model.Appointment{stored}

	hub := NewHub(loader, discardLogger(), nil)

	var got []model.Appointment
	var gotErr error
	unsub := hub.SubscribeAppointments(context.Background(), "owner-1", func(appts []model.Appointment, err error) {
		got, gotErr = appts, err
	})
	defer unsub()

	if gotErr != nil {
		t.Fatalf("initial snapshot error: %v", gotErr)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 appointment in the initial snapshot, got %d", len(got))
	}
	// Field-for-field round trip of the scheduling data.
	back := got[0]
	if back.Date != stored.Date || back.Time != stored.Time {
		t.Fatalf("date/time changed through the subscription: %+v", back)
	}
	if back.Recurrence == nil || back.Recurrence.Pattern != recurrence.Monthly || *back.Recurrence.EndDate != end {
		t.Fatalf("recurrence changed through the subscription: %+v", back.Recurrence)
	}
}

func TestHub_InvalidateFansOutToOwnerOnly(t *testing.T) {
	loader := newFakeLoader()
	hub := NewHub(loader, discardLogger(), nil)

	ownerCalls := 0
	otherCalls := 0
	defer hub.SubscribeEvents(context.Background(), "owner-1", func([]model.Event, error) { ownerCalls++ })()
	defer hub.SubscribeEvents(context.Background(), "owner-2", func([]model.Event, error) { otherCalls++ })()

	loader.mu.Lock()
	loader.events["owner-1"] = []model.Event{{ID: "e1", OwnerID: "owner-1", Title: "Walk"}}
	loader.mu.Unlock()

	hub.InvalidateEvents(context.Background(), "owner-1")

	if ownerCalls != 2 {
		t.Fatalf("expected initial + invalidation deliveries, got %d", ownerCalls)
	}
	if otherCalls != 1 {
		t.Fatalf("expected other owner to see only the initial delivery, got %d", otherCalls)
	}
}

func TestHub_LoadErrorReachesSubscriber(t *testing.T) {
	loader := newFakeLoader()
	hub := NewHub(loader, discardLogger(), nil)

	var lastErr error
	defer hub.SubscribeAppointments(context.Background(), "owner-1", func(_ []model.Appointment, err error) {
		lastErr = err
	})()
	if lastErr != nil {
		t.Fatalf("unexpected initial error: %v", lastErr)
	}

	loader.mu.Lock()
	loader.fail = true
	loader.mu.Unlock()

	hub.InvalidateAppointments(context.Background(), "owner-1")
	if lastErr == nil {
		t.Fatal("expected the load failure to reach the subscriber")
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	loader := newFakeLoader()
	hub := NewHub(loader, discardLogger(), nil)

	calls := 0
	unsub := hub.SubscribeEvents(context.Background(), "owner-1", func([]model.Event, error) { calls++ })
	unsub()
	unsub() // second call is a no-op

	hub.InvalidateEvents(context.Background(), "owner-1")
	if calls != 1 {
		t.Fatalf("expected only the initial delivery, got %d", calls)
	}
}
