package agenda

import (
	"sync"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

// Snapshot is one immutable aggregation result: the agenda for the
// focused date plus the marker map for the focused month. DataUnavailable
// is set when the most recent refresh failed, in which case Entries and
// Markers still hold the last good aggregation.
type Snapshot struct {
	Date            caldate.Date
	Year            int
	Month           int
	Entries         []Entry
	Markers         map[int][]string
	DataUnavailable bool
}

// View is a live aggregation keyed by a focused date and month. It holds
// the latest complete list from each entity stream and recomputes the
// whole snapshot on every change; results always replace, never patch,
// the prior ones. Safe for concurrent use.
type View struct {
	mu     sync.Mutex
	date   caldate.Date
	year   int
	month  int
	appts  []model.Appointment
	events []model.Event
	stale  bool

	entries []Entry
	markers map[int][]string
}

// NewView starts a view focused on date, with the month grid showing the
// month containing it.
func NewView(date caldate.Date) *View {
	v := &View{date: date, year: date.Year, month: date.Month}
	v.recompute()
	return v
}

// Focus moves the view to a new date and month and returns the snapshot
// computed from the streams already held.
func (v *View) Focus(date caldate.Date, year, month int) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.date = date
	if year > 0 && month >= 1 && month <= 12 {
		v.year, v.month = year, month
	} else {
		v.year, v.month = date.Year, date.Month
	}
	v.recompute()
	return v.snapshotLocked()
}

// ReplaceAppointments swaps in a complete appointment list and
// recomputes. Partial updates are never accepted; each delivery carries
// the full list for its stream, which is what makes interleaving safe.
func (v *View) ReplaceAppointments(appts []model.Appointment) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.appts = appts
	v.stale = false
	v.recompute()
	return v.snapshotLocked()
}

// ReplaceEvents swaps in a complete event list and recomputes.
func (v *View) ReplaceEvents(events []model.Event) Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = events
	v.stale = false
	v.recompute()
	return v.snapshotLocked()
}

// Fail records that a stream refresh failed. The last good aggregation is
// retained and served with DataUnavailable set until a replace succeeds.
func (v *View) Fail() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = true
	return v.snapshotLocked()
}

// Snapshot returns the current aggregation without changing anything.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) recompute() {
	v.entries = ForDate(v.appts, v.events, v.date)
	v.markers = MarkersForMonth(v.appts, v.events, v.year, v.month)
}

// snapshotLocked copies the derived state so callers can hand snapshots
// across goroutines without racing later recomputes.
func (v *View) snapshotLocked() Snapshot {
	entries := make([]Entry, len(v.entries))
	copy(entries, v.entries)
	markers := make(map[int][]string, len(v.markers))
	for day, colors := range v.markers {
		c := make([]string, len(colors))
		copy(c, colors)
		markers[day] = c
	}
	return Snapshot{
		Date:            v.date,
		Year:            v.year,
		Month:           v.month,
		Entries:         entries,
		Markers:         markers,
		DataUnavailable: v.stale,
	}
}
