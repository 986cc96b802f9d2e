// Package availability produces the offerable appointment slots for a
// chosen day.
package availability

import (
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
)

// Default working window and granularity. A full day carries 16 slots,
// 09:00 through 16:30.
const (
	WindowStartMinute = 9 * 60
	WindowEndMinute   = 17 * 60
	SlotStepMinutes   = 30
)

// Window is one day's bookable span and slot granularity, in minutes
// from midnight. Owners override the default through their profile.
type Window struct {
	StartMinute int
	EndMinute   int
	StepMinutes int
}

// DefaultWindow is the policy applied when an owner carries no override:
// 09:00-17:00 in 30-minute steps.
func DefaultWindow() Window {
	return Window{StartMinute: WindowStartMinute, EndMinute: WindowEndMinute, StepMinutes: SlotStepMinutes}
}

func (w Window) valid() bool {
	return w.StepMinutes > 0 && w.StartMinute >= 0 && w.EndMinute <= 24*60 && w.StartMinute < w.EndMinute
}

// Slots returns the ordered start times offerable on date under the
// default window, judged against now.
func Slots(date caldate.Date, now time.Time) []caldate.TimeOfDay {
	return SlotsIn(date, now, DefaultWindow())
}

// SlotsIn returns the ordered start times offerable on date within win,
// judged against now. Past dates yield nothing. On the current day,
// slots before now are dropped and the first offered slot is rounded up
// to the next grid boundary; once rounding reaches the end of the window
// the day is out of slots. Future dates always yield the full grid.
// Malformed windows fall back to the default. The slice is built fresh
// on every call because "now" moves between calls.
func SlotsIn(date caldate.Date, now time.Time, win Window) []caldate.TimeOfDay {
	if !win.valid() {
		win = DefaultWindow()
	}

	today := caldate.FromTime(now)
	if date.Before(today) {
		return nil
	}

	first := win.StartMinute
	if date == today {
		if next := nextBoundary(caldate.ClockFromTime(now).Minutes(), win); next > first {
			first = next
		}
	}

	if first >= win.EndMinute {
		return nil
	}

	slots := make([]caldate.TimeOfDay, 0, (win.EndMinute-first)/win.StepMinutes)
	for m := first; m < win.EndMinute; m += win.StepMinutes {
		slots = append(slots, caldate.FromMinutes(m))
	}
	return slots
}

// nextBoundary rounds a minutes-from-midnight reading up to the grid
// line strictly after it: on the default grid 09:29 rounds to 09:30 and
// 09:30 rolls to 10:00. Readings before the window open at the window
// start, keeping the full grid.
func nextBoundary(nowMinute int, win Window) int {
	if nowMinute < win.StartMinute {
		return win.StartMinute
	}
	steps := (nowMinute-win.StartMinute)/win.StepMinutes + 1
	return win.StartMinute + steps*win.StepMinutes
}
