package availability

import (
	"testing"
	"time"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
)

func at(h, m int) time.Time {
	return time.Date(2024, 6, 10, h, m, 0, 0, time.UTC)
}

func TestSlots_FutureDayFullGrid(t *testing.T) {
	date := caldate.Date{Year: 2024, Month: 6, Day: 11}

	slots := Slots(date, at(16, 59))
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots on a future day, got %d", len(slots))
	}
	if slots[0].String() != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", slots[0])
	}
	if slots[15].String() != "16:30" {
		t.Fatalf("expected last slot 16:30, got %s", slots[15])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Minutes()-slots[i-1].Minutes() != 30 {
			t.Fatalf("expected 30-minute spacing at index %d", i)
		}
	}
}

func TestSlots_TodayRoundsUp(t *testing.T) {
	today := caldate.Date{Year: 2024, Month: 6, Day: 10}

	slots := Slots(today, at(9, 15))
	if len(slots) == 0 || slots[0].String() != "09:30" {
		t.Fatalf("expected first slot 09:30 at 09:15, got %v", slots)
	}

	slots = Slots(today, at(9, 30))
	if len(slots) == 0 || slots[0].String() != "10:00" {
		t.Fatalf("expected first slot 10:00 at 09:30, got %v", slots)
	}
}

func TestSlots_TodayBeforeOpening(t *testing.T) {
	today := caldate.Date{Year: 2024, Month: 6, Day: 10}

	slots := Slots(today, at(7, 45))
	if len(slots) != 16 {
		t.Fatalf("expected full grid before opening, got %d slots", len(slots))
	}
	if slots[0].String() != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", slots[0])
	}
}

func TestSlots_TodayRunsOut(t *testing.T) {
	today := caldate.Date{Year: 2024, Month: 6, Day: 10}

	if slots := Slots(today, at(16, 45)); len(slots) != 0 {
		t.Fatalf("expected no slots at 16:45, got %v", slots)
	}
	if slots := Slots(today, at(16, 30)); len(slots) != 0 {
		t.Fatalf("expected no slots at 16:30, got %v", slots)
	}
	// 16:29 still offers the 16:30 slot.
	slots := Slots(today, at(16, 29))
	if len(slots) != 1 || slots[0].String() != "16:30" {
		t.Fatalf("expected exactly the 16:30 slot at 16:29, got %v", slots)
	}
}

func TestSlots_PastDayEmpty(t *testing.T) {
	past := caldate.Date{Year: 2024, Month: 6, Day: 9}

	if slots := Slots(past, at(8, 0)); len(slots) != 0 {
		t.Fatalf("expected no slots for a past day, got %v", slots)
	}
}

func TestSlots_FreshSequencePerCall(t *testing.T) {
	date := caldate.Date{Year: 2024, Month: 7, Day: 1}

	a := Slots(date, at(10, 0))
	b := Slots(date, at(10, 0))
	if &a[0] == &b[0] {
		t.Fatal("expected each call to build its own slice")
	}
	a[0] = caldate.TimeOfDay{Hour: 23, Minute: 59}
	if b[0].String() != "09:00" {
		t.Fatal("expected calls not to share backing storage")
	}
}

func TestSlotsIn_OwnerWindow(t *testing.T) {
	date := caldate.Date{Year: 2024, Month: 6, Day: 11}
	win := Window{StartMinute: 8 * 60, EndMinute: 12 * 60, StepMinutes: 20}

	slots := SlotsIn(date, at(16, 59), win)
	if len(slots) != 12 {
		t.Fatalf("expected 12 slots in a 08:00-12:00/20 window, got %d", len(slots))
	}
	if slots[0].String() != "08:00" || slots[11].String() != "11:40" {
		t.Fatalf("expected grid 08:00..11:40, got %s..%s", slots[0], slots[11])
	}
}

func TestSlotsIn_TodayRoundsToOwnerGrid(t *testing.T) {
	today := caldate.Date{Year: 2024, Month: 6, Day: 10}
	win := Window{StartMinute: 8 * 60, EndMinute: 12 * 60, StepMinutes: 20}

	// 08:05 sits inside the first slot, so the grid resumes at 08:20.
	slots := SlotsIn(today, at(8, 5), win)
	if len(slots) == 0 || slots[0].String() != "08:20" {
		t.Fatalf("expected first slot 08:20 at 08:05, got %v", slots)
	}

	if slots := SlotsIn(today, at(11, 40), win); len(slots) != 0 {
		t.Fatalf("expected the window to be out of slots at 11:40, got %v", slots)
	}
}

func TestSlotsIn_MalformedWindowFallsBack(t *testing.T) {
	date := caldate.Date{Year: 2024, Month: 6, Day: 11}

	for _, win := range []Window{
		{},
		{StartMinute: 600, EndMinute: 540, StepMinutes: 30},
		{StartMinute: 540, EndMinute: 1020, StepMinutes: 0},
	} {
		slots := SlotsIn(date, at(10, 0), win)
		if len(slots) != 16 || slots[0].String() != "09:00" {
			t.Fatalf("expected the default grid for window %+v, got %v", win, slots)
		}
	}
}
