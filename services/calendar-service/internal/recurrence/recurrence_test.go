package recurrence

import (
	"testing"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
)

func date(y, m, d int) caldate.Date {
	return caldate.Date{Year: y, Month: m, Day: d}
}

func TestAppliesOn_Weekly(t *testing.T) {
	rule := Rule{Pattern: Weekly}
	anchor := date(2024, 1, 1)

	if !rule.AppliesOn(anchor, date(2024, 1, 15)) {
		t.Fatal("expected weekly rule to apply 14 days after anchor")
	}
	if rule.AppliesOn(anchor, date(2024, 1, 10)) {
		t.Fatal("expected weekly rule not to apply 9 days after anchor")
	}
	if !rule.AppliesOn(anchor, anchor) {
		t.Fatal("expected rule to apply on its own anchor")
	}
	if rule.AppliesOn(anchor, date(2023, 12, 25)) {
		t.Fatal("expected rule not to apply before anchor")
	}
}

func TestAppliesOn_Biweekly(t *testing.T) {
	rule := Rule{Pattern: Biweekly}
	anchor := date(2024, 1, 1)

	if rule.AppliesOn(anchor, date(2024, 1, 8)) {
		t.Fatal("expected biweekly rule not to apply after 7 days")
	}
	if !rule.AppliesOn(anchor, date(2024, 1, 29)) {
		t.Fatal("expected biweekly rule to apply after 28 days")
	}
}

func TestAppliesOn_MonthlyClampsToShortMonths(t *testing.T) {
	end := date(2024, 3, 1)
	rule := Rule{Pattern: Monthly, EndDate: &end}
	anchor := date(2024, 1, 31)

	if !rule.AppliesOn(anchor, date(2024, 2, 29)) {
		t.Fatal("expected monthly rule anchored on the 31st to clamp to Feb 29")
	}
	if rule.AppliesOn(anchor, date(2024, 2, 28)) {
		t.Fatal("expected no occurrence on Feb 28 in a leap year")
	}
	if rule.AppliesOn(anchor, date(2024, 4, 30)) {
		t.Fatal("expected no occurrence past the end date")
	}
}

func TestAppliesOn_MonthlyKeepsAnchorDay(t *testing.T) {
	rule := Rule{Pattern: Monthly}
	anchor := date(2024, 1, 31)

	if !rule.AppliesOn(anchor, date(2024, 3, 31)) {
		t.Fatal("expected occurrence on Mar 31")
	}
	if rule.AppliesOn(anchor, date(2024, 3, 29)) {
		t.Fatal("expected day-of-month anchoring, not elapsed-day drift")
	}
}

func TestAppliesOn_QuarterlyAndYearly(t *testing.T) {
	anchor := date(2024, 1, 15)

	q := Rule{Pattern: Quarterly}
	if !q.AppliesOn(anchor, date(2024, 4, 15)) || !q.AppliesOn(anchor, date(2024, 7, 15)) {
		t.Fatal("expected quarterly occurrences at 3 and 6 months")
	}
	if q.AppliesOn(anchor, date(2024, 2, 15)) {
		t.Fatal("expected no quarterly occurrence after 1 month")
	}

	y := Rule{Pattern: Yearly}
	if !y.AppliesOn(anchor, date(2025, 1, 15)) {
		t.Fatal("expected yearly occurrence after 12 months")
	}
	if y.AppliesOn(anchor, date(2024, 7, 15)) {
		t.Fatal("expected no yearly occurrence after 6 months")
	}

	// Leap-day anchor clamps in non-leap years.
	leap := Rule{Pattern: Yearly}
	if !leap.AppliesOn(date(2024, 2, 29), date(2025, 2, 28)) {
		t.Fatal("expected Feb 29 anchor to clamp to Feb 28 in 2025")
	}
}

func TestAppliesOn_EndDateIsInclusive(t *testing.T) {
	end := date(2024, 1, 8)
	rule := Rule{Pattern: Weekly, EndDate: &end}
	anchor := date(2024, 1, 1)

	if !rule.AppliesOn(anchor, date(2024, 1, 8)) {
		t.Fatal("expected occurrence on the end date itself")
	}
	if rule.AppliesOn(anchor, date(2024, 1, 15)) {
		t.Fatal("expected no occurrence after the end date")
	}
}

func TestAppliesOn_UnknownPattern(t *testing.T) {
	rule := Rule{Pattern: "fortnightly"}
	if rule.AppliesOn(date(2024, 1, 1), date(2024, 1, 1)) {
		t.Fatal("expected unknown pattern to never apply")
	}
	if KnownPattern("fortnightly") {
		t.Fatal("expected fortnightly to be rejected")
	}
	if !KnownPattern(Biweekly) {
		t.Fatal("expected biweekly to be accepted")
	}
}

func TestLabel(t *testing.T) {
	if got := (Rule{Pattern: Daily}).Label(); got != "Repeats daily" {
		t.Fatalf("expected %q, got %q", "Repeats daily", got)
	}
	end := date(2025, 6, 30)
	got := (Rule{Pattern: Monthly, EndDate: &end}).Label()
	if got != "Repeats monthly, until 2025-06-30" {
		t.Fatalf("expected %q, got %q", "Repeats monthly, until 2025-06-30", got)
	}
}

func TestOccurrences(t *testing.T) {
	rule := Rule{Pattern: Weekly}
	anchor := date(2024, 1, 3)

	days := rule.Occurrences(anchor, date(2024, 1, 1), date(2024, 1, 31))
	want := []caldate.Date{date(2024, 1, 3), date(2024, 1, 10), date(2024, 1, 17), date(2024, 1, 24), date(2024, 1, 31)}
	if len(days) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(days))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("occurrence %d: expected %s, got %s", i, want[i], days[i])
		}
	}
}

func TestOccurrences_RespectsEndAndAnchor(t *testing.T) {
	end := date(2024, 1, 10)
	rule := Rule{Pattern: Daily, EndDate: &end}

	days := rule.Occurrences(date(2024, 1, 8), date(2024, 1, 1), date(2024, 1, 31))
	if len(days) != 3 {
		t.Fatalf("expected 3 occurrences (8th through 10th), got %d", len(days))
	}
	if days[0] != date(2024, 1, 8) || days[2] != date(2024, 1, 10) {
		t.Fatalf("unexpected bounds: %s .. %s", days[0], days[len(days)-1])
	}
}
