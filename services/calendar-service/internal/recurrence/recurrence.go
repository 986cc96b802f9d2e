// Package recurrence decides whether a repeating appointment or event
// falls on a queried day. Rules are pure data; every check is a stateless
// predicate against an anchor date, so callers may evaluate days in any
// order.
package recurrence

import (
	"fmt"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
)

const (
	Daily     = "daily"
	Weekly    = "weekly"
	Biweekly  = "biweekly"
	Monthly   = "monthly"
	Quarterly = "quarterly"
	Yearly    = "yearly"
)

// Patterns lists the accepted pattern names in display order.
var Patterns = []string{Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly}

// KnownPattern reports whether p is one of the accepted pattern names.
func KnownPattern(p string) bool {
	switch p {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// Rule is a repetition schedule embedded in an appointment or event. A nil
// EndDate means the series repeats indefinitely; a set EndDate is the last
// day, inclusive, on which the series may occur.
type Rule struct {
	Pattern string
	EndDate *caldate.Date
}

// AppliesOn reports whether the series anchored on anchor occurs on query.
// Day-based patterns check the day offset for congruence with the period;
// month-based patterns anchor on the day-of-month and clamp to the last
// day of shorter months, so a series started on the 31st lands on Feb 29
// rather than drifting into March.
func (r Rule) AppliesOn(anchor, query caldate.Date) bool {
	if query.Before(anchor) {
		return false
	}
	if r.EndDate != nil && query.After(*r.EndDate) {
		return false
	}
	switch r.Pattern {
	case Daily:
		return true
	case Weekly:
		return caldate.DaysBetween(anchor, query)%7 == 0
	case Biweekly:
		return caldate.DaysBetween(anchor, query)%14 == 0
	case Monthly:
		return onMonthStep(anchor, query, 1)
	case Quarterly:
		return onMonthStep(anchor, query, 3)
	case Yearly:
		return onMonthStep(anchor, query, 12)
	}
	return false
}

func onMonthStep(anchor, query caldate.Date, every int) bool {
	months := query.MonthsSince(anchor)
	if months < 0 || months%every != 0 {
		return false
	}
	day := anchor.Day
	if max := caldate.DaysIn(query.Year, query.Month); day > max {
		day = max
	}
	return query.Day == day
}

// Label renders the human-readable description of the rule, e.g.
// "Repeats weekly" or "Repeats monthly, until 2025-06-30".
func (r Rule) Label() string {
	if r.EndDate != nil {
		return fmt.Sprintf("Repeats %s, until %s", r.Pattern, r.EndDate)
	}
	return fmt.Sprintf("Repeats %s", r.Pattern)
}

// Occurrences expands the series into the concrete days it occurs on
// within [from, to]. The range is expected to be small (a month view, an
// export window); the walk is day-by-day against AppliesOn.
func (r Rule) Occurrences(anchor, from, to caldate.Date) []caldate.Date {
	if to.Before(from) {
		return nil
	}
	start := from
	if start.Before(anchor) {
		start = anchor
	}
	end := to
	if r.EndDate != nil && r.EndDate.Before(end) {
		end = *r.EndDate
	}
	var days []caldate.Date
	for d := start; !end.Before(d); d = d.AddDays(1) {
		if r.AppliesOn(anchor, d) {
			days = append(days, d)
		}
	}
	return days
}
