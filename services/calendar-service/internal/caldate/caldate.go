// Package caldate holds the calendar value types used across the service:
// a wall-clock date with no time zone attached, and a minute-resolution
// time of day. Both are constructed from explicit numeric components and
// never round-trip through timestamp parsing, which can shift a date by a
// day near midnight in non-UTC zones.
package caldate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDateFormat is returned when a date string is not three
	// dash-separated integer groups, or a group is out of range.
	ErrInvalidDateFormat = errors.New("invalid date format, want YYYY-MM-DD")

	// ErrInvalidClockFormat is returned when a time string is not HH:MM
	// on a 24-hour clock.
	ErrInvalidClockFormat = errors.New("invalid time format, want HH:MM")
)

// Date is a calendar day. Two dates are equal iff all three fields are
// equal, so values compare correctly with ==.
type Date struct {
	Year  int
	Month int // 1..12
	Day   int // 1..31, bounded by the month
}

// New builds a Date from explicit components and rejects anything that is
// not a real calendar day.
func New(year, month, day int) (Date, error) {
	if year < 1 || year > 9999 {
		return Date{}, fmt.Errorf("%w: year %d out of range", ErrInvalidDateFormat, year)
	}
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("%w: month %d out of range", ErrInvalidDateFormat, month)
	}
	if day < 1 || day > DaysIn(year, month) {
		return Date{}, fmt.Errorf("%w: day %d out of range for %04d-%02d", ErrInvalidDateFormat, day, year, month)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// ParseDate reads a "YYYY-MM-DD" string. It works on the digit groups
// directly rather than going through time.Parse, so the result is
// byte-for-byte stable under re-parsing its own String output.
func ParseDate(s string) (Date, error) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	year, ok := atoi(s[0:4])
	if !ok {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	month, ok := atoi(s[5:7])
	if !ok {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	day, ok := atoi(s[8:10])
	if !ok {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return New(year, month, day)
}

// FromTime extracts the wall-clock date of t in t's own location. The
// components are read off directly; no string round-trip is involved.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: int(m), Day: d}
}

// String formats the date as zero-padded "YYYY-MM-DD".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero value, which is never a valid day.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Compare returns -1, 0, or 1 as d is before, equal to, or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(d.Month - o.Month)
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// AddDays returns the date n days after d (n may be negative). Arithmetic
// runs through a fixed-offset UTC construction so no DST rule can apply.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, time.Month(d.Month), d.Day+n, 0, 0, 0, 0, time.UTC)
	return FromTime(t)
}

// AddMonths returns the date n calendar months after d, keeping the
// day-of-month and clamping to the last day when the target month is
// shorter. This differs from time.AddDate, which normalizes Jan 31 + 1
// month into early March.
func (d Date) AddMonths(n int) Date {
	months := d.Year*12 + (d.Month - 1) + n
	year := months / 12
	month := months % 12
	if month < 0 {
		month += 12
		year--
	}
	month++
	day := d.Day
	if max := DaysIn(year, month); day > max {
		day = max
	}
	return Date{Year: year, Month: month, Day: day}
}

// MonthsSince returns the whole calendar months from o to d, ignoring the
// day-of-month fields.
func (d Date) MonthsSince(o Date) int {
	return (d.Year-o.Year)*12 + (d.Month - o.Month)
}

// At combines the date with a time of day in the given location. Used at
// the boundary where a real timestamp is required, such as ICS output.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// DaysBetween returns b minus a in whole days.
func DaysBetween(a, b Date) int {
	ta := time.Date(a.Year, time.Month(a.Month), a.Day, 0, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year, time.Month(b.Month), b.Day, 0, 0, 0, 0, time.UTC)
	return int(tb.Sub(ta) / (24 * time.Hour))
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

// IsLeapYear follows the Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// MarshalJSON encodes the date as its "YYYY-MM-DD" string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts only a quoted "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return ErrInvalidDateFormat
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a clock reading with minute resolution, independent of any
// date or zone.
type TimeOfDay struct {
	Hour   int // 0..23
	Minute int // 0..59
}

// ParseClock reads an "HH:MM" 24-hour string.
func ParseClock(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClockFormat, s)
	}
	hour, ok := atoi(s[0:2])
	if !ok || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClockFormat, s)
	}
	minute, ok := atoi(s[3:5])
	if !ok || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidClockFormat, s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ClockFromTime extracts the wall-clock time of t in t's own location.
func ClockFromTime(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// FromMinutes converts minutes since midnight into a TimeOfDay.
func FromMinutes(m int) TimeOfDay {
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// String formats the time as zero-padded 24-hour "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns the minutes elapsed since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Minutes() < o.Minutes()
}

// MarshalJSON encodes the time as its "HH:MM" string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts only a quoted "HH:MM" string.
func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return ErrInvalidClockFormat
	}
	parsed, err := ParseClock(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// atoi parses a fixed-width decimal group. Unlike strconv.Atoi it rejects
// signs and spaces, which keeps "+024-1-1" and friends out.
func atoi(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
