package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/carebook-app/carebook/services/calendar-service/internal/caldate"
	"github.com/carebook-app/carebook/services/calendar-service/internal/model"
)

// ErrEmptyPayload is returned when an import body contains no data.
var ErrEmptyPayload = errors.New("empty ics payload")

// maxImportOccurrences caps how many rows a single repeating VEVENT may
// materialize into.
const maxImportOccurrences = 500

// ImportOptions configures how an uploaded feed is materialized.
type ImportOptions struct {
	// Location is the time zone occurrence dates and clocks are read in.
	Location *time.Location

	// From is the first day of the expansion window for RRULE series.
	From caldate.Date

	// HorizonDays is the length of the expansion window in days.
	HorizonDays int
}

// ImportResult lists the events materialized from a feed. Skipped counts
// VEVENTs that could not be used: no summary, no parseable start, or an
// upstream CANCELLED status.
type ImportResult struct {
	Events  []model.Event
	Skipped int
}

// Import parses an iCalendar payload and materializes its VEVENTs as
// one-off calendar events. RRULE series are expanded within the window
// and each occurrence becomes its own event; EXDATEs are honored,
// RECURRENCE-ID overrides are not. One-off VEVENTs are kept wherever
// they fall, including outside the window.
func Import(body []byte, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	if len(bytes.TrimSpace(body)) == 0 {
		return res, ErrEmptyPayload
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if opts.From.IsZero() {
		opts.From = caldate.FromTime(time.Now().In(opts.Location))
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("parse ics: %w", err)
	}

	to := opts.From.AddDays(opts.HorizonDays)
	for _, ve := range cal.Events() {
		events, ok := importVEvent(ve, opts, to)
		if !ok {
			res.Skipped++
			continue
		}
		res.Events = append(res.Events, events...)
	}
	return res, nil
}

func importVEvent(ve *ical.VEvent, opts ImportOptions, to caldate.Date) ([]model.Event, bool) {
	summary := textProp(ve, ical.ComponentPropertySummary)
	if summary == "" {
		return nil, false
	}
	if st := ve.GetProperty(ical.ComponentPropertyStatus); st != nil && strings.EqualFold(st.Value, "CANCELLED") {
		return nil, false
	}
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return nil, false
	}
	allDay := isAllDayStart(dtStart)

	starts, ok := occurrenceStarts(ve, dtStart, allDay, opts, to)
	if !ok {
		return nil, false
	}

	base := model.Event{
		Title:       summary,
		Description: textProp(ve, ical.ComponentPropertyDescription),
		Location:    textProp(ve, ical.ComponentPropertyLocation),
		Category:    importCategory(ve),
		IsAllDay:    allDay,
		Status:      model.EventStatusUpcoming,
	}

	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		ev := base
		local := start.In(opts.Location)
		ev.Date = caldate.FromTime(local)
		if !allDay {
			clock := caldate.ClockFromTime(local)
			ev.Time = &clock
		}
		out = append(out, ev)
	}
	return out, true
}

// occurrenceStarts resolves the start instants a VEVENT contributes. A
// VEVENT without an RRULE yields its single start; an RRULE expands
// within the window. An RRULE that fails to parse degrades to the single
// anchor occurrence rather than dropping the entry.
func occurrenceStarts(ve *ical.VEvent, dtStart *ical.IANAProperty, allDay bool, opts ImportOptions, to caldate.Date) ([]time.Time, bool) {
	var start time.Time
	if allDay {
		day, err := parseFeedDate(dtStart.Value)
		if err != nil {
			return nil, false
		}
		start = day.At(caldate.TimeOfDay{}, opts.Location)
	} else {
		t, err := ve.GetStartAt()
		if err != nil {
			return nil, false
		}
		start = t
	}

	rruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
	if rruleProp == nil || rruleProp.Value == "" {
		return []time.Time{start}, true
	}
	r, err := rrule.StrToRRule(rruleProp.Value)
	if err != nil {
		return []time.Time{start}, true
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exDates(ve, start.Location()) {
		set.ExDate(ex)
	}

	rangeStart := opts.From.At(caldate.TimeOfDay{}, opts.Location).In(start.Location())
	rangeEnd := to.At(caldate.TimeOfDay{Hour: 23, Minute: 59}, opts.Location).In(start.Location())
	occ := set.Between(rangeStart, rangeEnd, true)
	if len(occ) > maxImportOccurrences {
		occ = occ[:maxImportOccurrences]
	}
	return occ, true
}

// isAllDayStart reports whether DTSTART carries a date-only value:
// either VALUE=DATE or no time component in the raw value.
func isAllDayStart(dtStart *ical.IANAProperty) bool {
	if params := dtStart.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(dtStart.Value, "T")
}

// exDates collects EXDATE instants. Floating values are read in the
// location DTSTART resolved to, so exclusion matches the instants the
// rule generates.
func exDates(ve *ical.VEvent, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseFeedInstant(part, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func parseFeedInstant(v string, loc *time.Location) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

func parseFeedDate(v string) (caldate.Date, error) {
	t, err := time.Parse("20060102", strings.TrimSpace(v))
	if err != nil {
		return caldate.Date{}, err
	}
	return caldate.FromTime(t), nil
}

// importCategory maps the first recognized CATEGORIES entry onto a
// calendar category, defaulting to "other".
func importCategory(ve *ical.VEvent) string {
	p := ve.GetProperty(ical.ComponentPropertyCategories)
	if p == nil {
		return model.CategoryOther
	}
	for _, c := range strings.Split(p.Value, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); model.KnownCategory(c) {
			return c
		}
	}
	return model.CategoryOther
}

func textProp(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return unescapeText(strings.TrimSpace(p.Value))
}

// unescapeText undoes RFC 5545 TEXT escaping: \\ \; \, \n \N.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case '\\', ';', ',':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
