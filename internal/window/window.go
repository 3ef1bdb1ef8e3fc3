// Package window resolves the date range an agenda queries.
package window

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

// DefaultDays is used when the day count is missing or not positive.
const DefaultDays = 3

// Window is an inclusive range of whole local days.
type Window struct {
	Start time.Time // local midnight of the first day
	End   time.Time // 23:59:59.999 of the last day
	Days  int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Dates lists the bucket keys of every day in the window.
func (w Window) Dates() []string {
	out := make([]string, 0, w.Days)
	for i := 0; i < w.Days; i++ {
		out = append(out, w.Start.AddDate(0, 0, i).Format(model.DateLayout))
	}
	return out
}

var (
	absoluteDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	isoTimestamp = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ]`)
	relativeDate = regexp.MustCompile(`^(?i:today)?\s*([+-])\s*(\d+)$`)
)

// timestampLayouts are the accepted ISO 8601 timestamp forms, with and
// without a zone, using either 'T' or a space as separator.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func validTimestamp(value string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

// Resolve computes the window for a day count and start specifier relative
// to now in loc. Malformed specifiers fall back to today with a warning.
func Resolve(days int, start string, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	if days <= 0 {
		days = DefaultDays
	}

	first := resolveStart(strings.TrimSpace(start), midnight(now.In(loc)))
	last := first.AddDate(0, 0, days-1)
	return Window{
		Start: first,
		End:   endOfDay(last),
		Days:  days,
	}
}

// Today is the one-day window containing now.
func Today(now time.Time, loc *time.Location) Window {
	return Resolve(1, "", now, loc)
}

func resolveStart(value string, today time.Time) time.Time {
	if value == "" || strings.EqualFold(value, "today") {
		return today
	}

	if m := absoluteDate.FindStringSubmatch(value); m != nil {
		if d, ok := buildDate(m[1], m[2], m[3], today.Location()); ok {
			return d
		}
		appLog.Warn("window: invalid start date, using today", "start_date", value)
		return today
	}

	// Only the date portion of a timestamp matters.
	if m := isoTimestamp.FindStringSubmatch(value); m != nil {
		if d, ok := buildDate(m[1], m[2], m[3], today.Location()); ok && validTimestamp(value) {
			return d
		}
		appLog.Warn("window: invalid start timestamp, using today", "start_date", value)
		return today
	}

	if m := relativeDate.FindStringSubmatch(value); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			if m[1] == "-" {
				n = -n
			}
			// AddDate on a midnight keeps it at midnight, also across DST.
			return today.AddDate(0, 0, n)
		}
	}

	appLog.Warn("window: unrecognised start date, using today", "start_date", value)
	return today
}

// buildDate validates components and requires the date to round-trip, so
// 2024-02-30 is rejected instead of rolling over into March.
func buildDate(ys, ms, ds string, loc *time.Location) (time.Time, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}
