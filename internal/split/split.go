// Package split resolves raw events in the display timezone and breaks
// multi-day events into one segment per calendar day.
package split

import (
	"time"

	"agendacal/internal/config"
	"agendacal/internal/model"
)

// Enabled reports whether events of sourceID are split. A per-source
// setting overrides the global one.
func Enabled(cfg *config.Config, sourceID string) bool {
	if sc, ok := cfg.Source(sourceID); ok && sc.SplitMultiDay != nil {
		return *sc.SplitMultiDay
	}
	return cfg.SplitMultiDay
}

// Resolve converts ev into a single ProcessedEvent covering its whole span.
// A missing or inverted end becomes one day for all-day events and zero
// length otherwise.
func Resolve(ev model.CalendarEvent, loc *time.Location) (model.ProcessedEvent, error) {
	start, err := ev.Start.Time(loc)
	if err != nil {
		return model.ProcessedEvent{}, err
	}
	allDay := ev.AllDay()

	end, err := ev.End.Time(loc)
	if err != nil || end.Before(start) || (allDay && !end.After(start)) {
		end = start
		if allDay {
			end = start.AddDate(0, 0, 1)
		}
	}

	return model.ProcessedEvent{
		CalendarEvent: ev,
		Start:         start,
		End:           end,
		AllDay:        allDay,
		Segment:       1,
		Segments:      1,
	}, nil
}

// Split resolves ev and, when enabled, returns one segment per local day
// it covers. All-day segments end at the next midnight; the first segment
// of a timed event ends at 23:59:59.999 and its last starts at midnight.
func Split(ev model.CalendarEvent, loc *time.Location, enabled bool) ([]model.ProcessedEvent, error) {
	base, err := Resolve(ev, loc)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return []model.ProcessedEvent{base}, nil
	}
	if base.AllDay {
		return splitAllDay(base), nil
	}
	return splitTimed(base), nil
}

func splitAllDay(base model.ProcessedEvent) []model.ProcessedEvent {
	first := midnight(base.Start)
	last := midnight(base.End).AddDate(0, 0, -1)
	if !last.After(first) {
		return []model.ProcessedEvent{base}
	}

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	out := make([]model.ProcessedEvent, 0, len(days))
	for i, d := range days {
		out = append(out, allDaySegment(base, d, i+1, len(days)))
	}
	return out
}

func splitTimed(base model.ProcessedEvent) []model.ProcessedEvent {
	firstDay := midnight(base.Start)
	lastDay := midnight(base.End)
	endsAtMidnight := base.End.Equal(lastDay)
	if endsAtMidnight {
		lastDay = lastDay.AddDate(0, 0, -1)
	}
	if !lastDay.After(firstDay) {
		return []model.ProcessedEvent{base}
	}

	n := 0
	for d := firstDay; !d.After(lastDay); d = d.AddDate(0, 0, 1) {
		n++
	}

	out := make([]model.ProcessedEvent, 0, n)
	out = append(out, timedSegment(base, base.Start, endOfDay(firstDay), 1, n))

	i := 2
	for d := firstDay.AddDate(0, 0, 1); d.Before(lastDay); d = d.AddDate(0, 0, 1) {
		out = append(out, allDaySegment(base, d, i, n))
		i++
	}

	if endsAtMidnight {
		out = append(out, allDaySegment(base, lastDay, n, n))
	} else {
		out = append(out, timedSegment(base, lastDay, base.End, n, n))
	}
	return out
}

func allDaySegment(base model.ProcessedEvent, day time.Time, idx, total int) model.ProcessedEvent {
	seg := base
	seg.Start = day
	seg.End = day.AddDate(0, 0, 1)
	seg.AllDay = true
	seg.CalendarEvent.Start = model.DateOf(seg.Start)
	seg.CalendarEvent.End = model.DateOf(seg.End)
	seg.Segment, seg.Segments = idx, total
	return seg
}

func timedSegment(base model.ProcessedEvent, start, end time.Time, idx, total int) model.ProcessedEvent {
	seg := base
	seg.Start = start
	seg.End = end
	seg.AllDay = false
	seg.CalendarEvent.Start = model.DateTimeOf(start)
	seg.CalendarEvent.End = model.DateTimeOf(end)
	seg.Segment, seg.Segments = idx, total
	return seg
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), day.Location())
}
