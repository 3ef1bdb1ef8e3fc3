package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone timed occurrences are converted to.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences (inclusive). Any
	// occurrence overlapping the range is kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded events.
type ExpandResult struct {
	Events []model.CalendarEvent
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandEvents turns parsed VEVENTs into concrete calendar events within
// the configured range. It applies RRULE, EXDATE and RECURRENCE-ID
// overrides. Output is ordered by start, then UID.
func ExpandEvents(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	uids := make([]string, 0)
	for _, ev := range events {
		if _, seen := baseByUID[ev.UID]; !seen {
			if _, seenOv := overridesByUID[ev.UID]; !seenOv {
				uids = append(uids, ev.UID)
			}
		}
		if ev.IsOverride {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	type occurrence struct {
		ev         ParsedEvent
		start, end time.Time
	}
	all := make([]occurrence, 0)

	for _, uid := range uids {
		ov := overridesByUID[uid]
		used := make([]bool, len(ov))
		truncated := false

		for _, ev := range baseByUID[uid] {
			starts, hitCap := occurrenceStarts(ev, cfg)
			truncated = truncated || hitCap

			for _, occStart := range starts {
				occ := occurrence{ev: ev, start: occStart, end: occStart.Add(ev.End.Sub(ev.Start))}
				if i, ok := findOverride(ov, occStart); ok {
					used[i] = true
					occ = occurrence{ev: ov[i], start: ov[i].Start, end: ov[i].End}
				}
				if overlaps(occ.ev.AllDay, occ.start, occ.end, cfg) {
					all = append(all, occ)
				}
			}
		}

		// Overrides moved into the range from an instance outside it, or
		// whose master is missing entirely.
		for i, o := range ov {
			if used[i] {
				continue
			}
			if overlaps(o.AllDay, o.Start, o.End, cfg) {
				all = append(all, occurrence{ev: o, start: o.Start, end: o.End})
			}
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].start.Equal(all[j].start) {
			return all[i].start.Before(all[j].start)
		}
		return all[i].ev.UID < all[j].ev.UID
	})

	result.Events = make([]model.CalendarEvent, 0, len(all))
	for _, o := range all {
		result.Events = append(result.Events, toCalendarEvent(o.ev, o.start, o.end, cfg.DisplayLocation))
	}
	return result, nil
}

// occurrenceStarts lists the candidate start times of ev near the range.
func occurrenceStarts(ev ParsedEvent, cfg ExpandConfig) ([]time.Time, bool) {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}, false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart, rangeEnd := rangeFor(ev.AllDay, cfg)
	// Widen the lower bound so instances that began earlier but are still
	// running inside the range are found.
	rangeStart = rangeStart.Add(-ev.End.Sub(ev.Start))

	starts := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		return starts[:cfg.MaxOccurrencesPerEvent], true
	}
	return starts, false
}

// rangeFor returns the range in the event's time space. All-day events
// live on UTC midnights, so the range is mapped onto dates.
func rangeFor(allDay bool, cfg ExpandConfig) (time.Time, time.Time) {
	if !allDay {
		return cfg.RangeStart, cfg.RangeEnd
	}
	return floatingDate(cfg.RangeStart.In(cfg.DisplayLocation)), floatingDate(cfg.RangeEnd.In(cfg.DisplayLocation))
}

func floatingDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// overlaps reports whether [start, end) touches the range. Zero-length
// events count when their start lies inside it.
func overlaps(allDay bool, start, end time.Time, cfg ExpandConfig) bool {
	rs, re := rangeFor(allDay, cfg)
	if !end.After(start) {
		return !start.Before(rs) && !start.After(re)
	}
	return !start.After(re) && end.After(rs)
}

func findOverride(overrides []ParsedEvent, start time.Time) (int, bool) {
	for i, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return i, true
		}
	}
	return -1, false
}

func toCalendarEvent(ev ParsedEvent, start, end time.Time, loc *time.Location) model.CalendarEvent {
	out := model.CalendarEvent{
		SourceID:    ev.SourceID,
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.AllDay {
		out.Start = model.EventTime{Date: start.Format(model.DateLayout)}
		out.End = model.EventTime{Date: end.Format(model.DateLayout)}
		return out
	}
	out.Start = model.DateTimeOf(start.In(loc))
	out.End = model.DateTimeOf(end.In(loc))
	return out
}
