package agenda

import (
	"sort"
	"time"

	"agendacal/internal/model"
	"agendacal/internal/window"
)

// FillEmptyDays adds a placeholder bucket for every date without events.
// Expanded views fill the whole window; compact views fill between the
// first and last selected day, or just the window's first day when nothing
// was selected. It is a no-op unless show_empty_days is set.
func (a *Agenda) FillEmptyDays(buckets []model.DayBucket, w window.Window, now time.Time, expanded bool) []model.DayBucket {
	if !a.cfg.ShowEmptyDays {
		return buckets
	}

	from, to := w.Start, w.Start
	switch {
	case expanded:
		to = midnight(w.End)
	case len(buckets) > 0:
		first, err1 := time.ParseInLocation(model.DateLayout, buckets[0].Date, a.loc)
		last, err2 := time.ParseInLocation(model.DateLayout, buckets[len(buckets)-1].Date, a.loc)
		if err1 == nil && err2 == nil {
			from, to = first, last
		}
	}

	have := make(map[string]bool, len(buckets))
	for _, b := range buckets {
		have[b.Date] = true
	}

	out := append([]model.DayBucket(nil), buckets...)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(model.DateLayout)
		if have[key] {
			continue
		}
		out = append(out, model.DayBucket{
			Date:   key,
			Events: []model.ProcessedEvent{a.placeholder(d)},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return a.annotate(out, midnight(now.In(a.loc)))
}

func (a *Agenda) placeholder(day time.Time) model.ProcessedEvent {
	return model.ProcessedEvent{
		CalendarEvent: model.CalendarEvent{
			Summary: a.strings.NoEvents,
			Start:   model.DateOf(day),
			End:     model.DateOf(day.AddDate(0, 0, 1)),
		},
		Start:    day,
		End:      day.AddDate(0, 0, 1),
		AllDay:   true,
		Segment:  1,
		Segments: 1,
		EmptyDay: true,
	}
}
