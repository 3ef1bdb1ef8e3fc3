// Package agenda groups single-day events into day buckets, attaches week
// and month metadata and applies the compact view limits.
package agenda

import (
	"sort"
	"time"

	"golang.org/x/text/collate"

	"agendacal/internal/config"
	"agendacal/internal/locale"
	"agendacal/internal/model"
	"agendacal/internal/window"
)

// Agenda turns processed events into day buckets for one configuration.
// It is not safe for concurrent use.
type Agenda struct {
	cfg      *config.Config
	loc      *time.Location
	strings  locale.Strings
	first    time.Weekday
	priority map[string]int
	collator *collate.Collator
}

// New prepares an Agenda. A nil loc means time.Local.
func New(cfg *config.Config, loc *time.Location) *Agenda {
	if loc == nil {
		loc = time.Local
	}
	return &Agenda{
		cfg:      cfg,
		loc:      loc,
		strings:  locale.Lookup(cfg.Locale),
		first:    locale.ParseWeekStart(cfg.WeekStart, cfg.Locale),
		priority: cfg.SourceIndex(),
		collator: collate.New(locale.Tag(cfg.Locale), collate.IgnoreCase),
	}
}

// Build buckets events by display day. Events that started before the
// window and are still running show on its first day. In compact mode
// (expanded false) the per-source and global caps are applied.
func (a *Agenda) Build(events []model.ProcessedEvent, w window.Window, now time.Time, expanded bool) []model.DayBucket {
	now = now.In(a.loc)
	today := midnight(now)

	b := newBuilder()
	for _, e := range events {
		if !a.cfg.ShowPastEvents && isPast(e, now, today) {
			continue
		}
		if !inWindow(e, w) {
			continue
		}
		day := midnight(e.Start.In(a.loc))
		if day.Before(w.Start) {
			day = w.Start
		}
		b.add(day, e)
	}

	buckets := b.buckets()
	for i := range buckets {
		a.sortDay(buckets[i].Events)
	}

	if n := a.dayCount(expanded); len(buckets) > n {
		buckets = buckets[:n]
	}

	if !expanded {
		buckets = a.capPerSource(buckets)
		buckets = a.capGlobal(buckets)
	}

	return a.annotate(buckets, today)
}

// dayCount is the number of buckets shown by the current view.
func (a *Agenda) dayCount(expanded bool) int {
	if !expanded && a.cfg.Compact.Days > 0 {
		return int(a.cfg.Compact.Days)
	}
	return int(a.cfg.Days)
}

// isPast reports whether e is over. All-day events stay visible for the
// whole of their last day.
func isPast(e model.ProcessedEvent, now, today time.Time) bool {
	if e.EmptyDay {
		return false
	}
	if e.AllDay {
		return !e.End.After(today)
	}
	if e.End.After(e.Start) {
		return !e.End.After(now)
	}
	return e.Start.Before(now)
}

func inWindow(e model.ProcessedEvent, w window.Window) bool {
	if e.Start.After(w.End) {
		return false
	}
	if e.End.After(e.Start) {
		return e.End.After(w.Start)
	}
	return !e.Start.Before(w.Start)
}

// sortDay orders all-day events first (source priority, then summary),
// then timed events by start (then source priority).
func (a *Agenda) sortDay(events []model.ProcessedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ei, ej := events[i], events[j]
		if ei.EmptyDay != ej.EmptyDay {
			return ej.EmptyDay
		}
		if ei.AllDay != ej.AllDay {
			return ei.AllDay
		}
		if ei.AllDay {
			if pi, pj := a.rank(ei.SourceID), a.rank(ej.SourceID); pi != pj {
				return pi < pj
			}
			return a.collator.CompareString(ei.Summary, ej.Summary) < 0
		}
		if !ei.Start.Equal(ej.Start) {
			return ei.Start.Before(ej.Start)
		}
		return a.rank(ei.SourceID) < a.rank(ej.SourceID)
	})
}

func (a *Agenda) rank(id string) int {
	if p, ok := a.priority[id]; ok {
		return p
	}
	return len(a.priority)
}

// capPerSource enforces each source's max_events across the visible range.
func (a *Agenda) capPerSource(buckets []model.DayBucket) []model.DayBucket {
	limits := make(map[string]int)
	for _, sc := range a.cfg.Sources {
		if sc.MaxEvents > 0 {
			limits[sc.ID] = sc.MaxEvents
		}
	}
	if len(limits) == 0 {
		return buckets
	}

	counts := make(map[string]int)
	out := buckets[:0]
	for _, bucket := range buckets {
		kept := bucket.Events[:0]
		for _, e := range bucket.Events {
			if limit, ok := limits[e.SourceID]; ok && !e.EmptyDay {
				if counts[e.SourceID] >= limit {
					continue
				}
				counts[e.SourceID]++
			}
			kept = append(kept, e)
		}
		bucket.Events = kept
		if len(kept) > 0 {
			out = append(out, bucket)
		}
	}
	return out
}

// capGlobal enforces the compact event limit. Hard-cut mode truncates the
// day that reaches the limit; complete-days mode keeps that day whole.
// Days holding only placeholders are never dropped.
func (a *Agenda) capGlobal(buckets []model.DayBucket) []model.DayBucket {
	limit := int(a.cfg.Compact.Events)
	if limit <= 0 {
		return buckets
	}

	total := 0
	out := buckets[:0]
	for _, bucket := range buckets {
		n := bucket.RealEvents()
		switch {
		case n == 0:
			out = append(out, bucket)
		case total >= limit:
			// Past the limit; nothing more to add.
		case a.cfg.Compact.CompleteDays:
			out = append(out, bucket)
			total += n
		default:
			bucket.Events = truncateReal(bucket.Events, limit-total)
			total += bucket.RealEvents()
			out = append(out, bucket)
		}
	}
	return out
}

// truncateReal keeps at most n real events, leaving placeholders alone.
func truncateReal(events []model.ProcessedEvent, n int) []model.ProcessedEvent {
	out := make([]model.ProcessedEvent, 0, len(events))
	for _, e := range events {
		if !e.EmptyDay {
			if n == 0 {
				continue
			}
			n--
		}
		out = append(out, e)
	}
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
