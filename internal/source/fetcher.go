package source

import (
	"context"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
	"agendacal/internal/window"
)

// Request describes one fetch cycle.
type Request struct {
	// Sources in priority order. Duplicate ids are queried once.
	Sources []string
	Window  window.Window
	// Today is the narrowed window used by the fallback query.
	Today window.Window
	// Holding tells the fetcher the caller still has events from an
	// earlier cycle, which suppresses the fallback query.
	Holding bool
}

// Result is the outcome of a fetch cycle.
type Result struct {
	Events []model.CalendarEvent
	// Failed lists the ids whose query returned an error.
	Failed []string
	// Queried is the number of distinct ids that were asked.
	Queried int
	// Fallback is true when the events come from the today-only query.
	Fallback bool
}

// AllFailed reports whether at least one source was queried and none of
// them answered.
func (r Result) AllFailed() bool {
	return r.Queried > 0 && len(r.Failed) == r.Queried
}

// Fetcher runs one query per source and isolates failures.
type Fetcher struct {
	q Querier
}

func NewFetcher(q Querier) *Fetcher {
	return &Fetcher{q: q}
}

// Fetch queries every source sequentially. It never fails: broken sources
// contribute nothing and, if all of them broke while the caller holds no
// events, the first source is asked for today only.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	var res Result
	seen := make(map[string]bool, len(req.Sources))

	for _, id := range req.Sources {
		if seen[id] {
			continue
		}
		seen[id] = true
		res.Queried++

		events, err := f.q.QueryEvents(ctx, id, req.Window.Start, req.Window.End)
		if err != nil {
			appLog.Warn("source query failed", "id", id, "error", err.Error())
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Events = append(res.Events, tag(id, events)...)
		appLog.Debug("source query done", "id", id, "events", len(events))
	}

	if !res.AllFailed() || req.Holding {
		return res
	}

	first := req.Sources[0]
	appLog.Warn("all sources failed; trying today only", "id", first)
	events, err := f.q.QueryEvents(ctx, first, req.Today.Start, req.Today.End)
	if err != nil {
		appLog.Error("fallback query failed", err, "id", first)
		return res
	}
	res.Events = tag(first, events)
	res.Fallback = true
	return res
}

func tag(id string, events []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, len(events))
	for i, ev := range events {
		ev.SourceID = id
		out[i] = ev
	}
	return out
}
