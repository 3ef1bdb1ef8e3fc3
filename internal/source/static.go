package source

import (
	"context"
	"time"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

// StaticQuerier serves events listed inline in the configuration.
type StaticQuerier struct {
	events []model.CalendarEvent
	loc    *time.Location
}

func NewStaticQuerier(events []model.CalendarEvent, loc *time.Location) *StaticQuerier {
	return &StaticQuerier{events: events, loc: loc}
}

func (q *StaticQuerier) QueryEvents(_ context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error) {
	out := make([]model.CalendarEvent, 0, len(q.events))
	for _, ev := range q.events {
		s, err := ev.Start.Time(q.loc)
		if err != nil {
			appLog.Warn("static event skipped", "id", sourceID, "summary", ev.Summary, "error", err.Error())
			continue
		}
		e, err := ev.End.Time(q.loc)
		if err != nil {
			e = s
			if ev.AllDay() {
				e = s.AddDate(0, 0, 1)
			}
		}
		if overlaps(s, e, start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}
