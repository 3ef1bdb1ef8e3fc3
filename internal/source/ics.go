package source

import (
	"context"
	"fmt"
	"time"

	"agendacal/internal/ics"
	"agendacal/internal/model"
)

// ICSQuerier serves a source from an ICS subscription.
type ICSQuerier struct {
	fetcher *ics.Fetcher
	src     ics.Source
	loc     *time.Location
}

func NewICSQuerier(fetcher *ics.Fetcher, src ics.Source, loc *time.Location) *ICSQuerier {
	return &ICSQuerier{fetcher: fetcher, src: src, loc: loc}
}

func (q *ICSQuerier) QueryEvents(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error) {
	res, err := q.fetcher.FetchOne(ctx, q.src)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.ParseICS(sourceID, res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sourceID, err)
	}
	expanded, err := ics.ExpandEvents(parsed, ics.ExpandConfig{
		DisplayLocation: q.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		return nil, err
	}
	return expanded.Events, nil
}
