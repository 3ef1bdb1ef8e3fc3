package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

// ErrNoCalendars is returned when discovery finds no collection to query.
var ErrNoCalendars = errors.New("no matching calendars")

// CalDAVQuerier serves a source from one or more CalDAV collections.
type CalDAVQuerier struct {
	client    *caldav.Client
	calendars []string // optional name filter
	loc       *time.Location
}

// NewCalDAVQuerier creates a querier for the server at url.
func NewCalDAVQuerier(url, username, password string, calendars []string, loc *time.Location) (*CalDAVQuerier, error) {
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &basicAuthTransport{
			username: username,
			password: password,
			base:     http.DefaultTransport,
		},
	}
	client, err := caldav.NewClient(httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return &CalDAVQuerier{client: client, calendars: calendars, loc: loc}, nil
}

func (q *CalDAVQuerier) QueryEvents(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error) {
	principal, err := q.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := q.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := q.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	}

	var (
		out               []model.CalendarEvent
		matched, answered int
		lastErr           error
	)
	for _, cal := range cals {
		if !q.wants(cal.Name) {
			continue
		}
		matched++
		objects, err := q.client.QueryCalendar(ctx, cal.Path, query)
		if err != nil {
			// One broken collection does not fail the source.
			appLog.Warn("caldav query failed", "id", sourceID, "calendar", cal.Name, "error", err.Error())
			lastErr = err
			continue
		}
		answered++
		for _, obj := range objects {
			if obj.Data == nil {
				continue
			}
			out = append(out, expandCalendar(obj.Data, sourceID, start, end, q.loc)...)
		}
	}
	switch {
	case matched == 0:
		return nil, fmt.Errorf("%w: none of %d calendars matches %v", ErrNoCalendars, len(cals), q.calendars)
	case answered == 0:
		return nil, fmt.Errorf("query calendars: %w", lastErr)
	}
	return out, nil
}

func (q *CalDAVQuerier) wants(name string) bool {
	if len(q.calendars) == 0 {
		return true
	}
	for _, c := range q.calendars {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

type occurrence struct {
	ev         ical.Event
	start, end time.Time
	allDay     bool
}

// expandCalendar turns the VEVENTs of one calendar object into events
// overlapping [start, end], expanding recurrences and applying
// RECURRENCE-ID overrides.
func expandCalendar(cal *ical.Calendar, sourceID string, start, end time.Time, loc *time.Location) []model.CalendarEvent {
	var masters []ical.Event
	overrides := make(map[int64]ical.Event)
	for _, ev := range cal.Events() {
		if p := ev.Props.Get(ical.PropRecurrenceID); p != nil {
			rid, err := p.DateTime(loc)
			if err != nil {
				rid, err = time.ParseInLocation("20060102", p.Value, loc)
			}
			if err == nil {
				overrides[rid.Unix()] = ev
				continue
			}
		}
		masters = append(masters, ev)
	}

	var occs []occurrence
	for _, ev := range masters {
		base, ok := eventSpan(ev, loc)
		if !ok {
			continue
		}
		dur := base.end.Sub(base.start)

		starts := []time.Time{base.start}
		rset, err := ev.RecurrenceSet(loc)
		if err != nil {
			appLog.Warn("caldav recurrence ignored", "id", sourceID, "summary", text(ev, ical.PropSummary), "error", err.Error())
		} else if rset != nil {
			starts = rset.Between(start.Add(-dur), end, true)
		}

		for _, s := range starts {
			occ := occurrence{ev: ev, start: s, end: s.Add(dur), allDay: base.allDay}
			if ov, ok := overrides[s.Unix()]; ok {
				delete(overrides, s.Unix())
				if span, ok := eventSpan(ov, loc); ok {
					occ = span
				}
			}
			occs = append(occs, occ)
		}
	}
	for _, ov := range overrides {
		if span, ok := eventSpan(ov, loc); ok {
			occs = append(occs, span)
		}
	}

	out := make([]model.CalendarEvent, 0, len(occs))
	for _, o := range occs {
		if !overlaps(o.start, o.end, start, end) {
			continue
		}
		ce := model.CalendarEvent{
			SourceID:    sourceID,
			UID:         text(o.ev, ical.PropUID),
			Summary:     text(o.ev, ical.PropSummary),
			Description: text(o.ev, ical.PropDescription),
			Location:    text(o.ev, ical.PropLocation),
		}
		if o.allDay {
			ce.Start = model.DateOf(o.start.In(loc))
			ce.End = model.DateOf(o.end.In(loc))
		} else {
			ce.Start = model.DateTimeOf(o.start.In(loc))
			ce.End = model.DateTimeOf(o.end.In(loc))
		}
		out = append(out, ce)
	}
	return out
}

// eventSpan resolves DTSTART/DTEND of a VEVENT. Missing ends default to one
// day for all-day events and zero length otherwise.
func eventSpan(ev ical.Event, loc *time.Location) (occurrence, bool) {
	p := ev.Props.Get(ical.PropDateTimeStart)
	if p == nil {
		return occurrence{}, false
	}
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return occurrence{}, false
	}
	allDay := p.ValueType() == ical.ValueDate || !strings.Contains(p.Value, "T")
	if allDay {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	}

	end, err := ev.DateTimeEnd(loc)
	if err != nil || end.Before(start) {
		end = start
	}
	if allDay && !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return occurrence{ev: ev, start: start, end: end, allDay: allDay}, true
}

func text(ev ical.Event, name string) string {
	if p := ev.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}
