package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"agendacal/internal/cache"
	"agendacal/internal/config"
	"agendacal/internal/model"
)

var (
	rangeStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2024, 1, 3, 23, 59, 59, 999e6, time.UTC)
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestStaticQuerierWindow(t *testing.T) {
	events := []model.CalendarEvent{
		{Summary: "before", Start: model.EventTime{Date: "2023-12-30"}, End: model.EventTime{Date: "2023-12-31"}},
		{Summary: "spanning", Start: model.EventTime{Date: "2023-12-31"}, End: model.EventTime{Date: "2024-01-02"}},
		{Summary: "inside", Start: model.EventTime{DateTime: "2024-01-02T10:00:00Z"}, End: model.EventTime{DateTime: "2024-01-02T11:00:00Z"}},
		{Summary: "after", Start: model.EventTime{DateTime: "2024-01-04T00:00:00Z"}, End: model.EventTime{DateTime: "2024-01-04T01:00:00Z"}},
		{Summary: "broken", Start: model.EventTime{Date: "not a date"}},
	}
	got, err := NewStaticQuerier(events, time.UTC).QueryEvents(context.Background(), "home", rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	var names []string
	for _, ev := range got {
		names = append(names, ev.Summary)
	}
	if diff := cmp.Diff([]string{"spanning", "inside"}, names); diff != "" {
		t.Errorf("summaries mismatch (-want +got):\n%s", diff)
	}
}

func TestGoogleQuerier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/primary/events" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("singleEvents") != "true" {
			t.Errorf("singleEvents not requested: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"a","summary":"Standup","status":"confirmed","start":{"dateTime":"2024-01-01T09:00:00Z"},"end":{"dateTime":"2024-01-01T09:15:00Z"}},
			{"id":"b","summary":"Gone","status":"cancelled","start":{"date":"2024-01-01"},"end":{"date":"2024-01-02"}},
			{"id":"c","summary":"Holiday","location":"Berlin, Germany","start":{"date":"2024-01-02"},"end":{"date":"2024-01-03"}}
		]}`))
	}))
	defer srv.Close()

	svc, err := calendar.NewService(context.Background(), option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	got, err := NewGoogleQuerierWithService(svc, nil).QueryEvents(context.Background(), "work", rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	want := []model.CalendarEvent{
		{
			SourceID: "work", UID: "a", Summary: "Standup",
			Start: model.EventTime{DateTime: "2024-01-01T09:00:00Z"},
			End:   model.EventTime{DateTime: "2024-01-01T09:15:00Z"},
		},
		{
			SourceID: "work", UID: "c", Summary: "Holiday", Location: "Berlin, Germany",
			Start: model.EventTime{Date: "2024-01-02"},
			End:   model.EventTime{Date: "2024-01-03"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

const caldavObject = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//agendacal//test//EN
BEGIN:VEVENT
UID:daily
DTSTAMP:20240101T000000Z
DTSTART:20240101T090000Z
DTEND:20240101T093000Z
RRULE:FREQ=DAILY;COUNT=5
SUMMARY:Daily
END:VEVENT
BEGIN:VEVENT
UID:daily
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240102T090000Z
DTSTART:20240102T110000Z
DTEND:20240102T113000Z
SUMMARY:Daily (late)
END:VEVENT
BEGIN:VEVENT
UID:offsite
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240103
SUMMARY:Offsite
END:VEVENT
END:VCALENDAR
`

func TestExpandCalendar(t *testing.T) {
	cal, err := ical.NewDecoder(strings.NewReader(crlf(caldavObject))).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := expandCalendar(cal, "team", rangeStart, rangeEnd, time.UTC)
	want := []model.CalendarEvent{
		{
			SourceID: "team", UID: "daily", Summary: "Daily",
			Start: model.EventTime{DateTime: "2024-01-01T09:00:00Z"},
			End:   model.EventTime{DateTime: "2024-01-01T09:30:00Z"},
		},
		{
			SourceID: "team", UID: "daily", Summary: "Daily (late)",
			Start: model.EventTime{DateTime: "2024-01-02T11:00:00Z"},
			End:   model.EventTime{DateTime: "2024-01-02T11:30:00Z"},
		},
		{
			SourceID: "team", UID: "daily", Summary: "Daily",
			Start: model.EventTime{DateTime: "2024-01-03T09:00:00Z"},
			End:   model.EventTime{DateTime: "2024-01-03T09:30:00Z"},
		},
		{
			SourceID: "team", UID: "offsite", Summary: "Offsite",
			Start: model.EventTime{Date: "2024-01-03"},
			End:   model.EventTime{Date: "2024-01-04"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expandCalendar mismatch (-want +got):\n%s", diff)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{Sources: []config.SourceConfig{
		{ID: "home", Type: "static", Events: []model.CalendarEvent{
			{Summary: "Dinner", Start: model.EventTime{DateTime: "2024-01-01T18:00:00Z"}, End: model.EventTime{DateTime: "2024-01-01T20:00:00Z"}},
		}},
		{ID: "feed", Type: "ics"},
		{ID: "odd", Type: "carrier-pigeon"},
	}}

	mux := FromConfig(context.Background(), cfg, cache.NewMemoryStore(), time.UTC)

	got, err := mux.QueryEvents(context.Background(), "home", rangeStart, rangeEnd)
	if err != nil || len(got) != 1 {
		t.Fatalf("static source: %d events, err %v", len(got), err)
	}
	for _, id := range []string{"feed", "odd"} {
		if _, err := mux.QueryEvents(context.Background(), id, rangeStart, rangeEnd); err == nil {
			t.Errorf("misconfigured source %s should fail its queries", id)
		}
	}
}
