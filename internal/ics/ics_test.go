package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"agendacal/internal/cache"
	"agendacal/internal/model"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//agendacal//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20240101T000000Z
DTSTART:20240101T090000Z
DTEND:20240101T091500Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240103T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup
DTSTAMP:20240101T000000Z
RECURRENCE-ID:20240102T090000Z
DTSTART:20240102T100000Z
DTEND:20240102T101500Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:trip
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240102
DTEND;VALUE=DATE:20240104
SUMMARY:Trip
LOCATION:Lisbon
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseAndExpand(t *testing.T) {
	parsed, err := ParseICS("family", crlf(sampleICS))
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("parsed %d events, want 3", len(parsed))
	}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 1, 3, 23, 59, 59, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}

	want := []model.CalendarEvent{
		{
			SourceID: "family", UID: "standup", Summary: "Standup",
			Start: model.EventTime{DateTime: "2024-01-01T09:00:00Z"},
			End:   model.EventTime{DateTime: "2024-01-01T09:15:00Z"},
		},
		{
			SourceID: "family", UID: "trip", Summary: "Trip", Location: "Lisbon",
			Start: model.EventTime{Date: "2024-01-02"},
			End:   model.EventTime{Date: "2024-01-04"},
		},
		{
			SourceID: "family", UID: "standup", Summary: "Standup (moved)",
			Start: model.EventTime{DateTime: "2024-01-02T10:00:00Z"},
			End:   model.EventTime{DateTime: "2024-01-02T10:15:00Z"},
		},
	}
	if diff := cmp.Diff(want, res.Events); diff != "" {
		t.Errorf("ExpandEvents mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	if _, err := ExpandEvents(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)}); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestParseEmptyBody(t *testing.T) {
	if _, err := ParseICS("x", nil); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestFetchOneConditionalAndFallback(t *testing.T) {
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(sampleICS))
	}))

	f := NewFetcher(cache.NewMemoryStore())
	src := Source{ID: "family", URL: srv.URL + "/private.ics"}

	first, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || len(first.Body) == 0 {
		t.Fatalf("first fetch: FromCache=%v bytes=%d", first.FromCache, len(first.Body))
	}

	second, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || notModified.Load() != 1 {
		t.Errorf("second fetch: FromCache=%v notModified=%d", second.FromCache, notModified.Load())
	}

	srv.Close()
	third, err := f.FetchOne(context.Background(), src)
	if err != nil {
		t.Fatalf("fetch with server down should use cache: %v", err)
	}
	if !third.FromCache || string(third.Body) != string(first.Body) {
		t.Errorf("third fetch: FromCache=%v", third.FromCache)
	}

	_, err = f.FetchOne(context.Background(), Source{ID: "other", URL: srv.URL + "/other.ics"})
	if err == nil {
		t.Error("uncached source with server down should fail")
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/path/private.ics?token=abcd": "https://example.com/...(redacted)",
		"webcal://cal.example.org":                        "webcal://cal.example.org/...(redacted)",
		"not a url":                                       "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
