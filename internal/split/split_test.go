package split

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"agendacal/internal/config"
	"agendacal/internal/model"
)

type segment struct {
	Start, End string
	AllDay     bool
	Segment    int
	Segments   int
}

func segments(t *testing.T, events []model.ProcessedEvent) []segment {
	t.Helper()
	const layout = "2006-01-02 15:04:05.000"
	out := make([]segment, 0, len(events))
	for _, e := range events {
		out = append(out, segment{
			Start:    e.Start.Format(layout),
			End:      e.End.Format(layout),
			AllDay:   e.AllDay,
			Segment:  e.Segment,
			Segments: e.Segments,
		})
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		in      model.CalendarEvent
		enabled bool
		want    []segment
	}{
		{
			name: "three day all-day event",
			in: model.CalendarEvent{
				Start: model.EventTime{Date: "2024-01-01"},
				End:   model.EventTime{Date: "2024-01-04"},
			},
			enabled: true,
			want: []segment{
				{"2024-01-01 00:00:00.000", "2024-01-02 00:00:00.000", true, 1, 3},
				{"2024-01-02 00:00:00.000", "2024-01-03 00:00:00.000", true, 2, 3},
				{"2024-01-03 00:00:00.000", "2024-01-04 00:00:00.000", true, 3, 3},
			},
		},
		{
			name: "single all-day event is untouched",
			in: model.CalendarEvent{
				Start: model.EventTime{Date: "2024-01-01"},
				End:   model.EventTime{Date: "2024-01-02"},
			},
			enabled: true,
			want: []segment{
				{"2024-01-01 00:00:00.000", "2024-01-02 00:00:00.000", true, 1, 1},
			},
		},
		{
			name: "timed event over three days",
			in: model.CalendarEvent{
				Start: model.EventTime{DateTime: "2024-01-01T22:00:00Z"},
				End:   model.EventTime{DateTime: "2024-01-03T02:30:00Z"},
			},
			enabled: true,
			want: []segment{
				{"2024-01-01 22:00:00.000", "2024-01-01 23:59:59.999", false, 1, 3},
				{"2024-01-02 00:00:00.000", "2024-01-03 00:00:00.000", true, 2, 3},
				{"2024-01-03 00:00:00.000", "2024-01-03 02:30:00.000", false, 3, 3},
			},
		},
		{
			name: "end at midnight makes the last day all-day",
			in: model.CalendarEvent{
				Start: model.EventTime{DateTime: "2024-01-01T20:00:00Z"},
				End:   model.EventTime{DateTime: "2024-01-03T00:00:00Z"},
			},
			enabled: true,
			want: []segment{
				{"2024-01-01 20:00:00.000", "2024-01-01 23:59:59.999", false, 1, 2},
				{"2024-01-02 00:00:00.000", "2024-01-03 00:00:00.000", true, 2, 2},
			},
		},
		{
			name: "ending exactly at the next midnight does not cross",
			in: model.CalendarEvent{
				Start: model.EventTime{DateTime: "2024-01-01T22:00:00Z"},
				End:   model.EventTime{DateTime: "2024-01-02T00:00:00Z"},
			},
			enabled: true,
			want: []segment{
				{"2024-01-01 22:00:00.000", "2024-01-02 00:00:00.000", false, 1, 1},
			},
		},
		{
			name: "disabled keeps one event",
			in: model.CalendarEvent{
				Start: model.EventTime{Date: "2024-01-01"},
				End:   model.EventTime{Date: "2024-01-04"},
			},
			want: []segment{
				{"2024-01-01 00:00:00.000", "2024-01-04 00:00:00.000", true, 1, 1},
			},
		},
		{
			name: "missing all-day end is one day",
			in: model.CalendarEvent{
				Start: model.EventTime{Date: "2024-01-01"},
			},
			enabled: true,
			want: []segment{
				{"2024-01-01 00:00:00.000", "2024-01-02 00:00:00.000", true, 1, 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.in, time.UTC, tt.enabled)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			if diff := cmp.Diff(tt.want, segments(t, got)); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitRewritesSegmentDates(t *testing.T) {
	got, err := Split(model.CalendarEvent{
		Summary: "Conference",
		Start:   model.EventTime{Date: "2024-01-01"},
		End:     model.EventTime{Date: "2024-01-03"},
	}, time.UTC, true)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.EventTime{{Date: "2024-01-01"}, {Date: "2024-01-02"}}
	for i, seg := range got {
		if seg.CalendarEvent.Start != want[i] {
			t.Errorf("segment %d start = %+v, want %+v", i, seg.CalendarEvent.Start, want[i])
		}
		if seg.Summary != "Conference" {
			t.Errorf("segment %d lost its summary", i)
		}
	}
}

func TestSplitInvalidStart(t *testing.T) {
	if _, err := Split(model.CalendarEvent{Start: model.EventTime{DateTime: "yesterday"}}, time.UTC, true); err == nil {
		t.Fatal("expected error for unparseable start")
	}
}

func TestEnabled(t *testing.T) {
	off, on := false, true
	cfg := &config.Config{
		SplitMultiDay: true,
		Sources: []config.SourceConfig{
			{ID: "work", SplitMultiDay: &off},
			{ID: "home"},
		},
	}
	if Enabled(cfg, "work") {
		t.Error("per-source false should win")
	}
	if !Enabled(cfg, "home") || !Enabled(cfg, "unknown") {
		t.Error("global setting should apply")
	}

	cfg.SplitMultiDay = false
	cfg.Sources[1].SplitMultiDay = &on
	if !Enabled(cfg, "home") {
		t.Error("per-source true should win")
	}
}
