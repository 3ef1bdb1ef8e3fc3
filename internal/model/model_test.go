package model

import (
	"testing"
	"time"
)

func TestEventTimeResolve(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		name    string
		in      EventTime
		want    time.Time
		allDay  bool
		wantErr bool
	}{
		{
			name:   "date only is local midnight",
			in:     EventTime{Date: "2024-01-01"},
			want:   time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
			allDay: true,
		},
		{
			name: "date time is converted",
			in:   EventTime{DateTime: "2024-01-01T08:00:00Z"},
			want: time.Date(2024, 1, 1, 10, 0, 0, 0, loc),
		},
		{
			name:    "empty",
			in:      EventTime{},
			wantErr: true,
		},
		{
			name:    "garbage date",
			in:      EventTime{Date: "2024-13-45"},
			allDay:  true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Time(loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Time() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.in.AllDay() != tt.allDay {
				t.Errorf("AllDay() = %v, want %v", tt.in.AllDay(), tt.allDay)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("Time() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayBucketCounts(t *testing.T) {
	b := DayBucket{Events: []ProcessedEvent{{EmptyDay: true}}}
	if !b.Placeholder() || b.RealEvents() != 0 {
		t.Errorf("placeholder bucket: Placeholder=%v RealEvents=%d", b.Placeholder(), b.RealEvents())
	}

	b.Events = append(b.Events, ProcessedEvent{})
	if b.Placeholder() || b.RealEvents() != 1 {
		t.Errorf("mixed bucket: Placeholder=%v RealEvents=%d", b.Placeholder(), b.RealEvents())
	}
}
