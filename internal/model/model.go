package model

import (
	"fmt"
	"time"
)

// DateLayout is the layout of date-only values and of day bucket keys.
const DateLayout = "2006-01-02"

// EventTime is one endpoint of a calendar event as delivered by a source.
// Exactly one of Date (all-day) or DateTime (timed) is populated.
type EventTime struct {
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty" yaml:"dateTime,omitempty"`
}

// DateOf builds a date-only endpoint.
func DateOf(t time.Time) EventTime {
	return EventTime{Date: t.Format(DateLayout)}
}

// DateTimeOf builds a timed endpoint.
func DateTimeOf(t time.Time) EventTime {
	return EventTime{DateTime: t.Format(time.RFC3339Nano)}
}

// AllDay reports whether the endpoint is a date-only value.
func (t EventTime) AllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// IsZero reports whether neither value is populated.
func (t EventTime) IsZero() bool {
	return t.Date == "" && t.DateTime == ""
}

// Time resolves the endpoint in loc. Date-only values resolve to local midnight.
func (t EventTime) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	switch {
	case t.DateTime != "":
		v, err := time.Parse(time.RFC3339Nano, t.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse dateTime %q: %w", t.DateTime, err)
		}
		return v.In(loc), nil
	case t.Date != "":
		v, err := time.ParseInLocation(DateLayout, t.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", t.Date, err)
		}
		return v, nil
	default:
		return time.Time{}, fmt.Errorf("event time has neither date nor dateTime")
	}
}

// Signature is the textual form used in duplicate signatures.
func (t EventTime) Signature() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// CalendarEvent is a raw event as returned by a source query.
type CalendarEvent struct {
	SourceID    string `json:"source_id"`
	UID         string `json:"uid,omitempty"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start EventTime `json:"start"`
	// End is exclusive for date-only events.
	End EventTime `json:"end"`
}

// AllDay reports whether the event is expressed with date-only endpoints.
func (e CalendarEvent) AllDay() bool {
	return e.Start.AllDay()
}

// ProcessedEvent is a CalendarEvent with resolved display fields. After the
// splitting stage it covers exactly one calendar day.
type ProcessedEvent struct {
	CalendarEvent

	// Start/End are resolved in the display timezone. For all-day events
	// End is the following local midnight.
	Start  time.Time `json:"start_time"`
	End    time.Time `json:"end_time"`
	AllDay bool      `json:"all_day"`

	TimeText     string `json:"time_text,omitempty"`
	LocationText string `json:"location_text,omitempty"`
	Label        string `json:"label,omitempty"`
	Color        string `json:"color,omitempty"`
	AccentColor  string `json:"accent_color,omitempty"`
	ShowTime     bool   `json:"show_time"`
	ShowLocation bool   `json:"show_location"`

	// Segment is the 1-based position of this day within a split event and
	// Segments the total number of days. Unsplit events have 1/1.
	Segment  int `json:"segment,omitempty"`
	Segments int `json:"segments,omitempty"`

	// EmptyDay marks the synthetic entry of a placeholder day.
	EmptyDay bool `json:"empty_day,omitempty"`
}

// Day returns the local calendar date of the event as a bucket key.
func (e ProcessedEvent) Day() string {
	return e.Start.Format(DateLayout)
}

// DayBucket is the display aggregate for one calendar day.
type DayBucket struct {
	Date       string     `json:"date"`
	Weekday    string     `json:"weekday"`
	DayOfMonth int        `json:"day"`
	Month      time.Month `json:"month"`
	MonthName  string     `json:"month_name"`
	// Timestamp is local midnight in epoch milliseconds.
	Timestamp int64            `json:"timestamp"`
	Events    []ProcessedEvent `json:"events"`

	WeekNumber   *int `json:"week_number"`
	FirstOfWeek  bool `json:"first_of_week"`
	FirstOfMonth bool `json:"first_of_month"`
	Today        bool `json:"today"`
}

// RealEvents counts the non-placeholder events in the bucket.
func (b DayBucket) RealEvents() int {
	n := 0
	for _, e := range b.Events {
		if !e.EmptyDay {
			n++
		}
	}
	return n
}

// Placeholder reports whether the bucket is a synthesized empty day.
func (b DayBucket) Placeholder() bool {
	return len(b.Events) > 0 && b.RealEvents() == 0
}
