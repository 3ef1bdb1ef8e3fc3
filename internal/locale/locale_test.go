package locale

import (
	"testing"
	"time"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		locale   string
		noEvents string
	}{
		{"en", "No events"},
		{"de-AT", "Keine Termine"},
		{"fr-CA", "Aucun événement"},
		{"ko-KR", "일정 없음"},
		{"ja", "No events"},
		{"!!", "No events"},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			if got := Lookup(tt.locale).NoEvents; got != tt.noEvents {
				t.Errorf("Lookup(%q).NoEvents = %q, want %q", tt.locale, got, tt.noEvents)
			}
		})
	}

	s := Lookup("de")
	if s.Month(time.March) != "März" || s.Weekday(time.Sunday) != "So" {
		t.Errorf("unexpected German names: %q %q", s.Month(time.March), s.Weekday(time.Sunday))
	}
}

func TestParseWeekStart(t *testing.T) {
	tests := []struct {
		value, locale string
		want          time.Weekday
	}{
		{"monday", "en-US", time.Monday},
		{"sunday", "de-DE", time.Sunday},
		{"saturday", "", time.Saturday},
		{"locale", "en-US", time.Sunday},
		{"locale", "en-GB", time.Monday},
		{"locale", "ar-SA", time.Saturday},
		{"locale", "de-DE", time.Monday},
		{"", "en-US", time.Monday},
	}
	for _, tt := range tests {
		t.Run(tt.value+"/"+tt.locale, func(t *testing.T) {
			if got := ParseWeekStart(tt.value, tt.locale); got != tt.want {
				t.Errorf("ParseWeekStart(%q, %q) = %v, want %v", tt.value, tt.locale, got, tt.want)
			}
		})
	}
}
