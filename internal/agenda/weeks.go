package agenda

import (
	"time"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

// annotate fills date components, week numbers and boundary flags. The
// flags mark a bucket that starts a new week or month relative to the
// previous bucket; the first bucket is flagged only when it falls on the
// first weekday or the 1st of the month.
func (a *Agenda) annotate(buckets []model.DayBucket, today time.Time) []model.DayBucket {
	var prev time.Time
	for i := range buckets {
		b := &buckets[i]
		day, err := time.ParseInLocation(model.DateLayout, b.Date, a.loc)
		if err != nil {
			appLog.Warn("bucket with bad date", "date", b.Date)
			continue
		}

		b.Weekday = a.strings.Weekday(day.Weekday())
		b.DayOfMonth = day.Day()
		b.Month = day.Month()
		b.MonthName = a.strings.Month(day.Month())
		b.Timestamp = day.UnixMilli()
		b.WeekNumber = a.weekNumber(day)
		b.Today = day.Equal(today)

		if i == 0 {
			b.FirstOfWeek = day.Weekday() == a.first
			b.FirstOfMonth = day.Day() == 1
		} else {
			b.FirstOfWeek = !a.weekStart(day).Equal(a.weekStart(prev))
			b.FirstOfMonth = day.Month() != prev.Month() || day.Year() != prev.Year()
		}
		prev = day
	}
	return buckets
}

// weekStart returns the first day of the display week containing day.
func (a *Agenda) weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) - int(a.first) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// weekNumber returns nil when week numbers are disabled.
func (a *Agenda) weekNumber(day time.Time) *int {
	var n int
	switch a.cfg.WeekNumbers {
	case "iso":
		n = isoWeek(day, a.first)
	case "simple":
		n = simpleWeek(day, a.first)
	default:
		return nil
	}
	return &n
}

// isoWeek is the ISO 8601 week number. When the display week starts before
// Monday, the days ahead of Monday take the week of the following Monday so
// the number matches the majority of the visible week.
func isoWeek(day time.Time, first time.Weekday) int {
	mondayOffset := (int(time.Monday) - int(first) + 7) % 7
	offset := (int(day.Weekday()) - int(first) + 7) % 7
	if offset < mondayOffset {
		day = day.AddDate(0, 0, mondayOffset-offset)
	}
	_, w := day.ISOWeek()
	return w
}

// simpleWeek counts display weeks from January 1st, which is always in
// week 1.
func simpleWeek(day time.Time, first time.Weekday) int {
	jan1 := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
	lead := (int(jan1.Weekday()) - int(first) + 7) % 7
	return (day.YearDay()-1+lead)/7 + 1
}
