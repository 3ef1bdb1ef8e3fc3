// Package locale holds the small built-in string tables the agenda needs
// (month and weekday names, "all day", "no events") and the locale-derived
// first day of the week.
package locale

import (
	"time"

	"golang.org/x/text/language"
)

// Strings is one translation table.
type Strings struct {
	Tag      language.Tag
	AllDay   string
	NoEvents string
	Months   [12]string
	Weekdays [7]string // indexed by time.Weekday
}

// Month returns the localized month name.
func (s Strings) Month(m time.Month) string {
	return s.Months[m-1]
}

// Weekday returns the localized short weekday name.
func (s Strings) Weekday(d time.Weekday) string {
	return s.Weekdays[d]
}

var tables = []Strings{
	{
		Tag:      language.English,
		AllDay:   "All day",
		NoEvents: "No events",
		Months:   [12]string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
		Weekdays: [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	},
	{
		Tag:      language.German,
		AllDay:   "Ganztägig",
		NoEvents: "Keine Termine",
		Months:   [12]string{"Januar", "Februar", "März", "April", "Mai", "Juni", "Juli", "August", "September", "Oktober", "November", "Dezember"},
		Weekdays: [7]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"},
	},
	{
		Tag:      language.French,
		AllDay:   "Toute la journée",
		NoEvents: "Aucun événement",
		Months:   [12]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"},
		Weekdays: [7]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."},
	},
	{
		Tag:      language.Korean,
		AllDay:   "종일",
		NoEvents: "일정 없음",
		Months:   [12]string{"1월", "2월", "3월", "4월", "5월", "6월", "7월", "8월", "9월", "10월", "11월", "12월"},
		Weekdays: [7]string{"일", "월", "화", "수", "목", "금", "토"},
	},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(tables))
	for i, t := range tables {
		tags[i] = t.Tag
	}
	return language.NewMatcher(tags)
}()

// Lookup returns the table that best matches the given BCP 47 locale.
// Unknown or malformed locales get English.
func Lookup(locale string) Strings {
	tag, err := language.Parse(locale)
	if err != nil {
		return tables[0]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return tables[0]
	}
	return tables[idx]
}

// Tag parses a locale, falling back to English.
func Tag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

// sundayFirst lists regions whose calendars conventionally start on Sunday.
var sundayFirst = map[string]bool{
	"US": true, "CA": true, "MX": true, "BR": true, "JP": true, "KR": true,
	"TW": true, "HK": true, "IL": true, "IN": true, "PH": true, "ZA": true,
}

// saturdayFirst lists regions whose calendars conventionally start on Saturday.
var saturdayFirst = map[string]bool{
	"AE": true, "AF": true, "BH": true, "DZ": true, "EG": true, "IQ": true,
	"IR": true, "JO": true, "KW": true, "LY": true, "OM": true, "QA": true,
	"SA": true, "SD": true, "SY": true,
}

// FirstWeekday derives the first day of the week from the locale's region,
// inferring the most likely region when none is given ("en" -> US).
func FirstWeekday(locale string) time.Weekday {
	region, conf := Tag(locale).Region()
	if conf == language.No {
		return time.Monday
	}
	switch {
	case sundayFirst[region.String()]:
		return time.Sunday
	case saturdayFirst[region.String()]:
		return time.Saturday
	default:
		return time.Monday
	}
}

// ParseWeekStart resolves a configured week start ("monday", "sunday",
// "saturday", "locale").
func ParseWeekStart(value, locale string) time.Weekday {
	switch value {
	case "sunday":
		return time.Sunday
	case "saturday":
		return time.Saturday
	case "locale":
		return FirstWeekday(locale)
	default:
		return time.Monday
	}
}
