// Package format fills the display fields of processed events.
package format

import (
	"strings"
	"time"

	"agendacal/internal/config"
	"agendacal/internal/locale"
	"agendacal/internal/model"
)

const (
	clock24 = "15:04"
	clock12 = "3:04 PM"
)

// Formatter resolves per-source display settings and time/location text.
type Formatter struct {
	cfg     *config.Config
	strings locale.Strings
	layout  string
}

func New(cfg *config.Config) *Formatter {
	layout := clock24
	if cfg.TimeFormat == "12h" {
		layout = clock12
	}
	return &Formatter{cfg: cfg, strings: locale.Lookup(cfg.Locale), layout: layout}
}

// Apply sets label, colours, visibility flags, time text and location text.
func (f *Formatter) Apply(e *model.ProcessedEvent) {
	sc, _ := f.cfg.Source(e.SourceID)

	e.Label = sc.Label
	e.Color = sc.Color
	e.AccentColor = sc.AccentColor
	if e.AccentColor == "" {
		e.AccentColor = sc.Color
	}

	e.ShowTime = true
	if sc.ShowTime != nil {
		e.ShowTime = *sc.ShowTime
	}
	e.ShowLocation = f.cfg.ShowLocation
	if sc.ShowLocation != nil {
		e.ShowLocation = *sc.ShowLocation
	}

	e.TimeText = f.TimeText(*e)
	e.LocationText = LocationText(e.Location, f.cfg.StripCountry)
}

// TimeText renders the time column of one event. Segments of a split
// timed event only show the side that falls on their day.
func (f *Formatter) TimeText(e model.ProcessedEvent) string {
	if e.AllDay {
		return f.strings.AllDay
	}
	start := f.Clock(e.Start)
	switch {
	case e.Segments > 1 && e.Segment == 1:
		return start + " →"
	case e.Segments > 1 && e.Segment == e.Segments:
		return "→ " + f.Clock(e.End)
	case f.cfg.ShowEndTime && e.End.After(e.Start):
		return start + " – " + f.Clock(e.End)
	default:
		return start
	}
}

// Clock formats t in the configured 12h/24h style.
func (f *Formatter) Clock(t time.Time) string {
	return t.Format(f.layout)
}

// LocationText flattens multi-line locations and optionally drops a
// trailing country component ("Main St 1, Berlin, Germany" -> "Main St 1, Berlin").
func LocationText(location string, stripCountry bool) string {
	parts := strings.FieldsFunc(location, func(r rune) bool { return r == '\n' || r == ',' })
	clean := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	if stripCountry && len(clean) > 1 {
		clean = clean[:len(clean)-1]
	}
	return strings.Join(clean, ", ")
}
