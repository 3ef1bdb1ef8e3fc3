// Package filter applies per-source allow/block patterns and removes
// duplicate events across sources.
package filter

import (
	"regexp"
	"sort"
	"strings"

	"agendacal/internal/config"
	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

type rule struct {
	re    *regexp.Regexp
	allow bool
}

// Filter is built once per configuration and may be reused across cycles.
type Filter struct {
	rules    map[string]rule
	priority map[string]int
	dedup    bool
}

// New compiles the patterns of cfg. An invalid pattern disables filtering
// for its source and is logged.
func New(cfg *config.Config) *Filter {
	f := &Filter{
		rules:    make(map[string]rule),
		priority: cfg.SourceIndex(),
		dedup:    cfg.FilterDuplicates,
	}
	for _, sc := range cfg.Sources {
		pattern, allow := sc.Block, false
		if sc.Allow != "" {
			pattern, allow = sc.Allow, true
		}
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			appLog.Warn("invalid filter pattern ignored", "id", sc.ID, "pattern", pattern, "error", err.Error())
			continue
		}
		f.rules[sc.ID] = rule{re: re, allow: allow}
	}
	return f
}

// Apply returns the events that pass the source patterns, ordered by source
// priority. With deduplication enabled only the first event of each
// Signature survives. Applying it to its own output is a no-op.
func (f *Filter) Apply(events []model.CalendarEvent) []model.CalendarEvent {
	kept := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if f.keep(ev) {
			kept = append(kept, ev)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return f.rank(kept[i].SourceID) < f.rank(kept[j].SourceID)
	})

	if !f.dedup {
		return kept
	}

	seen := make(map[string]bool, len(kept))
	out := kept[:0]
	for _, ev := range kept {
		sig := Signature(ev)
		if seen[sig] {
			appLog.Debug("duplicate dropped", "id", ev.SourceID, "summary", ev.Summary)
			continue
		}
		seen[sig] = true
		out = append(out, ev)
	}
	return out
}

func (f *Filter) keep(ev model.CalendarEvent) bool {
	r, ok := f.rules[ev.SourceID]
	if !ok {
		return true
	}
	return r.re.MatchString(ev.Summary) == r.allow
}

// rank orders unknown sources after all configured ones.
func (f *Filter) rank(id string) int {
	if p, ok := f.priority[id]; ok {
		return p
	}
	return len(f.priority)
}

// Signature identifies an event independent of its source.
func Signature(ev model.CalendarEvent) string {
	var b strings.Builder
	b.WriteString(ev.Summary)
	b.WriteByte('|')
	b.WriteString(ev.Start.Signature())
	b.WriteByte('-')
	b.WriteString(ev.End.Signature())
	b.WriteByte('|')
	b.WriteString(ev.Location)
	return b.String()
}
