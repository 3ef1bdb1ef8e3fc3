// Package pipeline runs one aggregation cycle: window, cache, fetch,
// filter, split, format, cache write, bucketing and empty-day fill.
package pipeline

import (
	"context"
	"time"

	"agendacal/internal/agenda"
	"agendacal/internal/cache"
	"agendacal/internal/config"
	"agendacal/internal/filter"
	"agendacal/internal/format"
	appLog "agendacal/internal/log"
	"agendacal/internal/model"
	"agendacal/internal/source"
	"agendacal/internal/split"
	"agendacal/internal/window"
)

// Options select the view of one request.
type Options struct {
	// Expanded shows the full range without compact limits.
	Expanded bool
	// Reload marks a request caused by a manual reload.
	Reload bool
}

// Engine holds the state of one agenda instance. It is not safe for
// concurrent use; callers serialize requests.
type Engine struct {
	cfg     *config.Config
	loc     *time.Location
	fetcher *source.Fetcher
	cache   *cache.Cache
	filter  *filter.Filter
	format  *format.Formatter
	agenda  *agenda.Agenda
	now     func() time.Time

	held    []model.ProcessedEvent
	lastKey string
}

// New creates an Engine for cfg reading events through q.
func New(cfg *config.Config, q source.Querier, c *cache.Cache) *Engine {
	e := &Engine{cache: c, now: time.Now}
	e.configure(cfg, q)
	return e
}

// SetClock replaces the time source, mostly for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the active configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Reconfigure swaps configuration and querier. When the cache fingerprint
// changes the previous entry is deleted and held events are dropped.
func (e *Engine) Reconfigure(cfg *config.Config, q source.Querier) {
	oldKey := e.lastKey
	e.configure(cfg, q)
	if oldKey != "" && oldKey != cache.Fingerprint(cfg) {
		appLog.Info("configuration changed; invalidating cache", "key", oldKey)
		e.cache.Delete(oldKey)
		e.held = nil
		e.lastKey = ""
	}
}

func (e *Engine) configure(cfg *config.Config, q source.Querier) {
	e.cfg = cfg
	e.loc = cfg.Location()
	e.fetcher = source.NewFetcher(q)
	e.filter = filter.New(cfg)
	e.format = format.New(cfg)
	e.agenda = agenda.New(cfg, e.loc)
}

// Window returns the current display window.
func (e *Engine) Window() window.Window {
	return window.Resolve(int(e.cfg.Days), e.cfg.StartDate, e.now().In(e.loc), e.loc)
}

// Location returns the display timezone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Days runs a cycle and returns the day buckets for the requested view.
// It never fails; the worst case is an empty or stale result.
func (e *Engine) Days(ctx context.Context, opts Options) []model.DayBucket {
	now := e.now().In(e.loc)
	w := window.Resolve(int(e.cfg.Days), e.cfg.StartDate, now, e.loc)

	events := e.events(ctx, w, now, opts.Reload, false)
	buckets := e.agenda.Build(events, w, now, opts.Expanded)
	buckets = e.agenda.FillEmptyDays(buckets, w, now, opts.Expanded)
	if buckets == nil {
		buckets = []model.DayBucket{}
	}
	return buckets
}

// Events runs a cycle and returns the processed events before bucketing.
func (e *Engine) Events(ctx context.Context, reload bool) []model.ProcessedEvent {
	now := e.now().In(e.loc)
	w := window.Resolve(int(e.cfg.Days), e.cfg.StartDate, now, e.loc)
	return e.events(ctx, w, now, reload, false)
}

// Refresh fetches from the sources without consulting the cache and
// stores the result, so later requests find a fresh entry.
func (e *Engine) Refresh(ctx context.Context) []model.ProcessedEvent {
	now := e.now().In(e.loc)
	w := window.Resolve(int(e.cfg.Days), e.cfg.StartDate, now, e.loc)
	return e.events(ctx, w, now, false, true)
}

// Sweep removes this instance's expired cache entries.
func (e *Engine) Sweep() int {
	return e.cache.Sweep(cache.KeyPrefix(e.cfg), cache.TTL(e.cfg, false))
}

func (e *Engine) events(ctx context.Context, w window.Window, now time.Time, reload, bypass bool) []model.ProcessedEvent {
	key := cache.Fingerprint(e.cfg)
	if !bypass {
		if cached, ok := e.cache.Get(key, cache.TTL(e.cfg, reload)); ok {
			appLog.Debug("cache hit", "key", key, "events", len(cached))
			e.held, e.lastKey = cached, key
			return cached
		}
	}

	ids := make([]string, 0, len(e.cfg.Sources))
	for _, sc := range e.cfg.Sources {
		ids = append(ids, sc.ID)
	}

	res := e.fetcher.Fetch(ctx, source.Request{
		Sources: ids,
		Window:  w,
		Today:   window.Today(now, e.loc),
		Holding: len(e.held) > 0,
	})

	if res.AllFailed() && !res.Fallback && len(e.held) > 0 {
		appLog.Warn("all sources failed; serving held events", "events", len(e.held))
		return e.held
	}

	processed := e.process(e.filter.Apply(res.Events))

	// Neither a today-only fallback nor a total failure is a complete
	// answer for the window; only real fetches are cached.
	if !res.Fallback && !res.AllFailed() {
		if err := e.cache.Put(key, processed); err != nil {
			appLog.Error("cache write failed", err, "key", key)
		}
	}

	e.held, e.lastKey = processed, key
	appLog.Info("fetch cycle done", "events", len(processed), "failed", len(res.Failed), "fallback", res.Fallback)
	return processed
}

// process splits and formats filtered events.
func (e *Engine) process(events []model.CalendarEvent) []model.ProcessedEvent {
	out := make([]model.ProcessedEvent, 0, len(events))
	for _, ev := range events {
		segs, err := split.Split(ev, e.loc, split.Enabled(e.cfg, ev.SourceID))
		if err != nil {
			appLog.Warn("event skipped", "id", ev.SourceID, "summary", ev.Summary, "error", err.Error())
			continue
		}
		for i := range segs {
			e.format.Apply(&segs[i])
		}
		out = append(out, segs...)
	}
	return out
}
