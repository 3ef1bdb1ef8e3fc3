package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"agendacal/internal/cache"
	"agendacal/internal/config"
	"agendacal/internal/model"
	"agendacal/internal/source"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fakeSource struct {
	calls  int
	fail   bool
	events map[string][]model.CalendarEvent
}

func (f *fakeSource) QueryEvents(_ context.Context, id string, _, _ time.Time) ([]model.CalendarEvent, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("offline")
	}
	return f.events[id], nil
}

func standup(day string) model.CalendarEvent {
	return model.CalendarEvent{
		Summary: "Standup",
		Start:   model.EventTime{DateTime: day + "T09:00:00Z"},
		End:     model.EventTime{DateTime: day + "T09:15:00Z"},
	}
}

func setup(t *testing.T) (*Engine, *fakeSource, *clock, *cache.MemoryStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InstanceID = "kitchen"
	cfg.Timezone = "UTC"
	cfg.Sources = []config.SourceConfig{{ID: "work", Type: "static"}, {ID: "home", Type: "static"}}

	src := &fakeSource{events: map[string][]model.CalendarEvent{
		"work": {standup("2024-01-01")},
		"home": {
			standup("2024-01-01"),
			{
				Summary: "Holiday",
				Start:   model.EventTime{Date: "2024-01-02"},
				End:     model.EventTime{Date: "2024-01-04"},
			},
		},
	}}

	clk := &clock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore()
	c := cache.New(store)
	c.SetClock(clk.now)

	e := New(cfg, src, c)
	e.SetClock(clk.now)
	return e, src, clk, store
}

func layout(buckets []model.DayBucket) []string {
	var out []string
	for _, b := range buckets {
		for _, ev := range b.Events {
			out = append(out, b.Date+" "+ev.SourceID+":"+ev.Summary)
		}
	}
	return out
}

func TestDaysEndToEnd(t *testing.T) {
	e, _, _, _ := setup(t)

	got := e.Days(context.Background(), Options{Expanded: true})
	want := []string{
		"2024-01-01 work:Standup",
		"2024-01-02 home:Holiday",
		"2024-01-03 home:Holiday",
	}
	if diff := cmp.Diff(want, layout(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got[0].Events[0].TimeText != "09:00 – 09:15" {
		t.Errorf("TimeText = %q", got[0].Events[0].TimeText)
	}
}

func TestCacheShortCircuitAndReload(t *testing.T) {
	e, src, clk, _ := setup(t)
	ctx := context.Background()

	e.Days(ctx, Options{})
	if src.calls != 2 {
		t.Fatalf("first cycle calls = %d, want 2", src.calls)
	}

	clk.t = clk.t.Add(10 * time.Second)
	e.Days(ctx, Options{})
	if src.calls != 2 {
		t.Errorf("cached cycle queried sources again (calls = %d)", src.calls)
	}

	e.Days(ctx, Options{Reload: true})
	if src.calls != 4 {
		t.Errorf("manual reload past the short TTL should refetch (calls = %d)", src.calls)
	}

	clk.t = clk.t.Add(31 * time.Minute)
	e.Days(ctx, Options{})
	if src.calls != 6 {
		t.Errorf("expired entry should refetch (calls = %d)", src.calls)
	}
}

func TestServesHeldEventsWhenAllSourcesFail(t *testing.T) {
	e, src, clk, _ := setup(t)
	ctx := context.Background()

	first := e.Events(ctx, false)
	src.fail = true
	clk.t = clk.t.Add(time.Hour)

	got := e.Events(ctx, false)
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("held events not served (-want +got):\n%s", diff)
	}
}

func TestServesHeldEventsWithRepeatedSourceIDs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InstanceID = "kitchen"
	cfg.Timezone = "UTC"
	cfg.Sources = []config.SourceConfig{{ID: "work", Type: "static"}, {ID: "work", Type: "static"}}

	src := &fakeSource{events: map[string][]model.CalendarEvent{"work": {standup("2024-01-01")}}}
	clk := &clock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore()
	c := cache.New(store)
	c.SetClock(clk.now)
	e := New(cfg, src, c)
	e.SetClock(clk.now)
	ctx := context.Background()

	first := e.Events(ctx, false)
	if len(first) != 1 {
		t.Fatalf("first cycle returned %d events, want 1", len(first))
	}

	src.fail = true
	for i := 0; i < 2; i++ {
		clk.t = clk.t.Add(time.Hour)
		got := e.Events(ctx, false)
		if diff := cmp.Diff(first, got); diff != "" {
			t.Errorf("cycle %d: held events not served (-want +got):\n%s", i+2, diff)
		}
	}

	if keys, _ := store.Keys(); len(keys) != 0 {
		t.Errorf("outage result was cached under %v", keys)
	}
}

func TestFallbackWhenNothingHeld(t *testing.T) {
	e, src, _, store := setup(t)
	src.fail = true

	got := e.Days(context.Background(), Options{})
	if len(got) != 0 {
		t.Errorf("got %d buckets from failing sources", len(got))
	}
	// Two window queries plus one fallback query.
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
	if keys, _ := store.Keys(); len(keys) != 0 {
		t.Errorf("failed cycle was cached, keys = %v", keys)
	}
}

func TestReconfigureInvalidatesOldKey(t *testing.T) {
	e, src, _, store := setup(t)
	ctx := context.Background()
	e.Days(ctx, Options{})

	oldKey := cache.Fingerprint(e.Config())
	cfg := *e.Config()
	cfg.Days = 5
	e.Reconfigure(&cfg, src)

	if _, err := store.Get(oldKey); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("old entry still present: %v", err)
	}
	e.Days(ctx, Options{})
	if src.calls != 4 {
		t.Errorf("calls after reconfigure = %d, want 4", src.calls)
	}
}

func TestSweep(t *testing.T) {
	e, _, clk, store := setup(t)
	e.Days(context.Background(), Options{})

	if n := e.Sweep(); n != 0 {
		t.Errorf("fresh entry swept (%d)", n)
	}
	clk.t = clk.t.Add(61 * time.Minute)
	if n := e.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if keys, _ := store.Keys(); len(keys) != 0 {
		t.Errorf("keys left: %v", keys)
	}
}

var _ source.Querier = (*fakeSource)(nil)

func TestRefreshBypassesCache(t *testing.T) {
	e, src, clk, _ := setup(t)
	ctx := context.Background()

	e.Events(ctx, false)
	src.events["work"] = append(src.events["work"], standup("2024-01-02"))
	clk.t = clk.t.Add(time.Minute)

	refreshed := e.Refresh(ctx)
	if src.calls != 4 {
		t.Fatalf("refresh within the TTL did not query sources (calls = %d)", src.calls)
	}

	got := e.Events(ctx, false)
	if src.calls != 4 {
		t.Errorf("request after refresh missed the cache (calls = %d)", src.calls)
	}
	if diff := cmp.Diff(refreshed, got); diff != "" {
		t.Errorf("cached entry differs from refresh (-want +got):\n%s", diff)
	}

	src.fail = true
	if diff := cmp.Diff(refreshed, e.Refresh(ctx)); diff != "" {
		t.Errorf("failed refresh dropped held events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(refreshed, e.Events(ctx, false)); diff != "" {
		t.Errorf("failed refresh overwrote the cache (-want +got):\n%s", diff)
	}
}
