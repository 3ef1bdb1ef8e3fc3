package agenda

import (
	"sort"
	"time"

	"agendacal/internal/model"
)

// builder accumulates events per date and materializes them in
// chronological order.
type builder struct {
	index  map[string]int
	days   []time.Time
	events [][]model.ProcessedEvent
}

func newBuilder() *builder {
	return &builder{index: make(map[string]int)}
}

func (b *builder) add(day time.Time, e model.ProcessedEvent) {
	key := day.Format(model.DateLayout)
	i, ok := b.index[key]
	if !ok {
		i = len(b.days)
		b.index[key] = i
		b.days = append(b.days, day)
		b.events = append(b.events, nil)
	}
	b.events[i] = append(b.events[i], e)
}

func (b *builder) buckets() []model.DayBucket {
	out := make([]model.DayBucket, len(b.days))
	for i, day := range b.days {
		out[i] = model.DayBucket{
			Date:   day.Format(model.DateLayout),
			Events: b.events[i],
		}
	}
	// Date keys sort chronologically.
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
