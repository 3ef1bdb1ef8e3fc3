// Package source queries calendar backends and merges their events into a
// single per-cycle result.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agendacal/internal/model"
)

// ErrUnknownSource is returned by Mux for ids without a registered querier.
var ErrUnknownSource = errors.New("unknown source")

// Querier returns the events of one source overlapping [start, end].
type Querier interface {
	QueryEvents(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error)

func (f QuerierFunc) QueryEvents(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error) {
	return f(ctx, sourceID, start, end)
}

// Mux dispatches queries to the querier registered for a source id.
type Mux struct {
	queriers map[string]Querier
}

func NewMux() *Mux {
	return &Mux{queriers: make(map[string]Querier)}
}

// Handle registers q for id, replacing any previous registration.
func (m *Mux) Handle(id string, q Querier) {
	m.queriers[id] = q
}

// QueryEvents implements Querier.
func (m *Mux) QueryEvents(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error) {
	q, ok := m.queriers[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}
	return q.QueryEvents(ctx, sourceID, start, end)
}

// errQuerier stands in for a source that could not be constructed, so the
// failure is reported on every cycle instead of silently dropping the source.
type errQuerier struct {
	err error
}

func (q errQuerier) QueryEvents(context.Context, string, time.Time, time.Time) ([]model.CalendarEvent, error) {
	return nil, q.err
}

// overlaps reports whether [start, end) touches [ws, we]. Zero-length events
// count when their start lies inside the range.
func overlaps(start, end, ws, we time.Time) bool {
	if !end.After(start) {
		return !start.Before(ws) && !start.After(we)
	}
	return !start.After(we) && end.After(ws)
}
