package source

import (
	"context"
	"fmt"
	"time"

	"agendacal/internal/cache"
	"agendacal/internal/config"
	"agendacal/internal/ics"
	appLog "agendacal/internal/log"
)

// FromConfig builds a Mux with one querier per configured source. A source
// that cannot be set up is still registered and fails on every query.
// ICS bodies are cached in store.
func FromConfig(ctx context.Context, cfg *config.Config, store cache.Store, loc *time.Location) *Mux {
	mux := NewMux()
	icsFetcher := ics.NewFetcher(store)

	for _, sc := range cfg.Sources {
		q, err := newQuerier(ctx, sc, icsFetcher, loc)
		if err != nil {
			appLog.Error("source setup failed", err, "id", sc.ID, "type", sc.Type)
			q = errQuerier{err: err}
		}
		mux.Handle(sc.ID, q)
	}
	return mux
}

func newQuerier(ctx context.Context, sc config.SourceConfig, icsFetcher *ics.Fetcher, loc *time.Location) (Querier, error) {
	switch sc.Type {
	case "static":
		return NewStaticQuerier(sc.Events, loc), nil

	case "ics":
		if sc.URL == "" {
			return nil, fmt.Errorf("ics source %s: url is required", sc.ID)
		}
		password, err := sc.GetPassword()
		if err != nil {
			return nil, err
		}
		src := ics.Source{ID: sc.ID, URL: sc.URL, Username: sc.Username, Password: password}
		return NewICSQuerier(icsFetcher, src, loc), nil

	case "caldav", "icloud":
		url := sc.URL
		if url == "" && sc.Type == "icloud" {
			url = iCloudCalDAVURL
		}
		if url == "" {
			return nil, fmt.Errorf("caldav source %s: url is required", sc.ID)
		}
		password, err := sc.GetPassword()
		if err != nil {
			return nil, err
		}
		return NewCalDAVQuerier(url, sc.Username, password, sc.Calendars, loc)

	case "google":
		ids := sc.Calendars
		if sc.CalendarID != "" {
			ids = append([]string{sc.CalendarID}, ids...)
		}
		return NewGoogleQuerier(ctx, sc.CredentialsFile, sc.TokenFile, ids)

	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}

// iCloudCalDAVURL is the base URL for iCloud CalDAV.
const iCloudCalDAVURL = "https://caldav.icloud.com"
