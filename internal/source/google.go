package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "agendacal/internal/log"
	"agendacal/internal/model"
)

const eventStatusCancelled = "cancelled"

// GoogleQuerier serves a source from Google Calendar.
type GoogleQuerier struct {
	svc         *calendar.Service
	calendarIDs []string
}

// NewGoogleQuerier authenticates with an installed-app credentials file and
// a previously authorized token file. Refreshed tokens are written back.
func NewGoogleQuerier(ctx context.Context, credentialsFile, tokenFile string, calendarIDs []string) (*GoogleQuerier, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	token, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	ts := conf.TokenSource(ctx, token)

	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != token.AccessToken {
		if err := saveToken(tokenFile, fresh); err != nil {
			appLog.Warn("failed to save refreshed google token", "error", err.Error())
		}
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewGoogleQuerierWithService(svc, calendarIDs), nil
}

// NewGoogleQuerierWithService wraps an existing service. Without calendar
// ids the primary calendar is used.
func NewGoogleQuerierWithService(svc *calendar.Service, calendarIDs []string) *GoogleQuerier {
	if len(calendarIDs) == 0 {
		calendarIDs = []string{"primary"}
	}
	return &GoogleQuerier{svc: svc, calendarIDs: calendarIDs}
}

func (q *GoogleQuerier) QueryEvents(ctx context.Context, sourceID string, start, end time.Time) ([]model.CalendarEvent, error) {
	var out []model.CalendarEvent
	for _, calID := range q.calendarIDs {
		call := q.svc.Events.List(calID).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime")

		err := call.Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				if ev, ok := convertGoogleEvent(sourceID, item); ok {
					out = append(out, ev)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", calID, err)
		}
	}
	return out, nil
}

func convertGoogleEvent(sourceID string, item *calendar.Event) (model.CalendarEvent, bool) {
	if item == nil || item.Status == eventStatusCancelled || item.Start == nil {
		return model.CalendarEvent{}, false
	}
	ev := model.CalendarEvent{
		SourceID:    sourceID,
		UID:         item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       model.EventTime{Date: item.Start.Date, DateTime: item.Start.DateTime},
	}
	if item.End != nil {
		ev.End = model.EventTime{Date: item.End.Date, DateTime: item.End.DateTime}
	} else {
		ev.End = ev.Start
	}
	return ev, !ev.Start.IsZero()
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
