package collection

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendarConfig selects a calendar and how to authenticate against it.
type GoogleCalendarConfig struct {
	CalendarID      string
	CredentialsFile string // service account or authorized user JSON
	APIKey          string // public calendars only
	// Mapping maps lowercased event summaries to items.
	Mapping  map[string]string
	Location *time.Location
}

// GoogleCalendar reads collection days from calendar events. Each event
// becomes one item on its start date.
type GoogleCalendar struct {
	srv     *calendar.Service
	id      string
	mapping map[string]Item
	loc     *time.Location
}

// NewGoogleCalendar builds the calendar client. Extra options are appended
// after the credential options.
func NewGoogleCalendar(ctx context.Context, cfg GoogleCalendarConfig, extra ...option.ClientOption) (*GoogleCalendar, error) {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read calendar credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, b, calendar.CalendarReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse calendar credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	case strings.TrimSpace(cfg.APIKey) != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	opts = append(opts, extra...)

	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	mapping := make(map[string]Item, len(cfg.Mapping))
	for k, v := range cfg.Mapping {
		mapping[strings.ToLower(strings.TrimSpace(k))] = Item(v)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &GoogleCalendar{srv: srv, id: cfg.CalendarID, mapping: mapping, loc: loc}, nil
}

func (g *GoogleCalendar) Name() string { return "gcal" }

func (g *GoogleCalendar) Fetch(ctx context.Context, from, to Date) (map[Date][]Item, error) {
	out := map[Date][]Item{}
	call := g.srv.Events.List(g.id).
		TimeMin(from.In(g.loc).Format(time.RFC3339)).
		TimeMax(to.AddDays(1).In(g.loc).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			d, ok := g.eventDate(ev)
			if !ok {
				continue
			}
			out[d] = append(out[d], g.item(ev.Summary))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return out, nil
}

func (g *GoogleCalendar) eventDate(ev *calendar.Event) (Date, bool) {
	if ev == nil || ev.Start == nil || ev.Status == "cancelled" {
		return Date{}, false
	}
	if ev.Start.Date != "" {
		d, err := ParseDate(ev.Start.Date)
		return d, err == nil
	}
	t, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return Date{}, false
	}
	return DateOf(t.In(g.loc)), true
}

func (g *GoogleCalendar) item(summary string) Item {
	s := strings.TrimSpace(summary)
	if it, ok := g.mapping[strings.ToLower(s)]; ok {
		return it
	}
	return Item(s)
}
