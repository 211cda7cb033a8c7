package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gstaldergeist/internal/collection"
	"gstaldergeist/internal/config"
	"gstaldergeist/internal/duty"
	"gstaldergeist/internal/notifier"
	"gstaldergeist/internal/storage"
	"gstaldergeist/internal/supply"
	kit "gstaldergeist/internal/transport"
	logx "gstaldergeist/pkg/logx"
)

const (
	defaultHistoryRetention = 90 * 24 * time.Hour
	defaultPruneSchedule    = "30 3 * * *"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{RetryMax: 3}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

// storageSettings is the resolved storage section; enabled is false when the
// driver is empty or "none".
type storageSettings struct {
	enabled   bool
	open      storage.Config
	retention time.Duration
	prune     string
}

func mapStorageConfig(cfg *config.Config) (storageSettings, error) {
	sc := cfg.Storage
	if sc == nil {
		return storageSettings{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storageSettings{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storageSettings{}, err
	}
	retention, err := config.ParseDurationOrDefault("storage.history_retention", sc.HistoryRetention, defaultHistoryRetention)
	if err != nil {
		return storageSettings{}, err
	}
	prune := strings.TrimSpace(sc.PruneSchedule)
	if prune == "" {
		prune = defaultPruneSchedule
	}
	return storageSettings{
		enabled:   true,
		open:      storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy},
		retention: retention,
		prune:     prune,
	}, nil
}

// buildSources instantiates every enabled collection source in a fixed order.
func buildSources(ctx context.Context, cfg *config.Config, loc *time.Location) ([]collection.SourceEntry, error) {
	var out []collection.SourceEntry
	s := cfg.Sources
	if a := s.Adliswil; a != nil && a.Enabled {
		out = append(out, collection.SourceEntry{
			Source:   &collection.Adliswil{BaseURL: a.BaseURL, Location: loc},
			Required: a.Required,
		})
	}
	if w := s.WeRecycle; w != nil && w.Enabled {
		out = append(out, collection.SourceEntry{
			Source:   &collection.WeRecycle{PageURL: w.PageURL, Region: w.Region},
			Required: w.Required,
		})
	}
	if c := s.Calendar; c != nil && c.Enabled {
		g, err := collection.NewGoogleCalendar(ctx, collection.GoogleCalendarConfig{
			CalendarID:      c.CalendarID,
			CredentialsFile: c.CredentialsFile,
			APIKey:          c.APIKey,
			Mapping:         c.Mapping,
			Location:        loc,
		})
		if err != nil {
			return nil, fmt.Errorf("sources.calendar: %w", err)
		}
		out = append(out, collection.SourceEntry{Source: g, Required: c.Required})
	}
	if len(out) == 0 {
		return nil, errors.New("no collection source enabled")
	}
	return out, nil
}

func mapSupplyConfig(e *config.EmailConfig) supply.Config {
	return supply.Config{
		SMTPHost:    e.SMTPHost,
		SMTPPort:    e.SMTPPort,
		Username:    e.Username,
		Password:    e.Password,
		FromName:    e.FromName,
		FromAddress: e.FromAddress,
		To:          e.To,
		Address:     e.PickupAddress,
	}
}

func memberIDs(ids []int64) []duty.MemberID {
	out := make([]duty.MemberID, len(ids))
	for i, id := range ids {
		out[i] = duty.MemberID(id)
	}
	return out
}

// chatDirectory resolves member names through the chat transport.
type chatDirectory struct {
	chats kit.ChatResolver
}

func (d chatDirectory) Name(ctx context.Context, id collection.MemberID) (string, error) {
	return d.chats.ChatName(ctx, int64(id))
}
