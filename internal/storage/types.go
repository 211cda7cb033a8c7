// Package storage persists collection history and the duty audit log.
// The task state itself is never persisted.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DateLayout is the civil date format used for collection rows.
const DateLayout = "2006-01-02"

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// CollectionRecord is one item collected on one date, as reported by a source.
type CollectionRecord struct {
	Date      string // DateLayout
	Item      string
	Source    string
	FetchedAt time.Time
}

// DutyEvent is one audit row of the duty engine or an acknowledgement.
type DutyEvent struct {
	ID     int64
	At     time.Time
	Kind   string
	Cycle  string
	Phase  string
	Member int64
	Detail string
}

type Store interface {
	RecordCollections(ctx context.Context, recs []CollectionRecord) error
	Collections(ctx context.Context, from, to string) ([]CollectionRecord, error)
	PruneCollections(ctx context.Context, before string) (int64, error)
	AppendDutyEvent(ctx context.Context, e DutyEvent) error
	RecentDutyEvents(ctx context.Context, limit int) ([]DutyEvent, error)
	Close() error
}
