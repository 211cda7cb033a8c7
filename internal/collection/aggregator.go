package collection

import (
	"context"
	"fmt"
	"time"

	"gstaldergeist/internal/storage"
	logx "gstaldergeist/pkg/logx"
)

// Source fetches collection dates for one provider. Returned dates may fall
// outside the requested window; the aggregator filters them.
type Source interface {
	Name() string
	Fetch(ctx context.Context, from, to Date) (map[Date][]Item, error)
}

// SourceEntry registers a source. A failing required source fails the fetch;
// an optional one is skipped.
type SourceEntry struct {
	Source   Source
	Required bool
}

// Rotation picks the member responsible on a given day.
type Rotation interface {
	MemberFor(t time.Time) MemberID
}

// Directory resolves display names.
type Directory interface {
	Name(ctx context.Context, id MemberID) (string, error)
}

// History receives successful fetches.
type History interface {
	RecordCollections(ctx context.Context, recs []storage.CollectionRecord) error
}

type Options struct {
	Sources   []SourceEntry
	Rotation  Rotation
	Directory Directory // optional
	History   History   // optional
	Location  *time.Location
	Now       func() time.Time
	Log       logx.Logger
}

// Aggregator merges all sources into a Schedule. It holds no mutable state
// and is safe for concurrent use.
type Aggregator struct {
	sources  []SourceEntry
	rotation Rotation
	dir      Directory
	history  History
	loc      *time.Location
	now      func() time.Time
	log      logx.Logger
}

func NewAggregator(o Options) *Aggregator {
	a := &Aggregator{
		sources:  o.Sources,
		rotation: o.Rotation,
		dir:      o.Directory,
		history:  o.History,
		loc:      o.Location,
		now:      o.Now,
		log:      o.Log,
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log.IsZero() {
		a.log = logx.Nop()
	}
	return a
}

// Fetch merges items in from..to (inclusive). Next is the member on duty on
// from and Current the one on the day before, so callers asking for tomorrow
// onwards get today's and tomorrow's members.
func (a *Aggregator) Fetch(ctx context.Context, from, to Date) (Schedule, error) {
	dates := map[Date][]Item{}
	var recs []storage.CollectionRecord
	fetchedAt := a.now()

	for _, e := range a.sources {
		got, err := e.Source.Fetch(ctx, from, to)
		if err != nil {
			if e.Required || ctx.Err() != nil {
				return Schedule{}, fmt.Errorf("%w: source %s: %v", ErrTransientData, e.Source.Name(), err)
			}
			a.log.Warn("optional source failed; skipping", logx.String("source", e.Source.Name()), logx.Err(err))
			continue
		}
		for d, items := range got {
			if !d.Within(from, to) || len(items) == 0 {
				continue
			}
			dates[d] = append(dates[d], items...)
			for _, it := range items {
				recs = append(recs, storage.CollectionRecord{
					Date: d.String(), Item: string(it), Source: e.Source.Name(), FetchedAt: fetchedAt,
				})
			}
		}
	}

	s := Schedule{
		Dates:   dates,
		Current: a.member(ctx, from.AddDays(-1).In(a.loc)),
		Next:    a.member(ctx, from.In(a.loc)),
	}

	if a.history != nil && len(recs) > 0 {
		if err := a.history.RecordCollections(ctx, recs); err != nil {
			a.log.Warn("recording collection history failed", logx.Err(err))
		}
	}
	a.log.Debug("schedule fetched",
		logx.String("from", from.String()),
		logx.String("to", to.String()),
		logx.Int("days", len(dates)),
	)
	return s, nil
}

func (a *Aggregator) member(ctx context.Context, t time.Time) Member {
	id := a.rotation.MemberFor(t)
	m := Member{ID: id, Name: id.String()}
	if a.dir == nil {
		return m
	}
	name, err := a.dir.Name(ctx, id)
	if err != nil {
		a.log.Debug("member name lookup failed", logx.Int64("member", int64(id)), logx.Err(err))
		return m
	}
	if name != "" {
		m.Name = name
	}
	return m
}
