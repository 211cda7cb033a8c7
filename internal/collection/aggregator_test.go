package collection

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"gstaldergeist/internal/storage"
)

type fakeSource struct {
	name  string
	dates map[Date][]Item
	err   error
}

func (f fakeSource) Name() string { return f.name }
func (f fakeSource) Fetch(ctx context.Context, from, to Date) (map[Date][]Item, error) {
	return f.dates, f.err
}

type weekdayRotation struct{}

// MemberFor returns the weekday number so tests can tell today from tomorrow.
func (weekdayRotation) MemberFor(t time.Time) MemberID { return MemberID(100 + int(t.Weekday())) }

type fakeDirectory struct{ names map[MemberID]string }

func (f fakeDirectory) Name(ctx context.Context, id MemberID) (string, error) {
	if n, ok := f.names[id]; ok {
		return n, nil
	}
	return "", errors.New("unknown chat")
}

type fakeHistory struct {
	mu   sync.Mutex
	recs []storage.CollectionRecord
	err  error
}

func (f *fakeHistory) RecordCollections(ctx context.Context, recs []storage.CollectionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, recs...)
	return f.err
}

var (
	monday  = time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC)
	tue     = NewDate(2024, 5, 7)
	wed     = NewDate(2024, 5, 8)
	nextMon = NewDate(2024, 5, 13)
)

func TestAggregatorMergesSourcesInOrder(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	a := NewAggregator(Options{
		Sources: []SourceEntry{
			{Source: fakeSource{name: "a", dates: map[Date][]Item{tue: {ItemNormal, ItemBio}, nextMon: {ItemPaper}}}, Required: true},
			{Source: fakeSource{name: "b", dates: map[Date][]Item{tue: {ItemWeRecycle, ItemNormal}, wed: {}}}},
		},
		Rotation:  weekdayRotation{},
		Directory: fakeDirectory{names: map[MemberID]string{101: "Anna"}},
		History:   hist,
		Location:  time.UTC,
		Now:       func() time.Time { return monday },
	})

	s, err := a.Fetch(context.Background(), tue, tue.AddDays(5))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := map[Date][]Item{tue: {ItemNormal, ItemBio, ItemWeRecycle, ItemNormal}}
	if !reflect.DeepEqual(s.Dates, want) {
		t.Fatalf("dates = %v, want %v", s.Dates, want)
	}
	if s.Current != (Member{ID: 101, Name: "Anna"}) {
		t.Fatalf("current = %+v", s.Current)
	}
	// Name lookup failure falls back to the id.
	if s.Next != (Member{ID: 102, Name: "102"}) {
		t.Fatalf("next = %+v", s.Next)
	}
	if len(hist.recs) != 4 || hist.recs[0].Date != "2024-05-07" {
		t.Fatalf("history = %+v", hist.recs)
	}
}

func TestAggregatorMembersFollowWindow(t *testing.T) {
	t.Parallel()

	// The aggregator's clock is days away from the requested window.
	a := NewAggregator(Options{
		Sources:  []SourceEntry{{Source: fakeSource{name: "a"}, Required: true}},
		Rotation: weekdayRotation{},
		Location: time.UTC,
		Now:      func() time.Time { return monday.AddDate(0, 0, 4) },
	})

	s, err := a.Fetch(context.Background(), nextMon, nextMon)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Current.ID != 100 || s.Next.ID != 101 {
		t.Fatalf("current = %d, next = %d, want Sunday 100 and Monday 101", s.Current.ID, s.Next.ID)
	}
}

func TestAggregatorRequiredSourceFails(t *testing.T) {
	t.Parallel()

	a := NewAggregator(Options{
		Sources: []SourceEntry{
			{Source: fakeSource{name: "ok", dates: map[Date][]Item{tue: {ItemNormal}}}},
			{Source: fakeSource{name: "down", err: errors.New("503")}, Required: true},
		},
		Rotation: weekdayRotation{},
		Now:      func() time.Time { return monday },
	})
	_, err := a.Fetch(context.Background(), tue, tue)
	if !errors.Is(err, ErrTransientData) {
		t.Fatalf("err = %v, want ErrTransientData", err)
	}
}

func TestAggregatorOptionalSourceSkipped(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{err: errors.New("disk full")}
	a := NewAggregator(Options{
		Sources: []SourceEntry{
			{Source: fakeSource{name: "down", err: errors.New("timeout")}},
			{Source: fakeSource{name: "ok", dates: map[Date][]Item{tue: {ItemPaper}}}, Required: true},
		},
		Rotation: weekdayRotation{},
		History:  hist,
		Now:      func() time.Time { return monday },
	})
	s, err := a.Fetch(context.Background(), tue, tue)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := s.ItemsOn(tue); !reflect.DeepEqual(got, []Item{ItemPaper}) {
		t.Fatalf("items = %v", got)
	}
	if s.ItemsOn(wed) != nil {
		t.Fatalf("unexpected items on wed")
	}
}

func TestAggregatorCancelledContextIsTransient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAggregator(Options{
		Sources:  []SourceEntry{{Source: fakeSource{name: "slow", err: context.Canceled}}},
		Rotation: weekdayRotation{},
	})
	if _, err := a.Fetch(ctx, tue, tue); !errors.Is(err, ErrTransientData) {
		t.Fatalf("err = %v", err)
	}
}

func TestScheduleDaysSorted(t *testing.T) {
	t.Parallel()

	s := Schedule{Dates: map[Date][]Item{nextMon: {ItemPaper}, tue: {ItemBio}, wed: {ItemNormal}}}
	if got := s.Days(); !reflect.DeepEqual(got, []Date{tue, wed, nextMon}) {
		t.Fatalf("Days = %v", got)
	}
	if s.IsEmpty() || !(Schedule{}).IsEmpty() {
		t.Fatalf("IsEmpty broken")
	}
}
