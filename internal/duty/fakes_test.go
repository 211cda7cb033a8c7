package duty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"gstaldergeist/internal/collection"
)

type fakeAggregator struct {
	mu    sync.Mutex
	sched collection.Schedule
	err   error
	calls []window
}

type window struct{ from, to collection.Date }

func (f *fakeAggregator) Fetch(ctx context.Context, from, to collection.Date) (collection.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, window{from, to})
	if f.err != nil {
		return collection.Schedule{}, f.err
	}
	return f.sched, nil
}

type sent struct {
	kind    string
	to      int64
	text    string
	cycle   string
	actions []Action
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail error
}

func (f *fakeNotifier) record(s sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	return f.fail
}

func (f *fakeNotifier) PromptMember(_ context.Context, m MemberID, cycle, text string, actions []Action) error {
	return f.record(sent{kind: "prompt", to: int64(m), text: text, cycle: cycle, actions: actions})
}

func (f *fakeNotifier) Tell(_ context.Context, m MemberID, text string) error {
	return f.record(sent{kind: "tell", to: int64(m), text: text})
}

func (f *fakeNotifier) Broadcast(_ context.Context, a Audience, text string) error {
	return f.record(sent{kind: "broadcast", to: int64(a), text: text})
}

func (f *fakeNotifier) Shame(_ context.Context, a Audience, text string) error {
	return f.record(sent{kind: "shame", to: int64(a), text: text})
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

const household Audience = -100

func dailyAt18(t *testing.T) cron.Schedule {
	t.Helper()
	s, err := cron.ParseStandard("0 18 * * *")
	if err != nil {
		t.Fatalf("parse schedule: %v", err)
	}
	return s
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.UTC)
}

type harness struct {
	store *StateStore
	agg   *fakeAggregator
	ntf   *fakeNotifier
	eng   *Engine
	resp  *Responder
	now   time.Time
	mu    sync.Mutex
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) set(t time.Time) {
	h.mu.Lock()
	h.now = t
	h.mu.Unlock()
}

// newHarness builds a three-member household with a 1h interval and two reminders.
// Day 14 (a Wednesday) has bio and paper due on the 15th.
func newHarness(t *testing.T, initial TaskState) *harness {
	t.Helper()
	h := &harness{
		store: NewStateStore(initial),
		agg: &fakeAggregator{sched: collection.Schedule{
			Dates:   map[collection.Date][]collection.Item{collection.NewDate(2026, time.October, 15): {collection.ItemBio, collection.ItemPaper}},
			Current: collection.Member{ID: 2, Name: "Bea"},
			Next:    collection.Member{ID: 2, Name: "Bea"},
		}},
		ntf: &fakeNotifier{},
		now: at(14, 18, 0),
	}
	cfg := EngineConfig{
		ReminderInterval: time.Hour,
		MaxReminders:     2,
		RotationDay:      time.Sunday,
		CheckSchedule:    dailyAt18(t),
		Location:         time.UTC,
		PollInterval:     time.Minute,
		RetryBackoff:     5 * time.Minute,
		FetchTimeout:     time.Second,
		Household:        household,
	}
	eng, err := NewEngine(cfg, h.store, h.agg, h.ntf, WithClock(h.clock))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.newCycle = func() string { return "cycle-1" }
	h.eng = eng
	h.resp = NewResponder(h.store, cfg.CheckSchedule, ResponderClock(h.clock))
	return h
}

func (h *harness) step(t *testing.T, now time.Time) time.Duration {
	t.Helper()
	h.set(now)
	wait, err := h.eng.Step(context.Background(), now)
	if err != nil {
		t.Fatalf("Step(%s): %v", now.Format(time.Kitchen), err)
	}
	return wait
}

var errBoom = errors.New("boom")

// press is Bea (id 2) answering a prompt from cycle.
func press(ack Ack, cycle string) Answer {
	return Answer{Ack: ack, Cycle: cycle, From: 2}
}
