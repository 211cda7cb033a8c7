package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"gstaldergeist/internal/collection"
	"gstaldergeist/internal/duty"
	"gstaldergeist/internal/storage"
	"gstaldergeist/internal/task/scheduler"
	kit "gstaldergeist/internal/transport"
	"gstaldergeist/internal/transport/telegram/router"
	logx "gstaldergeist/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	edits map[int]string
	opts  []*kit.SendOptions
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edits == nil {
		f.edits = map[int]string{}
	}
	f.edits[ref.MessageID] = text
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

type fakeSupply struct {
	calls int
	err   error
}

func (f *fakeSupply) RequestBags(context.Context) error {
	f.calls++
	return f.err
}

type fakeSchedule struct{ s collection.Schedule }

func (f fakeSchedule) Fetch(context.Context, collection.Date, collection.Date) (collection.Schedule, error) {
	return f.s, nil
}

type fakeHistory struct{ recs []storage.CollectionRecord }

func (f fakeHistory) Collections(context.Context, string, string) ([]storage.CollectionRecord, error) {
	return f.recs, nil
}

var now = time.Date(2026, time.October, 14, 18, 5, 0, 0, time.UTC)

func setup(t *testing.T, initial duty.TaskState) (*Handlers, *fakeAdapter, *duty.StateStore, *fakeSupply) {
	t.Helper()
	sched, err := cron.ParseStandard("0 18 * * *")
	if err != nil {
		t.Fatal(err)
	}
	store := duty.NewStateStore(initial)
	ad := &fakeAdapter{}
	supply := &fakeSupply{}
	h := New(Deps{
		Adapter:   ad,
		State:     store,
		Responder: duty.NewResponder(store, sched, duty.ResponderClock(func() time.Time { return now })),
		Schedule: fakeSchedule{collection.Schedule{
			Dates:   map[collection.Date][]collection.Item{collection.NewDate(2026, time.October, 15): {collection.ItemBio}},
			Current: collection.Member{ID: 1, Name: "Ali"},
			Next:    collection.Member{ID: 1, Name: "Ali"},
		}},
		Messages: duty.NewMessages("en"),
		Supply:   supply,
		History:  fakeHistory{recs: []storage.CollectionRecord{{Date: "2026-10-15", Item: "Bio", Source: "adliswil"}}},
		Location: time.UTC,
		Now:      func() time.Time { return now },
		Log:      logx.Nop(),
	})
	return h, ad, store, supply
}

func awaiting() duty.TaskState {
	return duty.TaskState{
		Phase:       duty.PhaseAwaiting,
		NextTrigger: now.Add(time.Hour),
		Cycle:       "c1",
		Member:      collection.Member{ID: 1, Name: "Ali"},
		Items:       []collection.Item{collection.ItemBio},
		DueDate:     collection.NewDate(2026, time.October, 15),
	}
}

func callback(msgID int) *router.Request {
	return &router.Request{Chat: kit.ChatTarget{ChatID: 1}, FromID: 1, Payload: "c1", Message: kit.MessageRef{ChatID: 1, MessageID: msgID}}
}

func route(t *testing.T, h *Handlers, scope, action string) router.HandlerFunc {
	t.Helper()
	for _, cb := range h.Callbacks() {
		if cb.Scope == scope && cb.Action == action {
			return cb.Handle
		}
	}
	t.Fatalf("no callback %s:%s", scope, action)
	return nil
}

func TestAck_ConfirmThenStale(t *testing.T) {
	t.Parallel()
	h, ad, store, _ := setup(t, awaiting())
	confirm := route(t, h, "duty", "confirm")

	if err := confirm(context.Background(), callback(5)); err != nil {
		t.Fatal(err)
	}
	if ad.edits[5] != duty.NewMessages("en").Confirmed() {
		t.Fatalf("edit = %q", ad.edits[5])
	}
	if store.Snapshot().Phase != duty.PhaseIdle {
		t.Fatal("confirm did not reach the store")
	}

	if err := confirm(context.Background(), callback(6)); err != nil {
		t.Fatal(err)
	}
	if ad.edits[6] != duty.NewMessages("en").Stale() {
		t.Fatalf("stale edit = %q", ad.edits[6])
	}
}

func TestAck_RejectsOtherCycleAndMember(t *testing.T) {
	t.Parallel()
	h, ad, store, _ := setup(t, awaiting())
	confirm := route(t, h, "duty", "confirm")
	decline := route(t, h, "duty", "decline")

	old := callback(8)
	old.Payload = "c0"
	if err := confirm(context.Background(), old); err != nil {
		t.Fatal(err)
	}
	other := callback(9)
	other.FromID = 2
	if err := decline(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	stale := duty.NewMessages("en").Stale()
	if ad.edits[8] != stale || ad.edits[9] != stale {
		t.Fatalf("edits = %q, %q", ad.edits[8], ad.edits[9])
	}
	if st := store.Snapshot(); st.Phase != duty.PhaseAwaiting || st.Cycle != "c1" {
		t.Fatalf("state = %+v", st)
	}
}

func TestAck_Decline(t *testing.T) {
	t.Parallel()
	h, ad, store, _ := setup(t, awaiting())
	if err := route(t, h, "duty", "decline")(context.Background(), callback(3)); err != nil {
		t.Fatal(err)
	}
	if st := store.Snapshot(); st.Phase != duty.PhaseEscalated || !st.NextTrigger.Equal(now) {
		t.Fatalf("state = %+v", st)
	}
	if !strings.Contains(ad.edits[3], "ask the others") {
		t.Fatalf("edit = %q", ad.edits[3])
	}
}

func TestBagsFlow(t *testing.T) {
	t.Parallel()
	h, ad, _, supply := setup(t, awaiting())

	if err := route(t, h, "bags", "request")(context.Background(), callback(1)); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.opts[0] == nil || ad.opts[0].ReplyMarkupAdapter == nil {
		t.Fatalf("question not sent with keyboard: %v", ad.sent)
	}

	if err := route(t, h, "bags", "sure")(context.Background(), callback(2)); err != nil {
		t.Fatal(err)
	}
	if supply.calls != 1 || ad.edits[2] != "Thank you! I sent a request to WeRecycle." {
		t.Fatalf("calls=%d edit=%q", supply.calls, ad.edits[2])
	}

	supply.err = errors.New("smtp down")
	if err := route(t, h, "bags", "sure")(context.Background(), callback(4)); err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(ad.edits[4], "Sorry") {
		t.Fatalf("failure edit = %q", ad.edits[4])
	}

	if err := route(t, h, "bags", "enough")(context.Background(), callback(7)); err != nil {
		t.Fatal(err)
	}
	if ad.edits[7] != "Great! Have a nice evening." {
		t.Fatalf("edit = %q", ad.edits[7])
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()
	h, ad, _, _ := setup(t, awaiting())
	byName := map[string]router.HandlerFunc{}
	for _, c := range h.Commands() {
		byName[c.Name] = c.Handle
	}
	for _, name := range []string{"ping", "status", "schedule", "history"} {
		if byName[name] == nil {
			t.Fatalf("missing command %s", name)
		}
		if err := byName[name](context.Background(), &router.Request{Chat: kit.ChatTarget{ChatID: 1}}); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	want := []string{"pong", "awaiting", "2026-10-15", "2026-10-15 Bio (adliswil)"}
	for i, w := range want {
		if !strings.Contains(ad.sent[i], w) {
			t.Errorf("reply %d = %q, want it to contain %q", i, ad.sent[i], w)
		}
	}
}

type fakeJobs struct {
	ran  []string
	fail error
}

func (f *fakeJobs) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Schedules: []scheduler.ScheduleInfo{
		{Name: "history.prune", Spec: "30 3 * * *", Next: now.Add(9 * time.Hour), Runs: 4, LastErr: "database is locked"},
	}}
}

func (f *fakeJobs) RunNow(name string) error {
	f.ran = append(f.ran, name)
	return f.fail
}

func TestJobsCommand(t *testing.T) {
	t.Parallel()

	h, ad, _, _ := setup(t, duty.TaskState{})
	if cmdNames(h)["jobs"] {
		t.Fatal("jobs must not be registered without a job source")
	}

	jobs := &fakeJobs{}
	h.d.Jobs = jobs
	var handle router.HandlerFunc
	for _, c := range h.Commands() {
		if c.Name == "jobs" {
			handle = c.Handle
			if c.Access != router.AccessOwnerOnly {
				t.Fatalf("jobs access = %v", c.Access)
			}
		}
	}
	if handle == nil {
		t.Fatal("jobs not registered")
	}

	ctx := context.Background()
	if err := handle(ctx, &router.Request{Chat: kit.ChatTarget{ChatID: 1}}); err != nil {
		t.Fatal(err)
	}
	if got := ad.sent[0]; !strings.Contains(got, "<code>history.prune</code>") || !strings.Contains(got, "runs 4") || !strings.Contains(got, "database is locked") {
		t.Fatalf("listing = %q", got)
	}

	if err := handle(ctx, &router.Request{Chat: kit.ChatTarget{ChatID: 1}, Args: []string{"run", "history.prune"}}); err != nil {
		t.Fatal(err)
	}
	jobs.fail = errors.New("disk full")
	if err := handle(ctx, &router.Request{Chat: kit.ChatTarget{ChatID: 1}, Args: []string{"run", "history.prune"}}); err != nil {
		t.Fatal(err)
	}
	if len(jobs.ran) != 2 || ad.sent[1] != "history.prune done" || ad.sent[2] != "history.prune failed: disk full" {
		t.Fatalf("ran = %v, sent = %q", jobs.ran, ad.sent)
	}
}

func cmdNames(h *Handlers) map[string]bool {
	out := map[string]bool{}
	for _, c := range h.Commands() {
		out[c.Name] = true
	}
	return out
}
