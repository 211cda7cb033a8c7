package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "gstaldergeist/internal/transport"
	logx "gstaldergeist/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	texts    []string
	answered []string
	menu     []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id+"="+text)
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) snapshot() (texts, answered []string, menu []kit.BotCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...), append([]string(nil), f.answered...), append([]kit.BotCommand(nil), f.menu...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startRouter(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	eventually(t, func() bool {
		r.runMu.Lock()
		defer r.runMu.Unlock()
		return r.running
	})
	return updates
}

func TestRouter_Commands(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, 2)
	r.SetAccess([]int64{1}, []int64{2})

	var mu sync.Mutex
	var got []string
	handle := func(name string) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			mu.Lock()
			got = append(got, name+":"+req.Command+":"+join(req.Args))
			mu.Unlock()
			return nil
		}
	}
	r.SetRegistry(context.Background(), []Command{
		{Name: "ping", Description: "pong", Handle: handle("ping")},
		{Name: "status", Aliases: []string{"st"}, Access: AccessMembers, Handle: handle("status")},
		{Name: "reload", Access: AccessOwnerOnly, Handle: handle("reload")},
	}, nil)

	updates := startRouter(t, r)
	msg := func(from int64, text string) kit.Update {
		return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 10, FromID: from, Text: text}}
	}
	updates <- msg(9, "/ping@gstaldergeist_bot a \"b c\"")
	updates <- msg(2, "/st")
	updates <- msg(9, "/status")
	updates <- msg(2, "/reload")
	updates <- msg(9, "/nope")
	updates <- msg(9, "plain text")

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		texts, _, menu := ad.snapshot()
		return len(got) == 2 && len(texts) == 3 && len(menu) == 4
	})
	mu.Lock()
	defer mu.Unlock()
	want := map[string]bool{"ping:ping:a|b c": true, "status:status:": true}
	for _, g := range got {
		if !want[g] {
			t.Fatalf("unexpected call %q (all: %v)", g, got)
		}
	}
	_, _, menu := ad.snapshot()
	if len(menu) != 4 || menu[0].Command != "help" {
		t.Fatalf("menu = %+v", menu)
	}
}

func TestRouter_Callbacks(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, 1)
	r.SetAccess(nil, []int64{2})

	calls := make(chan *Request, 4)
	r.SetRegistry(context.Background(), nil, []CallbackRoute{{
		Scope:  "duty",
		Action: "confirm",
		Access: AccessMembers,
		Handle: func(ctx context.Context, req *Request) error {
			calls <- req
			return errors.New("handler errors are logged only")
		},
	}})
	updates := startRouter(t, r)

	cb := func(id string, from int64, data string) kit.Update {
		return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: id, FromID: from, ChatID: 2, MessageID: 77, Data: data}}
	}
	updates <- cb("a", 2, "duty:confirm")
	updates <- cb("b", 3, "duty:confirm")
	updates <- cb("c", 2, "duty:unknown")
	updates <- cb("d", 2, "garbage")

	select {
	case req := <-calls:
		if req.Message.MessageID != 77 || req.FromID != 2 {
			t.Fatalf("request = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not handled")
	}
	eventually(t, func() bool {
		_, answered, _ := ad.snapshot()
		return len(answered) == 4
	})
	_, answered, _ := ad.snapshot()
	seen := map[string]bool{}
	for _, a := range answered {
		seen[a] = true
	}
	for _, want := range []string{"a=", "b=forbidden", "c=", "d="} {
		if !seen[want] {
			t.Fatalf("answers = %v, missing %q", answered, want)
		}
	}
}

func TestMWPanicRecover(t *testing.T) {
	t.Parallel()
	h := Chain(func(context.Context, *Request) error { panic("boom") }, MWPanicRecover(logx.Nop()))
	if err := h(context.Background(), &Request{}); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestMWTimeout(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, _ *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(10*time.Millisecond))
	if err := h(context.Background(), &Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Ping":             "ping",
		"week-schedule":    "week_schedule",
		"  a  b ":          "a_b",
		"__x__":            "x",
		"émoji✓":           "moji",
		"":                 "",
		"abcdefghijklmnopqrstuvwxyz0123456789": "abcdefghijklmnopqrstuvwxyz012345",
	}
	for in, want := range cases {
		if got := sanitizeCommand(in); got != want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func join(a []string) string {
	out := ""
	for i, s := range a {
		if i > 0 {
			out += "|"
		}
		out += s
	}
	return out
}
