// Package commands implements the household bot's chat commands and button
// callbacks on top of the router.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gstaldergeist/internal/collection"
	"gstaldergeist/internal/duty"
	"gstaldergeist/internal/notifier"
	"gstaldergeist/internal/storage"
	"gstaldergeist/internal/task/scheduler"
	kit "gstaldergeist/internal/transport"
	"gstaldergeist/internal/transport/telegram/router"
	logx "gstaldergeist/pkg/logx"
	"gstaldergeist/pkg/tgui"
)

// SupplyRequester sends the bag request mail.
type SupplyRequester interface {
	RequestBags(ctx context.Context) error
}

// CollectionHistory lists stored collection rows.
type CollectionHistory interface {
	Collections(ctx context.Context, from, to string) ([]storage.CollectionRecord, error)
}

// Jobs exposes the background cron jobs to operators.
type Jobs interface {
	Snapshot() scheduler.Snapshot
	RunNow(name string) error
}

type Deps struct {
	Adapter   kit.Adapter
	State     *duty.StateStore
	Responder *duty.Responder
	Schedule  duty.Aggregator
	Messages  *duty.Messages
	Supply    SupplyRequester   // optional
	History   CollectionHistory // optional
	Jobs      Jobs              // optional
	Location  *time.Location
	Now       func() time.Time
	Log       logx.Logger
}

type Handlers struct {
	d Deps
}

func New(d Deps) *Handlers {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Messages == nil {
		d.Messages = duty.NewMessages("en")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Handlers{d: d}
}

// Register installs every command and callback on r.
func (h *Handlers) Register(ctx context.Context, r *router.Router) {
	r.SetRegistry(ctx, h.Commands(), h.Callbacks())
}

func (h *Handlers) Commands() []router.Command {
	cmds := []router.Command{
		{Name: "ping", Description: "check that the bot is alive", Access: router.AccessEveryone, Handle: h.ping},
		{Name: "status", Description: "current duty state", Access: router.AccessMembers, Handle: h.status},
		{Name: "schedule", Aliases: []string{"week"}, Description: "collections of the next 7 days", Access: router.AccessMembers, Timeout: time.Minute, Handle: h.schedule},
	}
	if h.d.History != nil {
		cmds = append(cmds, router.Command{Name: "history", Description: "stored collection dates", Access: router.AccessMembers, Handle: h.history})
	}
	if h.d.Jobs != nil {
		cmds = append(cmds, router.Command{Name: "jobs", Description: "background jobs; /jobs run <name>", Access: router.AccessOwnerOnly, Timeout: 2 * time.Minute, Handle: h.jobs})
	}
	return cmds
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: notifier.ScopeDuty, Action: string(duty.ActionConfirm), Access: router.AccessMembers, Handle: h.ack(duty.AckConfirm)},
		{Scope: notifier.ScopeDuty, Action: string(duty.ActionDecline), Access: router.AccessMembers, Handle: h.ack(duty.AckDecline)},
		{Scope: notifier.ScopeBags, Action: notifier.BagsRequest, Access: router.AccessMembers, Handle: h.bagsRequest},
		{Scope: notifier.ScopeBags, Action: notifier.BagsSure, Access: router.AccessMembers, Timeout: time.Minute, Handle: h.bagsSure},
		{Scope: notifier.ScopeBags, Action: notifier.BagsEnough, Access: router.AccessMembers, Handle: h.bagsEnough},
	}
}

func (h *Handlers) ping(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, h.d.Adapter, "pong", nil)
}

func (h *Handlers) status(ctx context.Context, req *router.Request) error {
	st := h.d.State.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", tgui.B("Phase:"), tgui.Esc(st.Phase.String()))
	fmt.Fprintf(&b, "%s %s\n", tgui.B("Next check:"), tgui.Esc(st.NextTrigger.In(h.d.Location).Format("Mon 02.01. 15:04")))
	if st.Phase != duty.PhaseIdle {
		fmt.Fprintf(&b, "%s %s\n", tgui.B("On duty:"), tgui.Esc(st.Member.Name))
		fmt.Fprintf(&b, "%s %s (%s)\n", tgui.B("Items:"), tgui.Esc(h.itemList(st.Items)), tgui.Esc(st.DueDate.String()))
		fmt.Fprintf(&b, "%s %d\n", tgui.B("Reminders sent:"), st.RemindersSent)
	}
	return req.Reply(ctx, h.d.Adapter, strings.TrimRight(b.String(), "\n"), &kit.SendOptions{ParseMode: "HTML"})
}

func (h *Handlers) schedule(ctx context.Context, req *router.Request) error {
	today := collection.DateOf(h.d.Now().In(h.d.Location))
	s, err := h.d.Schedule.Fetch(ctx, today.AddDays(1), today.AddDays(7))
	if err != nil {
		_ = req.Reply(ctx, h.d.Adapter, "Collection data is unavailable right now.", nil)
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", tgui.B("This week:"), tgui.Esc(s.Current.Name))
	fmt.Fprintf(&b, "%s %s\n", tgui.B("Tomorrow:"), tgui.Esc(s.Next.Name))
	days := s.Days()
	if len(days) == 0 {
		b.WriteString("-\n")
	}
	for _, d := range days {
		fmt.Fprintf(&b, "%s %s\n", tgui.Code(d.String()), tgui.Esc(h.itemList(s.ItemsOn(d))))
	}
	return req.Reply(ctx, h.d.Adapter, strings.TrimRight(b.String(), "\n"), &kit.SendOptions{ParseMode: "HTML"})
}

func (h *Handlers) history(ctx context.Context, req *router.Request) error {
	today := collection.DateOf(h.d.Now().In(h.d.Location))
	recs, err := h.d.History.Collections(ctx, today.String(), today.AddDays(30).String())
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return req.Reply(ctx, h.d.Adapter, "No stored collections.", nil)
	}
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "%s %s (%s)\n", r.Date, h.d.Messages.Item(collection.Item(r.Item)), r.Source)
	}
	return req.Reply(ctx, h.d.Adapter, strings.TrimRight(b.String(), "\n"), nil)
}

// ack applies an answer and replaces the prompt text; the keyboard is removed.
// The callback payload is the cycle of the prompt the button belongs to.
func (h *Handlers) ack(a duty.Ack) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		text := h.d.Messages.Stale()
		ans := duty.Answer{Ack: a, Cycle: req.Payload, From: duty.MemberID(req.FromID)}
		if h.d.Responder.OnAcknowledgement(ctx, ans) {
			text = h.d.Messages.Confirmed()
			if a == duty.AckDecline {
				text = h.d.Messages.Declined()
			}
		}
		return h.d.Adapter.EditText(ctx, req.Message, text, nil)
	}
}

func (h *Handlers) bagsRequest(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, h.d.Adapter, h.d.Messages.BagsQuestion(), &kit.SendOptions{ReplyMarkupAdapter: notifier.SupplyKeyboard(h.d.Messages)})
}

func (h *Handlers) bagsSure(ctx context.Context, req *router.Request) error {
	if h.d.Supply == nil {
		return h.d.Adapter.EditText(ctx, req.Message, h.d.Messages.BagsFailed(), nil)
	}
	if err := h.d.Supply.RequestBags(ctx); err != nil {
		_ = h.d.Adapter.EditText(ctx, req.Message, h.d.Messages.BagsFailed(), nil)
		return err
	}
	return h.d.Adapter.EditText(ctx, req.Message, h.d.Messages.BagsSent(), nil)
}

func (h *Handlers) bagsEnough(ctx context.Context, req *router.Request) error {
	return h.d.Adapter.EditText(ctx, req.Message, h.d.Messages.BagsEnough(), nil)
}

func (h *Handlers) itemList(items []collection.Item) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, h.d.Messages.Item(it))
	}
	return strings.Join(names, ", ")
}

func (h *Handlers) jobs(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 2 && req.Args[0] == "run" {
		name := req.Args[1]
		if err := h.d.Jobs.RunNow(name); err != nil {
			return req.Reply(ctx, h.d.Adapter, fmt.Sprintf("%s failed: %v", name, err), nil)
		}
		return req.Reply(ctx, h.d.Adapter, name+" done", nil)
	}

	snap := h.d.Jobs.Snapshot()
	if len(snap.Schedules) == 0 {
		return req.Reply(ctx, h.d.Adapter, "No background jobs.", nil)
	}
	var b strings.Builder
	for _, j := range snap.Schedules {
		next := "-"
		if !j.Next.IsZero() {
			next = j.Next.In(h.d.Location).Format("02.01. 15:04")
		}
		fmt.Fprintf(&b, "%s %s next %s, runs %d\n", tgui.Code(j.Name), tgui.Esc(j.Spec), tgui.Esc(next), j.Runs)
		if j.LastErr != "" {
			fmt.Fprintf(&b, "  %s %s\n", tgui.B("last error:"), tgui.Esc(j.LastErr))
		}
	}
	return req.Reply(ctx, h.d.Adapter, strings.TrimRight(b.String(), "\n"), &kit.SendOptions{ParseMode: "HTML"})
}
