package duty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"gstaldergeist/internal/collection"
	"gstaldergeist/internal/eventbus"
	logx "gstaldergeist/pkg/logx"
)

// Aggregator produces the merged schedule for from..to (inclusive).
type Aggregator interface {
	Fetch(ctx context.Context, from, to collection.Date) (collection.Schedule, error)
}

// Action is a button attached to a prompt.
type Action string

const (
	ActionConfirm         Action = "confirm"
	ActionDecline         Action = "decline"
	ActionRequestSupplies Action = "supplies"
)

// Audience identifies a group chat.
type Audience int64

// Notifier delivers engine output. Failures are reported but never undo a transition.
type Notifier interface {
	// PromptMember sends text with action buttons bound to cycle.
	PromptMember(ctx context.Context, member MemberID, cycle, text string, actions []Action) error
	// Tell sends a plain informational message to one member.
	Tell(ctx context.Context, member MemberID, text string) error
	Broadcast(ctx context.Context, audience Audience, text string) error
	Shame(ctx context.Context, audience Audience, text string) error
}

type EngineConfig struct {
	ReminderInterval time.Duration
	MaxReminders     int
	RotationDay      time.Weekday
	// CheckSchedule yields the daily rotation-check times.
	CheckSchedule cron.Schedule
	Location      *time.Location
	PollInterval  time.Duration
	RetryBackoff  time.Duration
	FetchTimeout  time.Duration
	Household     Audience
	// SupplyRequests adds the "out of bags" button to prompts.
	SupplyRequests bool
}

type Engine struct {
	cfg      EngineConfig
	store    *StateStore
	agg      Aggregator
	notifier Notifier
	msgs     *Messages
	bus      eventbus.Bus
	log      logx.Logger

	now      func() time.Time
	newCycle func() string
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption { return func(e *Engine) { e.now = now } }
func WithBus(bus eventbus.Bus) EngineOption        { return func(e *Engine) { e.bus = bus } }
func WithLogger(log logx.Logger) EngineOption      { return func(e *Engine) { e.log = log } }
func WithMessages(m *Messages) EngineOption        { return func(e *Engine) { e.msgs = m } }

func NewEngine(cfg EngineConfig, store *StateStore, agg Aggregator, n Notifier, opts ...EngineOption) (*Engine, error) {
	if store == nil || agg == nil || n == nil {
		return nil, errors.New("engine needs a store, an aggregator and a notifier")
	}
	if cfg.ReminderInterval <= 0 || cfg.MaxReminders <= 0 || cfg.CheckSchedule == nil {
		return nil, errors.New("engine needs a positive reminder interval, max reminders and a check schedule")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	e := &Engine{
		cfg:      cfg,
		store:    store,
		agg:      agg,
		notifier: n,
		now:      time.Now,
		newCycle: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if e.msgs == nil {
		e.msgs = NewMessages("en")
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	return e, nil
}

// Run drives Step until ctx ends. A commit from the Responder wakes it early.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("duty engine started", logx.Time("next_trigger", e.store.Snapshot().NextTrigger))
	for {
		if ctx.Err() != nil {
			return nil
		}
		wait, _ := e.Step(ctx, e.now())
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		case <-e.store.Changed():
			t.Stop()
		}
	}
}

// Step performs at most one transition and returns how long to wait before
// the next call. A returned error wraps ErrTransientData.
func (e *Engine) Step(ctx context.Context, now time.Time) (time.Duration, error) {
	st := e.store.Snapshot()
	if now.Before(st.NextTrigger) {
		return min(st.NextTrigger.Sub(now), e.cfg.PollInterval), nil
	}

	local := now.In(e.cfg.Location)
	today := collection.DateOf(local)
	tomorrow := today.AddDays(1)
	weekly := local.Weekday() == e.cfg.RotationDay
	to := tomorrow
	if weekly {
		to = today.AddDays(7)
	}

	fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	sched, err := e.agg.Fetch(fctx, tomorrow, to)
	cancel()
	if err != nil {
		if !errors.Is(err, ErrTransientData) {
			err = fmt.Errorf("%w: %v", ErrTransientData, err)
		}
		e.log.Warn("collection fetch failed; retrying", logx.Err(err), logx.Duration("backoff", e.cfg.RetryBackoff))
		publish(e.bus, EventFetchError, now, EventData{Cycle: st.Cycle, Phase: st.Phase, Detail: err.Error()})
		return e.cfg.RetryBackoff, err
	}

	switch {
	case st.Phase == PhaseIdle:
		e.startCycle(ctx, now, sched, tomorrow, weekly)
	case st.Phase == PhaseAwaiting && st.RemindersSent < e.cfg.MaxReminders:
		e.remind(ctx, now, st)
	default:
		e.escalate(ctx, now, st)
	}
	return 0, nil
}

func (e *Engine) startCycle(ctx context.Context, now time.Time, s collection.Schedule, due collection.Date, weekly bool) {
	member := s.Next
	items := s.ItemsOn(due)

	if len(items) == 0 {
		next := e.cfg.CheckSchedule.Next(now)
		if !e.store.Transition(PhaseIdle, func(st TaskState) TaskState {
			st.NextTrigger = next
			return st
		}) {
			e.stale(now, PhaseIdle, "nothing due")
			return
		}
		if weekly {
			e.announceWeek(ctx, member, s)
		}
		e.deliver("tell", member.ID, e.notifier.Tell(ctx, member.ID, e.msgs.NothingDue(member.Name)))
		e.log.Info("nothing due tomorrow", logx.Int64("member", int64(member.ID)), logx.Time("next_trigger", next))
		publish(e.bus, EventNothingDue, now, EventData{Phase: PhaseIdle, Member: member.ID})
		return
	}

	// Commit before sending so an immediate button press finds Awaiting.
	cycle := e.newCycle()
	next := now.Add(e.cfg.ReminderInterval)
	e.store.ForceTransition(func(TaskState) TaskState {
		return TaskState{
			Phase:       PhaseAwaiting,
			NextTrigger: next,
			Cycle:       cycle,
			Member:      member,
			Items:       items,
			DueDate:     due,
		}
	})

	if weekly {
		e.announceWeek(ctx, member, s)
	}
	e.deliver("prompt", member.ID, e.notifier.PromptMember(ctx, member.ID, cycle, e.msgs.Prompt(member.Name, items), e.actions()))
	e.log.Info("duty prompted",
		logx.String("cycle", cycle),
		logx.Int64("member", int64(member.ID)),
		logx.Int("items", len(items)),
		logx.Time("next_trigger", next),
	)
	publish(e.bus, EventPrompted, now, EventData{Cycle: cycle, Phase: PhaseAwaiting, Member: member.ID, Detail: due.String()})
}

func (e *Engine) announceWeek(ctx context.Context, member collection.Member, s collection.Schedule) {
	e.deliver("broadcast", member.ID, e.notifier.Broadcast(ctx, e.cfg.Household, e.msgs.NewRotation(member.Name)))
	e.deliver("overview", member.ID, e.notifier.Tell(ctx, member.ID, e.msgs.WeekOverview(member.Name, s)))
}

func (e *Engine) remind(ctx context.Context, now time.Time, observed TaskState) {
	var sent int
	next := now.Add(e.cfg.ReminderInterval)
	if !e.store.Transition(PhaseAwaiting, func(st TaskState) TaskState {
		st.RemindersSent++
		st.NextTrigger = next
		sent = st.RemindersSent
		return st
	}) {
		e.stale(now, PhaseAwaiting, "reminder")
		return
	}

	m := observed.Member
	text := e.msgs.Reminder(sent, e.cfg.MaxReminders, m.Name, observed.Items)
	e.deliver("reminder", m.ID, e.notifier.PromptMember(ctx, m.ID, observed.Cycle, text, e.actions()))
	e.log.Info("duty reminder sent",
		logx.String("cycle", observed.Cycle),
		logx.Int("reminders_sent", sent),
		logx.Time("next_trigger", next),
	)
	publish(e.bus, EventReminded, now, EventData{Cycle: observed.Cycle, Phase: PhaseAwaiting, Member: m.ID, Detail: fmt.Sprintf("%d/%d", sent, e.cfg.MaxReminders)})
}

// escalate ends the cycle. Only the caller whose transition commits sends the shame.
func (e *Engine) escalate(ctx context.Context, now time.Time, observed TaskState) {
	next := e.cfg.CheckSchedule.Next(now)
	if !e.store.Transition(observed.Phase, func(st TaskState) TaskState {
		return TaskState{Phase: PhaseIdle, NextTrigger: next}
	}) {
		e.stale(now, observed.Phase, "escalation")
		return
	}

	m := observed.Member
	e.deliver("shame", m.ID, e.notifier.Shame(ctx, e.cfg.Household, e.msgs.Shame(m.Name, observed.Items)))
	e.log.Info("duty escalated",
		logx.String("cycle", observed.Cycle),
		logx.Stringer("from", observed.Phase),
		logx.Int64("member", int64(m.ID)),
		logx.Time("next_trigger", next),
	)
	publish(e.bus, EventShamed, now, EventData{Cycle: observed.Cycle, Phase: PhaseIdle, Member: m.ID, Detail: observed.Phase.String()})
}

func (e *Engine) stale(now time.Time, expected Phase, what string) {
	e.log.Debug("transition lost the race", logx.String("what", what), logx.Stringer("expected", expected), logx.Err(ErrStaleTransition))
	publish(e.bus, EventStale, now, EventData{Phase: expected, Detail: what})
}

func (e *Engine) deliver(kind string, member MemberID, err error) {
	if err == nil {
		return
	}
	e.log.Warn("notification failed",
		logx.String("kind", kind),
		logx.Int64("member", int64(member)),
		logx.Err(fmt.Errorf("%w: %w", ErrDelivery, err)),
	)
}

func (e *Engine) actions() []Action {
	a := []Action{ActionConfirm, ActionDecline}
	if e.cfg.SupplyRequests {
		a = append(a, ActionRequestSupplies)
	}
	return a
}
