package duty

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"gstaldergeist/internal/eventbus"
	logx "gstaldergeist/pkg/logx"
)

// Ack is a member's answer to a prompt.
type Ack string

const (
	AckConfirm Ack = Ack(ActionConfirm)
	AckDecline Ack = Ack(ActionDecline)
)

// ParseAck maps an action name to an Ack.
func ParseAck(s string) (Ack, bool) {
	switch Ack(s) {
	case AckConfirm, AckDecline:
		return Ack(s), true
	default:
		return "", false
	}
}

// Responder applies acknowledgements to the StateStore. It never sends
// notifications; the engine owns the shame path.
type Responder struct {
	store    *StateStore
	schedule cron.Schedule
	now      func() time.Time
	bus      eventbus.Bus
	log      logx.Logger
}

func NewResponder(store *StateStore, schedule cron.Schedule, opts ...ResponderOption) *Responder {
	r := &Responder{store: store, schedule: schedule, now: time.Now, log: logx.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

type ResponderOption func(*Responder)

func ResponderClock(now func() time.Time) ResponderOption {
	return func(r *Responder) { r.now = now }
}

func ResponderBus(bus eventbus.Bus) ResponderOption {
	return func(r *Responder) { r.bus = bus }
}

func ResponderLogger(log logx.Logger) ResponderOption {
	return func(r *Responder) { r.log = log }
}

// Answer is one button press: the ack, the cycle its prompt belonged to and
// the member who pressed it.
type Answer struct {
	Ack   Ack
	Cycle string
	From  MemberID
}

// OnAcknowledgement reports whether the answer changed the state. Answers
// outside an Awaiting phase, from another cycle or from anyone but the member
// on duty are ignored.
func (r *Responder) OnAcknowledgement(_ context.Context, a Answer) bool {
	now := r.now()
	var prev TaskState
	owns := func(st TaskState) bool {
		return st.Cycle == a.Cycle && st.Member.ID == a.From
	}

	var committed bool
	switch a.Ack {
	case AckConfirm:
		next := r.schedule.Next(now)
		committed = r.store.TransitionIf(PhaseAwaiting, owns, func(st TaskState) TaskState {
			prev = st
			return TaskState{Phase: PhaseIdle, NextTrigger: next}
		})
	case AckDecline:
		committed = r.store.TransitionIf(PhaseAwaiting, owns, func(st TaskState) TaskState {
			prev = st
			st.Phase = PhaseEscalated
			st.NextTrigger = now
			return st
		})
	default:
		r.log.Warn("unknown acknowledgement", logx.String("ack", string(a.Ack)))
		return false
	}

	if !committed {
		r.log.Debug("acknowledgement ignored",
			logx.String("ack", string(a.Ack)),
			logx.String("cycle", a.Cycle),
			logx.Int64("from", int64(a.From)),
			logx.Err(ErrStaleTransition),
		)
		publish(r.bus, EventStale, now, EventData{Cycle: a.Cycle, Member: a.From, Detail: string(a.Ack)})
		return false
	}

	kind, phase := EventConfirmed, PhaseIdle
	if a.Ack == AckDecline {
		kind, phase = EventDeclined, PhaseEscalated
	}
	r.log.Info("duty acknowledged",
		logx.String("ack", string(a.Ack)),
		logx.String("cycle", prev.Cycle),
		logx.Int64("member", int64(prev.Member.ID)),
	)
	publish(r.bus, kind, now, EventData{Cycle: prev.Cycle, Phase: phase, Member: prev.Member.ID})
	return true
}
