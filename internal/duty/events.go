package duty

import (
	"context"
	"time"

	"gstaldergeist/internal/eventbus"
	"gstaldergeist/internal/storage"
	logx "gstaldergeist/pkg/logx"
)

// Event types published on the bus.
const (
	EventPrompted   = "duty.prompted"
	EventNothingDue = "duty.nothing_due"
	EventReminded   = "duty.reminded"
	EventShamed     = "duty.shamed"
	EventConfirmed  = "duty.confirmed"
	EventDeclined   = "duty.declined"
	EventStale      = "duty.stale"
	EventFetchError = "duty.fetch_failed"
)

// EventData is the payload of every duty event.
type EventData struct {
	Cycle  string
	Phase  Phase
	Member MemberID
	Detail string
}

func publish(bus eventbus.Bus, typ string, at time.Time, d EventData) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Time: at, Data: d})
}

// AuditSink persists duty events.
type AuditSink interface {
	AppendDutyEvent(ctx context.Context, e storage.DutyEvent) error
}

// RunAudit copies duty events from bus into sink until ctx ends.
func RunAudit(ctx context.Context, bus eventbus.Bus, sink AuditSink, log logx.Logger) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			d, ok := ev.Data.(EventData)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := sink.AppendDutyEvent(wctx, storage.DutyEvent{
				At:     ev.Time,
				Kind:   ev.Type,
				Cycle:  d.Cycle,
				Phase:  d.Phase.String(),
				Member: int64(d.Member),
				Detail: d.Detail,
			})
			cancel()
			if err != nil {
				log.Warn("duty audit write failed", logx.String("kind", ev.Type), logx.Err(err))
			}
		}
	}
}
