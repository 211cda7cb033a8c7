package duty

import (
	"context"
	"sync"
	"testing"
	"time"

	"gstaldergeist/internal/eventbus"
	"gstaldergeist/internal/storage"
	logx "gstaldergeist/pkg/logx"
)

type memSink struct {
	mu     sync.Mutex
	events []storage.DutyEvent
}

func (m *memSink) AppendDutyEvent(_ context.Context, e storage.DutyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestRunAudit_PersistsDutyEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	sink := &memSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunAudit(ctx, bus, sink, logx.Nop())
	}()

	// Subscribing happens inside RunAudit; publish until it is listening.
	when := at(14, 18, 0)
	waitFor(t, func() bool {
		if sink.len() > 0 {
			return true
		}
		publish(bus, EventPrompted, when, EventData{Cycle: "c1", Phase: PhaseAwaiting, Member: 2, Detail: "2026-10-15"})
		return false
	})
	bus.Publish(eventbus.Event{Type: "other", Time: time.Now(), Data: "ignored"})

	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	e := sink.events[0]
	if e.Kind != EventPrompted || e.Cycle != "c1" || e.Phase != "awaiting" || e.Member != 2 || !e.At.Equal(when) {
		t.Fatalf("event = %+v", e)
	}
	for _, e := range sink.events {
		if e.Kind != EventPrompted {
			t.Fatalf("unexpected event kind %q", e.Kind)
		}
	}
}
