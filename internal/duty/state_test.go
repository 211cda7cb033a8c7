package duty

import (
	"testing"
	"time"

	"gstaldergeist/internal/collection"
)

func TestStateStore_TransitionChecksPhase(t *testing.T) {
	t.Parallel()
	s := NewStateStore(awaiting(1, at(14, 19, 0)))

	if s.Transition(PhaseIdle, func(st TaskState) TaskState {
		st.RemindersSent = 9
		return st
	}) {
		t.Fatal("transition with wrong expected phase committed")
	}
	if got := s.Snapshot().RemindersSent; got != 1 {
		t.Fatalf("RemindersSent = %d, want 1", got)
	}

	if !s.Transition(PhaseAwaiting, func(st TaskState) TaskState {
		st.RemindersSent++
		return st
	}) {
		t.Fatal("transition with matching phase rejected")
	}
	if got := s.Snapshot().RemindersSent; got != 2 {
		t.Fatalf("RemindersSent = %d, want 2", got)
	}
}

func TestStateStore_TransitionIfChecksState(t *testing.T) {
	t.Parallel()
	s := NewStateStore(awaiting(0, at(14, 19, 0)))
	bump := func(st TaskState) TaskState {
		st.RemindersSent++
		return st
	}

	if s.TransitionIf(PhaseAwaiting, func(st TaskState) bool { return st.Cycle == "other" }, bump) {
		t.Fatal("rejected state committed")
	}
	if !s.TransitionIf(PhaseAwaiting, func(st TaskState) bool { return st.Cycle == "cycle-0" }, bump) {
		t.Fatal("accepted state not committed")
	}
	if !s.TransitionIf(PhaseAwaiting, nil, bump) {
		t.Fatal("nil accept not committed")
	}
	if got := s.Snapshot().RemindersSent; got != 2 {
		t.Fatalf("RemindersSent = %d, want 2", got)
	}
}

func TestStateStore_Normalizes(t *testing.T) {
	t.Parallel()
	s := NewStateStore(awaiting(2, at(14, 21, 0)))

	s.ForceTransition(func(st TaskState) TaskState {
		st.Phase = PhaseEscalated
		return st
	})
	st := s.Snapshot()
	if st.RemindersSent != 0 || st.Member.ID != 2 {
		t.Fatalf("escalated state = %+v", st)
	}

	s.ForceTransition(func(st TaskState) TaskState {
		st.Phase = PhaseIdle
		return st
	})
	st = s.Snapshot()
	if st.Cycle != "" || st.Items != nil || !st.DueDate.IsZero() || st.Member != (collection.Member{}) {
		t.Fatalf("idle state kept cycle fields: %+v", st)
	}
}

func TestStateStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()
	s := NewStateStore(awaiting(0, time.Time{}))
	snap := s.Snapshot()
	snap.Items[0] = collection.ItemNormal
	if got := s.Snapshot().Items[0]; got != collection.ItemBio {
		t.Fatalf("store mutated through snapshot: %s", got)
	}
}

func TestStateStore_ChangedCoalesces(t *testing.T) {
	t.Parallel()
	s := NewStateStore(TaskState{})
	for i := 0; i < 3; i++ {
		s.ForceTransition(func(st TaskState) TaskState { return st })
	}
	select {
	case <-s.Changed():
	default:
		t.Fatal("no change signal")
	}
	select {
	case <-s.Changed():
		t.Fatal("signals were not coalesced")
	default:
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()
	cases := map[Phase]string{PhaseIdle: "idle", PhaseAwaiting: "awaiting", PhaseEscalated: "escalated", Phase(7): "unknown"}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", p, got, want)
		}
	}
}

func TestParseAck(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"confirm", "decline"} {
		if a, ok := ParseAck(s); !ok || string(a) != s {
			t.Errorf("ParseAck(%q) = %q, %v", s, a, ok)
		}
	}
	if _, ok := ParseAck("supplies"); ok {
		t.Error("ParseAck accepted supplies")
	}
}
