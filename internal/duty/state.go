package duty

import (
	"sync"
	"time"

	"gstaldergeist/internal/collection"
)

type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseAwaiting: a prompt was sent and no answer arrived yet.
	PhaseAwaiting
	// PhaseEscalated: declined or out of reminders; a shame notice is owed.
	PhaseEscalated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// TaskState is the single shared duty state.
//
// RemindersSent is 0 unless Phase is PhaseAwaiting. Cycle, Member, Items and
// DueDate describe the outstanding duty and are empty while Idle.
type TaskState struct {
	Phase         Phase
	NextTrigger   time.Time
	RemindersSent int

	Cycle   string
	Member  collection.Member
	Items   []collection.Item
	DueDate collection.Date
}

func (s TaskState) clone() TaskState {
	s.Items = append([]collection.Item(nil), s.Items...)
	return s
}

func (s TaskState) normalized() TaskState {
	if s.Phase != PhaseAwaiting {
		s.RemindersSent = 0
	}
	if s.Phase == PhaseIdle {
		s.Cycle = ""
		s.Member = collection.Member{}
		s.Items = nil
		s.DueDate = collection.Date{}
	}
	return s
}

// StateStore guards the TaskState. Each method is one critical section;
// the lock is never held across I/O.
type StateStore struct {
	mu      sync.Mutex
	st      TaskState
	changed chan struct{}
}

func NewStateStore(initial TaskState) *StateStore {
	return &StateStore{st: initial.normalized().clone(), changed: make(chan struct{}, 1)}
}

// Snapshot returns a copy of the current state.
func (s *StateStore) Snapshot() TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Transition commits fn's result only if the stored phase equals expected.
// It reports whether the commit happened.
func (s *StateStore) Transition(expected Phase, fn func(TaskState) TaskState) bool {
	return s.TransitionIf(expected, nil, fn)
}

// TransitionIf is Transition with an extra check on the stored state.
// A nil accept approves every state.
func (s *StateStore) TransitionIf(expected Phase, accept func(TaskState) bool, fn func(TaskState) TaskState) bool {
	s.mu.Lock()
	if s.st.Phase != expected || (accept != nil && !accept(s.st)) {
		s.mu.Unlock()
		return false
	}
	s.st = fn(s.st.clone()).normalized().clone()
	s.mu.Unlock()
	s.notify()
	return true
}

// ForceTransition commits fn's result unconditionally.
func (s *StateStore) ForceTransition(fn func(TaskState) TaskState) {
	s.mu.Lock()
	s.st = fn(s.st.clone()).normalized().clone()
	s.mu.Unlock()
	s.notify()
}

// Changed is signalled (coalesced) after every commit.
func (s *StateStore) Changed() <-chan struct{} { return s.changed }

func (s *StateStore) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
