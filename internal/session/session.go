package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session owns one State. Transformations are applied one at a time on a private copy and
// committed whole; the last commit wins.
type Session struct {
	id     string
	mu     sync.Mutex
	state  State
	hub    *Hub
	now    func() time.Time
	logger *zap.Logger
}

func newSession(state State, logger *zap.Logger) *Session {
	s := &Session{
		id:     state.ID,
		state:  state,
		hub:    NewHub(),
		now:    time.Now,
		logger: logger,
	}
	s.state.UpdatedAt = s.now()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Apply runs fn on a copy of the state and commits the result unless fn fails.
func (s *Session) Apply(fn Transform) (State, error) {
	s.mu.Lock()
	next, err := fn(s.state.Clone())
	if err != nil {
		current := s.state.Clone()
		s.mu.Unlock()
		return current, err
	}
	next.ID = s.id
	next.Revision = s.state.Revision + 1
	next.UpdatedAt = s.now()
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.hub.Publish(Event{Type: EventState, State: snapshot})
	return snapshot, nil
}

// Update applies an infallible transformation.
func (s *Session) Update(fn func(State) State) State {
	st, _ := s.Apply(func(in State) (State, error) { return fn(in), nil })
	return st
}

func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.hub.Subscribe()
}

func (s *Session) close() {
	s.hub.Close()
}
