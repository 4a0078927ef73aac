package chat

import (
	"sync"
	"sync/atomic"
)

// session is the in-memory state of one conversation. mu serializes every
// mutation of the conversation's records and stats; busy and composing are
// read without it.
type session struct {
	mu        sync.Mutex
	busy      atomic.Bool
	composing atomic.Bool
}

// sessions maps conversation ids to their [session]. A session is created on
// first use and lives as long as the controller, so every caller touching a
// conversation shares one lock and one busy flag. Whether a conversation is
// active is tracked separately: [Controller.EndSession] clears the mark but
// keeps the lock.
type sessions struct {
	mu       sync.Mutex
	m        map[int]*session
	active   map[int]struct{}
	onChange func(delta int64)
}

func newSessions(onChange func(delta int64)) *sessions {
	return &sessions{
		m:        make(map[int]*session),
		active:   make(map[int]struct{}),
		onChange: onChange,
	}
}

// lock returns the session of id, creating it when absent. It does not
// mark the conversation active.
func (s *sessions) lock(id int) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockLocked(id)
}

// open returns the session of id and marks the conversation active.
func (s *sessions) open(id int) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.lockLocked(id)
	if _, ok := s.active[id]; !ok {
		s.active[id] = struct{}{}
		if s.onChange != nil {
			s.onChange(1)
		}
	}
	return sess
}

func (s *sessions) lockLocked(id int) *session {
	sess, ok := s.m[id]
	if !ok {
		sess = &session{}
		s.m[id] = sess
	}
	return sess
}

// peek returns the session of id without creating one.
func (s *sessions) peek(id int) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	return sess, ok
}

// isActive reports whether id is marked active.
func (s *sessions) isActive(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// drop clears the active mark of id and reports whether it was set. The
// session itself stays, so an in-flight cycle still holds the busy flag
// that later calls see.
func (s *sessions) drop(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	if s.onChange != nil {
		s.onChange(-1)
	}
	return true
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
