// Package viewstate implements the Idle → Loading → Ready | Error machine every
// screen renders from.
//
// Each fetch takes a Ticket from Begin. Only the most recent ticket may
// settle the state, so a slow response to an earlier request can never
// overwrite a newer one, and nothing settles after Close.
package viewstate

import "sync"

type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Ticket identifies one issued request.
type Ticket uint64

// State holds the phase and payload for one data flow of one screen.
// Ready data survives a later Loading or Error so a screen can keep showing
// what it last had.
type State[T any] struct {
	mu      sync.Mutex
	phase   Phase
	data    T
	hasData bool
	message string
	seq     Ticket
	closed  bool
}

func New[T any]() *State[T] { return &State[T]{} }

// Begin moves to Loading and returns the ticket the response must present.
func (s *State[T]) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if !s.closed {
		s.phase = Loading
		s.message = ""
	}
	return s.seq
}

// Supersede invalidates every outstanding ticket without changing the phase.
func (s *State[T]) Supersede() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Current reports whether a response for t may still be applied.
func (s *State[T]) Current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(t)
}

func (s *State[T]) current(t Ticket) bool { return !s.closed && t == s.seq }

func (s *State[T]) Resolve(t Ticket, data T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(t) {
		return false
	}
	s.phase = Ready
	s.data = data
	s.hasData = true
	s.message = ""
	return true
}

// Reject moves to Error. Previously resolved data is retained.
func (s *State[T]) Reject(t Ticket, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(t) {
		return false
	}
	s.phase = Error
	s.message = message
	return true
}

// Fail moves to Error under whatever ticket is current.
func (s *State[T]) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.phase = Error
	s.message = message
}

// Forget drops retained data so nothing from an earlier subject is shown
// while the next request is outstanding. Phase and tickets are unchanged.
func (s *State[T]) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.data = zero
	s.hasData = false
}

// Close detaches the state from its screen; later responses are dropped.
func (s *State[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *State[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *State[T]) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Data returns the last resolved payload, if any.
func (s *State[T]) Data() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, s.hasData
}

func (s *State[T]) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Snapshot is a consistent copy of a State for rendering.
type Snapshot[T any] struct {
	Phase   Phase
	Data    T
	HasData bool
	Message string
}

func (s *State[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot[T]{Phase: s.phase, Data: s.data, HasData: s.hasData, Message: s.message}
}
