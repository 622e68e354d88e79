package core

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSessionBuffer = 64

// Session is one live connection as seen by the core layer. The principal is
// fixed at construction; room membership lives in the Registry.
type Session struct {
	ID        string
	Principal string
	Commands  chan *Command

	events         chan *Event
	done           chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once
}

// NewSession constructs a session with a fresh handle and bounded queues.
func NewSession(principal string, buffer int) *Session {
	if buffer <= 0 {
		buffer = defaultSessionBuffer
	}
	return &Session{
		ID:        uuid.NewString(),
		Principal: principal,
		Commands:  make(chan *Command, buffer),
		events:    make(chan *Event, buffer),
		done:      make(chan struct{}),
	}
}

// Events is the outbound queue the transport drains.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session as finished. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Submit queues an inbound command, blocking until there is room or the
// session is closed.
func (s *Session) Submit(cmd *Command) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.Commands <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// deliver queues ev without blocking. It reports false when the session is
// closed or its queue is full.
func (s *Session) deliver(ev *Event) bool {
	if s.Closed() {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}
