package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives the events of the topics it subscribed to. Delivery
// never blocks the publisher: an event that does not fit the buffer is
// dropped and counted.
type Subscriber struct {
	id string
	ch chan *Event

	mu     sync.RWMutex // guards filter and closed against send
	filter func(*Event) bool
	closed bool

	dropped atomic.Int64
}

func newSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscriber{id: id, ch: make(chan *Event, bufferSize)}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the event channel. It is closed when the subscriber is removed.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// Dropped returns how many events did not fit the buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter restricts delivery to events for which fn returns true.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.mu.Lock()
	s.filter = fn
	s.mu.Unlock()
}

// send reports whether evt was queued.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || (s.filter != nil && !s.filter(evt)) {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
