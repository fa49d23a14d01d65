package audithook

import (
	"context"
	"sync"
)

// DefaultTrailSize is the capacity NewTrail uses for a non-positive size.
const DefaultTrailSize = 1024

// Trail is a bounded in-memory Recorder. When full, the oldest event is
// dropped.
type Trail struct {
	mu     sync.Mutex
	events []AuditEvent
	next   int
	full   bool
}

var _ Recorder = (*Trail)(nil)

// NewTrail returns a Trail holding at most size events.
func NewTrail(size int) *Trail {
	if size <= 0 {
		size = DefaultTrailSize
	}
	return &Trail{events: make([]AuditEvent, size)}
}

// Record implements Recorder.
func (t *Trail) Record(_ context.Context, evt *AuditEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[t.next] = *evt
	t.next = (t.next + 1) % len(t.events)
	if t.next == 0 {
		t.full = true
	}
	return nil
}

// Events returns the retained events for resourceID, oldest first. An
// empty resourceID returns every retained event.
func (t *Trail) Events(resourceID string) []AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, n := 0, t.next
	if t.full {
		start, n = t.next, len(t.events)
	}
	out := make([]AuditEvent, 0, n)
	for i := range n {
		evt := t.events[(start+i)%len(t.events)]
		if resourceID == "" || evt.ResourceID == resourceID {
			out = append(out, evt)
		}
	}
	return out
}

// Len returns the number of retained events.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return len(t.events)
	}
	return t.next
}
