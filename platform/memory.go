package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/alimaamoun/DM-Agent/collab"
)

// Memory is an in-process publisher. It honors idempotency keys and can be
// told to fail the next calls, which makes it the publisher of choice for
// tests and dry runs.
type Memory struct {
	limits Limits

	mu       sync.Mutex
	posts    map[string]string // idempotency key → post id
	captions map[string]string // post id → caption
	calls    int
	failures []error
}

var _ collab.Publisher = (*Memory)(nil)

// NewMemory creates a Memory publisher for a platform. Known platforms get
// their real limits.
func NewMemory(name string) *Memory {
	l, ok := KnownLimits(name)
	if !ok {
		l = Limits{Platform: strings.ToLower(name)}
	}
	return &Memory{
		limits:   l,
		posts:    make(map[string]string),
		captions: make(map[string]string),
	}
}

// Platform implements collab.Publisher.
func (m *Memory) Platform() string { return m.limits.Platform }

// Validate implements collab.Publisher.
func (m *Memory) Validate(req collab.PublishRequest) error { return m.limits.Validate(req) }

// FailNext makes the following Publish calls return errs, in order.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Publish implements collab.Publisher.
func (m *Memory) Publish(ctx context.Context, req collab.PublishRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return "", err
	}
	if id, ok := m.posts[req.IdempotencyKey]; ok {
		return id, nil
	}
	id := fmt.Sprintf("%s-%d", m.limits.Platform, len(m.posts)+1)
	m.posts[req.IdempotencyKey] = id
	m.captions[id] = req.Caption
	return id, nil
}

// Calls returns the number of Publish calls.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Posts returns the number of distinct posts created.
func (m *Memory) Posts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

// Caption returns the caption of a post.
func (m *Memory) Caption(postID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captions[postID]
	return c, ok
}
