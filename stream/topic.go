package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topics a subscriber can ask for:
//
//	firehose             everything
//	jobs                 every job lifecycle event
//	review               jobs entering review
//	job:<jobID>          events for one job
//	platform:<name>      events for one platform
const (
	TopicFirehose = "firehose"
	TopicJobs     = "jobs"
	TopicReview   = "review"
)

// JobTopic returns the topic of one job.
func JobTopic(jobID string) string { return "job:" + jobID }

// PlatformTopic returns the topic of one platform.
func PlatformTopic(name string) string { return "platform:" + name }

// ValidateTopic reports whether topic names a known topic.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicFirehose, TopicJobs, TopicReview:
		return nil
	}
	kind, name, ok := strings.Cut(topic, ":")
	if !ok || name == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	if kind != "job" && kind != "platform" {
		return fmt.Errorf("stream: unknown topic kind %q", kind)
	}
	return nil
}

// topicsOf lists the topics evt is delivered on.
func topicsOf(evt *Event) []string {
	out := []string{TopicFirehose}
	if strings.HasPrefix(string(evt.Type), "job.") {
		out = append(out, TopicJobs)
	}
	if evt.Type == EventJobAwaitingReview {
		out = append(out, TopicReview)
	}
	if evt.JobID != "" {
		out = append(out, JobTopic(evt.JobID))
	}
	if evt.Platform != "" {
		out = append(out, PlatformTopic(evt.Platform))
	}
	return out
}

// routes maps topics to the subscribers listening on them.
type routes struct {
	mu     sync.RWMutex
	byName map[string]map[*Subscriber]struct{}
}

func newRoutes() *routes {
	return &routes{byName: make(map[string]map[*Subscriber]struct{})}
}

func (r *routes) add(sub *Subscriber, topics ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range topics {
		set := r.byName[t]
		if set == nil {
			set = make(map[*Subscriber]struct{})
			r.byName[t] = set
		}
		set[sub] = struct{}{}
	}
}

func (r *routes) drop(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, set := range r.byName {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.byName, t)
		}
	}
}

// targets returns each subscriber of any of topics once.
func (r *routes) targets(topics []string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Subscriber]struct{})
	var out []*Subscriber
	for _, t := range topics {
		for sub := range r.byName[t] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

func (r *routes) listeners(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName[topic])
}

func (r *routes) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
