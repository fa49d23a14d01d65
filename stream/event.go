// Package stream fans job lifecycle events out to live subscribers, such as
// a review dashboard reading GET /v1/events. It receives events as an
// ext.Extension and delivers them through topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobCreated        EventType = "job.created"
	EventStageEntered      EventType = "job.stage_entered"
	EventJobAwaitingReview EventType = "job.awaiting_review"
	EventJobPublished      EventType = "job.published"
	EventJobFailed         EventType = "job.failed"
	EventJobCancelled      EventType = "job.cancelled"

	EventScheduleFired EventType = "schedule.fired"
)

// Event is the envelope sent to subscribers.
type Event struct {
	// Seq increases by one per published event.
	Seq uint64 `json:"seq"`

	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	JobID     string          `json:"job_id,omitempty"`
	Platform  string          `json:"platform,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID    string `json:"job_id"`
	Date     string `json:"date"`
	Platform string `json:"platform"`
	Theme    string `json:"theme"`
	Stage    string `json:"stage"`
	From     string `json:"from,omitempty"`
	Revision int    `json:"revision"`
	PostID   string `json:"post_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ScheduleEventData is the payload for scheduler ticks.
type ScheduleEventData struct {
	Created int `json:"created"`
}
