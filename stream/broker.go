package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Broker)(nil)
	_ ext.JobCreated    = (*Broker)(nil)
	_ ext.StageEntered  = (*Broker)(nil)
	_ ext.JobFailed     = (*Broker)(nil)
	_ ext.ScheduleFired = (*Broker)(nil)
	_ ext.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker receives lifecycle events as an ext.Extension and fans them out
// to subscribers by topic.
type Broker struct {
	routes *routes
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	subs map[string]*Subscriber

	seq       atomic.Uint64
	delivered atomic.Int64
	dropped   atomic.Int64 // drops of removed subscribers

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// NewBroker creates a broker with no subscribers.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		routes:     newRoutes(),
		logger:     logger,
		now:        time.Now,
		subs:       make(map[string]*Subscriber),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe registers a subscriber on topics. An existing subscriber with
// the same id is replaced and closed.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := newSubscriber(subscriberID, b.bufferSize)
	b.mu.Lock()
	prev := b.subs[subscriberID]
	b.subs[subscriberID] = sub
	b.mu.Unlock()
	if prev != nil {
		b.retire(prev)
	}
	b.routes.add(sub, topics...)
	return sub
}

// RemoveSubscriber unsubscribes and closes a subscriber.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.mu.Lock()
	sub, ok := b.subs[subscriberID]
	delete(b.subs, subscriberID)
	b.mu.Unlock()
	if ok {
		b.retire(sub)
	}
}

func (b *Broker) retire(sub *Subscriber) {
	b.routes.drop(sub)
	b.dropped.Add(sub.Dropped())
	sub.close()
}

// Listeners returns how many subscribers listen on topic.
func (b *Broker) Listeners(topic string) int { return b.routes.listeners(topic) }

// BrokerStats contains broker counters.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns the broker counters. TotalPublished counts deliveries.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	n := len(b.subs)
	dropped := b.dropped.Load()
	for _, sub := range b.subs {
		dropped += sub.Dropped()
	}
	b.mu.Unlock()
	return BrokerStats{
		TopicCount:      b.routes.count(),
		SubscriberCount: n,
		TotalPublished:  b.delivered.Load(),
		TotalDropped:    dropped,
	}
}

func (b *Broker) publish(evt *Event) {
	evt.Seq = b.seq.Add(1)
	evt.Timestamp = b.now().UTC()
	for _, sub := range b.routes.targets(topicsOf(evt)) {
		if sub.send(evt) {
			b.delivered.Add(1)
		}
	}
}

func (b *Broker) publishJob(typ EventType, j *job.Job, data JobEventData) {
	data.JobID = j.ID.String()
	data.Date = j.Slot.Date
	data.Platform = j.Slot.Platform
	data.Theme = j.Slot.Theme
	data.Stage = string(j.Stage)
	data.Revision = j.Revision
	b.publish(&Event{
		Type:     typ,
		JobID:    data.JobID,
		Platform: data.Platform,
		Data:     mustMarshal(data),
	})
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Lifecycle hooks ─────────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (b *Broker) OnJobCreated(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobCreated, j, JobEventData{})
	return nil
}

// OnStageEntered implements ext.StageEntered. Terminal and review stages
// additionally publish their own event type.
func (b *Broker) OnStageEntered(_ context.Context, j *job.Job, from job.Stage) error {
	b.publishJob(EventStageEntered, j, JobEventData{From: string(from)})
	switch j.Stage {
	case job.StageAwaitingReview:
		b.publishJob(EventJobAwaitingReview, j, JobEventData{})
	case job.StagePublished:
		b.publishJob(EventJobPublished, j, JobEventData{PostID: j.PostID()})
	case job.StageCancelled:
		b.publishJob(EventJobCancelled, j, JobEventData{})
	}
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	data := JobEventData{}
	if jobErr != nil {
		data.Error = jobErr.Error()
	}
	b.publishJob(EventJobFailed, j, data)
	return nil
}

// OnScheduleFired implements ext.ScheduleFired.
func (b *Broker) OnScheduleFired(_ context.Context, created int) error {
	b.publish(&Event{
		Type: EventScheduleFired,
		Data: mustMarshal(ScheduleEventData{Created: created}),
	})
	return nil
}

// OnShutdown implements ext.Shutdown. Every subscriber channel is closed.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()
	for _, sub := range subs {
		b.retire(sub)
	}
	b.logger.Info("stream broker shut down", slog.Int("subscribers", len(subs)))
	return nil
}
