package relayhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/backoff"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	relayhook "github.com/alimaamoun/DM-Agent/relay_hook"
)

// ── Mock sender ──────────────────────────────────────

type mockSender struct {
	mu     sync.Mutex
	events []*relayhook.Event
	err    error
}

func (m *mockSender) Send(_ context.Context, evt *relayhook.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockSender) last() *relayhook.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

var fixed = time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)

func newTestJob() *job.Job {
	slot := job.Slot{Date: "2024-06-05", Platform: "linkedin", Theme: "hiring"}
	return job.New(slot, job.SourceScheduledRun, job.Params{}, fixed)
}

func newHook(s relayhook.Sender, opts ...relayhook.Option) *relayhook.Extension {
	opts = append([]relayhook.Option{
		relayhook.WithClock(func() time.Time { return fixed }),
		relayhook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return relayhook.New(s, opts...)
}

// decode round-trips an event payload into a generic map.
func decode(t *testing.T, evt *relayhook.Event) map[string]any {
	t.Helper()
	raw, err := json.Marshal(evt.Data)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

// ── Extension ────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	if got := relayhook.New(&mockSender{}).Name(); got != "relay-hook" {
		t.Errorf("Name() = %q", got)
	}
}

func TestExtension_AwaitingReviewPayload(t *testing.T) {
	s := &mockSender{}
	j := newTestJob()
	j.Stage = job.StageAwaitingReview
	lease := id.NewLeaseID()
	j.Record(job.StageComposing, "composed/linkedin.png", lease, fixed)
	j.Record(job.StageCaptionGenerating, "We are hiring!", lease, fixed)

	if err := newHook(s).OnJobAwaitingReview(context.Background(), j); err != nil {
		t.Fatalf("OnJobAwaitingReview: %v", err)
	}
	evt := s.last()
	if evt.Type != relayhook.EventJobAwaitingReview {
		t.Errorf("Type = %q", evt.Type)
	}
	if !evt.At.Equal(fixed) || evt.ID == "" {
		t.Errorf("event envelope: %+v", evt)
	}
	data := decode(t, evt)
	want := map[string]any{
		"job_id":   j.ID.String(),
		"platform": "linkedin",
		"stage":    string(job.StageAwaitingReview),
		"image":    "composed/linkedin.png",
		"caption":  "We are hiring!",
		"source":   string(job.SourceScheduledRun),
	}
	for k, v := range want {
		if data[k] != v {
			t.Errorf("data[%s] = %v, want %v", k, data[k], v)
		}
	}
}

func TestExtension_FailedAndPublished(t *testing.T) {
	s := &mockSender{}
	h := newHook(s)
	j := newTestJob()
	j.FailedStage = job.StagePublishing

	if err := h.OnJobFailed(context.Background(), j, errors.New("token expired")); err != nil {
		t.Fatal(err)
	}
	data := decode(t, s.last())
	if data["error"] != "token expired" || data["failed_stage"] != string(job.StagePublishing) {
		t.Errorf("failed payload = %v", data)
	}

	j.Record(job.StagePublishing, "urn:li:share:1", id.NewLeaseID(), fixed)
	if err := h.OnJobPublished(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	if data := decode(t, s.last()); data["post_id"] != "urn:li:share:1" {
		t.Errorf("published payload = %v", data)
	}
}

func TestExtension_WithEvents(t *testing.T) {
	s := &mockSender{}
	h := newHook(s, relayhook.WithEvents(relayhook.EventJobFailed))
	ctx := context.Background()
	j := newTestJob()

	_ = h.OnJobCreated(ctx, j)
	_ = h.OnJobCancelled(ctx, j)
	_ = h.OnScheduleFired(ctx, 2)
	_ = h.OnJobFailed(ctx, j, errors.New("x"))

	if s.count() != 1 || s.last().Type != relayhook.EventJobFailed {
		t.Fatalf("sent %d events, last %+v", s.count(), s.last())
	}
}

func TestExtension_WithPayloadFunc(t *testing.T) {
	s := &mockSender{}
	h := newHook(s, relayhook.WithPayloadFunc(relayhook.EventScheduleFired, func(any) (any, error) {
		return map[string]string{"text": "calendar ticked"}, nil
	}))
	if err := h.OnScheduleFired(context.Background(), 4); err != nil {
		t.Fatal(err)
	}
	if data := decode(t, s.last()); data["text"] != "calendar ticked" {
		t.Errorf("data = %v", data)
	}
}

func TestExtension_SenderErrorReturned(t *testing.T) {
	s := &mockSender{err: errors.New("unreachable")}
	if err := newHook(s).OnJobCreated(context.Background(), newTestJob()); err == nil {
		t.Fatal("expected the sender error")
	}
}

func TestAllEvents(t *testing.T) {
	if got := len(relayhook.AllEvents()); got != 6 {
		t.Errorf("AllEvents() has %d entries, want 6", got)
	}
}

// ── HTTP sender ──────────────────────────────────────

func TestHTTPSender_SignsAndRetries(t *testing.T) {
	const secret = "s3cret"
	var calls atomic.Int32
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(relayhook.HeaderSignature)
		gotType = r.Header.Get(relayhook.HeaderEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := relayhook.NewHTTPSender(srv.URL,
		relayhook.WithSecret(secret),
		relayhook.WithBackoff(backoff.NewConstant(time.Millisecond)),
	)
	evt := &relayhook.Event{ID: "evt_1", Type: relayhook.EventJobPublished, At: fixed, Data: map[string]int{"n": 1}}
	if err := sender.Send(context.Background(), evt); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want a retry after 503", calls.Load())
	}
	if gotType != relayhook.EventJobPublished {
		t.Errorf("event header = %q", gotType)
	}
	if want := "sha256=" + relayhook.Sign([]byte(secret), body); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestHTTPSender_PermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad hook"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := relayhook.NewHTTPSender(srv.URL, relayhook.WithAttempts(5),
		relayhook.WithBackoff(backoff.NewConstant(time.Millisecond)))
	err := sender.Send(context.Background(), &relayhook.Event{Type: relayhook.EventJobCreated})
	if err == nil {
		t.Fatal("expected an error for 400")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
