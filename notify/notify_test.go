package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/notify"
)

var fixed = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type captureSink struct {
	mu  sync.Mutex
	got []notify.Summary
}

func (c *captureSink) Deliver(_ context.Context, s notify.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, s)
	return nil
}

func failedJob() *job.Job {
	j := job.New(job.Slot{Date: "2024-06-01", Platform: "instagram", Theme: "summer"}, job.SourceScheduledRun, job.Params{}, fixed)
	if err := j.Transition(job.StageImageGenerating, fixed); err != nil {
		panic(err)
	}
	if err := j.Fail("image.generate: content policy", fixed); err != nil {
		panic(err)
	}
	return j
}

func TestNotifier_FailureSummaryNamesStageAndReason(t *testing.T) {
	sink := &captureSink{}
	n := notify.New(slog.Default(), notify.WithSink(sink), notify.WithClock(func() time.Time { return fixed }))
	r := ext.NewRegistry(slog.Default())
	r.Register(n)

	j := failedJob()
	r.EmitStageEntered(context.Background(), j, job.StageImageGenerating)

	if len(sink.got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(sink.got))
	}
	s := sink.got[0]
	if s.Kind != notify.KindFailed {
		t.Errorf("kind = %q, want failed", s.Kind)
	}
	if s.Stage != job.StageImageGenerating {
		t.Errorf("stage = %q, want image_generating", s.Stage)
	}
	if s.Reason != "image.generate: content policy" {
		t.Errorf("reason = %q", s.Reason)
	}
	if s.JobID != j.ID || !s.At.Equal(fixed) {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestNotifier_KindsPerHook(t *testing.T) {
	sink := &captureSink{}
	n := notify.New(nil, notify.WithSink(sink))
	ctx := context.Background()
	j := failedJob()

	_ = n.OnJobAwaitingReview(ctx, j)
	_ = n.OnJobPublished(ctx, j)
	_ = n.OnJobCancelled(ctx, j)

	want := []notify.Kind{notify.KindAwaitingReview, notify.KindPublished, notify.KindCancelled}
	if len(sink.got) != len(want) {
		t.Fatalf("got %d summaries, want %d", len(sink.got), len(want))
	}
	for i, k := range want {
		if sink.got[i].Kind != k {
			t.Errorf("summary[%d].Kind = %q, want %q", i, sink.got[i].Kind, k)
		}
	}
}

func TestNotifier_FailingSinkDoesNotStopOthers(t *testing.T) {
	sink := &captureSink{}
	bad := notify.SinkFunc(func(context.Context, notify.Summary) error { return errors.New("smtp down") })
	n := notify.New(nil, notify.WithSink(bad), notify.WithSink(sink))

	err := n.OnJobCancelled(context.Background(), failedJob())
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(sink.got) != 1 {
		t.Fatalf("second sink should still receive the summary")
	}
}

func TestLogSink_WritesFailureAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := notify.New(logger)

	if err := n.OnJobFailed(context.Background(), failedJob(), nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "stage=image_generating") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestMailSink_ComposesMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	send := func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	sink := notify.NewMailSink(notify.MailConfig{
		Addr: "smtp.example.com:587",
		From: "bot@example.com",
		To:   []string{"review@example.com"},
	}, send)
	n := notify.New(nil, notify.WithSink(sink))

	j := failedJob()
	j.Stage = job.StageAwaitingReview
	if err := n.OnJobAwaitingReview(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 1 {
		t.Fatalf("addr=%q to=%v", gotAddr, gotTo)
	}
	for _, want := range []string{"Subject: [dm-agent] 2024-06-01|instagram|summer awaits review", "approve_content", j.ID.String()} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestMailSink_NoRecipientsIsNoop(t *testing.T) {
	called := false
	sink := notify.NewMailSink(notify.MailConfig{Addr: "x:25"}, func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	})
	if err := sink.Deliver(context.Background(), notify.Summary{}); err != nil || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}
