package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alimaamoun/DM-Agent/backoff"
	"github.com/alimaamoun/DM-Agent/collab"
	"github.com/alimaamoun/DM-Agent/ext"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
	"github.com/alimaamoun/DM-Agent/notify"
	"github.com/alimaamoun/DM-Agent/pipeline"
	"github.com/alimaamoun/DM-Agent/platform"
	"github.com/alimaamoun/DM-Agent/store/memory"
	"github.com/alimaamoun/DM-Agent/task"
	"github.com/alimaamoun/DM-Agent/worker"
)

var day = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// leaseTTL is the slot lease duration on the harness clock.
const leaseTTL = time.Minute

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// hook runs once before a fake collaborator returns.
type hook func(ctx context.Context) error

type fakeImages struct {
	mu      sync.Mutex
	prompts []string
	errs    []error
	before  hook
}

func (f *fakeImages) Generate(ctx context.Context, req collab.ImageRequest) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	before := f.before
	f.before = nil
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()

	if before != nil {
		if herr := before(ctx); herr != nil {
			return "", herr
		}
	}
	if err != nil {
		return "", err
	}
	return "images/" + req.JobID + "/generated_1024x1024.png", nil
}

func (f *fakeImages) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeComposer struct {
	mu     sync.Mutex
	before hook
}

func (f *fakeComposer) Compose(ctx context.Context, req collab.ComposeRequest) (string, error) {
	f.mu.Lock()
	before := f.before
	f.before = nil
	f.mu.Unlock()
	if before != nil {
		if err := before(ctx); err != nil {
			return "", err
		}
	}
	return "composed/" + req.JobID + "/" + req.Platform + "_" + req.Template + ".png", nil
}

type fakeCaptioner struct{}

func (fakeCaptioner) Caption(_ context.Context, req collab.CaptionRequest) (string, error) {
	return "Fresh ideas for " + req.Theme + " #" + req.Platform, nil
}

// gate blocks a collaborator call until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(ctx context.Context) error {
	close(g.entered)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("collaborator was never called")
	}
}

// gatedPublisher publishes and then blocks until the gate opens, so the
// post is live while the job is still publishing.
type gatedPublisher struct {
	*platform.Memory
	gate *gate
}

func (p *gatedPublisher) Publish(ctx context.Context, req collab.PublishRequest) (string, error) {
	postID, err := p.Memory.Publish(ctx, req)
	if err != nil {
		return "", err
	}
	if err := p.gate.hook(ctx); err != nil {
		return "", err
	}
	return postID, nil
}

// lostAck publishes and then reports a permanent failure once, as when the
// connection drops after the platform accepted the post.
type lostAck struct {
	*platform.Memory
	done bool
}

func (p *lostAck) Publish(ctx context.Context, req collab.PublishRequest) (string, error) {
	postID, err := p.Memory.Publish(ctx, req)
	if err != nil || p.done {
		return postID, err
	}
	p.done = true
	return "", task.Permanent("publish", errors.New("connection reset after send"))
}

type harness struct {
	store     *memory.Store
	leases    *lease.Manager
	ctrl      *pipeline.Controller
	images    *fakeImages
	composer  *fakeComposer
	publisher *platform.Memory
	platforms *platform.Registry
	clock     *fakeClock

	mu        sync.Mutex
	summaries []notify.Summary
}

func newHarness(t *testing.T, opts ...pipeline.Option) *harness {
	t.Helper()

	h := &harness{
		store:     memory.New(),
		images:    &fakeImages{},
		composer:  &fakeComposer{},
		publisher: platform.NewMemory(platform.Instagram),
		clock:     &fakeClock{t: day.Add(8 * time.Hour)},
	}
	h.leases = lease.NewManager(h.store, lease.WithClock(h.clock.Now), lease.WithTTL(leaseTTL))
	h.platforms = platform.NewRegistry(h.publisher)

	executor := worker.NewExecutor(slog.Default(),
		worker.WithMaxRetries(3),
		worker.WithBackoff(backoff.NewConstant(time.Millisecond)),
	)
	pool := worker.NewPool(executor, slog.Default(), worker.WithWorkers(4))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	reg := ext.NewRegistry(slog.Default())
	reg.Register(notify.New(slog.Default(), notify.WithSink(notify.SinkFunc(h.capture))))

	opts = append([]pipeline.Option{
		pipeline.WithClock(h.clock.Now),
		pipeline.WithDefaults(job.Defaults{Size: "1024x1024", Template: "minimal", Tone: "professional"}),
		pipeline.WithLockWait(0),
	}, opts...)
	h.ctrl = pipeline.NewController(h.store, h.leases, pool, pipeline.Collaborators{
		Images:     h.images,
		Composer:   h.composer,
		Captioner:  fakeCaptioner{},
		Publishers: h.platforms,
	}, reg, opts...)
	return h
}

func (h *harness) capture(_ context.Context, s notify.Summary) error {
	h.mu.Lock()
	h.summaries = append(h.summaries, s)
	h.mu.Unlock()
	return nil
}

func (h *harness) Summaries(kind notify.Kind) []notify.Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []notify.Summary
	for _, s := range h.summaries {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (h *harness) create(t *testing.T, source job.Source) *job.Job {
	t.Helper()
	j, err := h.ctrl.Create(context.Background(), pipeline.CreateRequest{
		Slot:   job.NewSlot(day, platform.Instagram, "spring sale"),
		Source: source,
		Params: job.Params{Prompt: "flowers on a desk"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return j
}

// review drives j to awaiting_review.
func (h *harness) review(t *testing.T, j *job.Job) {
	t.Helper()
	cur, err := h.ctrl.Advance(context.Background(), j.ID)
	if err != nil || cur.Stage != job.StageAwaitingReview {
		t.Fatalf("advance to review: %v, %+v", err, cur)
	}
}

func (h *harness) get(t *testing.T, j *job.Job) *job.Job {
	t.Helper()
	cur, err := h.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return cur
}

// advanceAsync runs Advance in the background and returns its outcome on
// the channel.
func (h *harness) advanceAsync(j *job.Job) <-chan advanceResult {
	out := make(chan advanceResult, 1)
	go func() {
		next, err := h.ctrl.Advance(context.Background(), j.ID)
		out <- advanceResult{next, err}
	}()
	return out
}

type advanceResult struct {
	job *job.Job
	err error
}

func wait(t *testing.T, ch <-chan advanceResult) advanceResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("advance did not return")
		return advanceResult{}
	}
}
