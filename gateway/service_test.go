package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/gateway"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
	"github.com/alimaamoun/DM-Agent/pipeline"
	"github.com/alimaamoun/DM-Agent/platform"
	"github.com/alimaamoun/DM-Agent/store/memory"
)

// Wednesday morning.
var now = time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC)

type kickSpy struct {
	mu  sync.Mutex
	ids []id.JobID
}

func (k *kickSpy) Kick(jobID id.JobID) {
	k.mu.Lock()
	k.ids = append(k.ids, jobID)
	k.mu.Unlock()
}

func (k *kickSpy) Kicked() []id.JobID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]id.JobID(nil), k.ids...)
}

type fixture struct {
	store *memory.Store
	svc   *gateway.Service
	kicks *kickSpy
}

func newFixture(t *testing.T, opts ...gateway.Option) *fixture {
	t.Helper()
	st := memory.New()
	clock := func() time.Time { return now }
	ctrl := pipeline.NewController(st, lease.NewManager(st), nil, pipeline.Collaborators{}, nil,
		pipeline.WithClock(clock),
		pipeline.WithDefaults(job.Defaults{Size: "1024x1024", Template: "minimal", Tone: "professional"}),
	)
	kicks := &kickSpy{}
	opts = append([]gateway.Option{
		gateway.WithKicker(kicks),
		gateway.WithClock(clock),
		gateway.WithPlatforms(platform.NewRegistry(
			platform.NewMemory(platform.Instagram),
			platform.NewMemory(platform.Twitter),
		)),
	}, opts...)
	return &fixture{store: st, svc: gateway.NewService(ctrl, opts...), kicks: kicks}
}

func (f *fixture) create(t *testing.T, platformName, theme string) *job.Job {
	t.Helper()
	j, created, err := f.svc.CreateOrFetch(context.Background(), gateway.CreateRequest{
		Date:     "2024-06-05",
		Platform: platformName,
		Theme:    theme,
		Params:   gateway.Patch{Prompt: ptr("flowers on a desk")},
	})
	require.NoError(t, err)
	require.True(t, created)
	return j
}

// moveTo walks a job forward through the stage order to stage.
func (f *fixture) moveTo(t *testing.T, j *job.Job, stage job.Stage) *job.Job {
	t.Helper()
	ctx := context.Background()
	for j.Stage != stage {
		next, ok := j.Stage.Next()
		require.True(t, ok, "no stage after %s", j.Stage)
		var err error
		j, err = job.Update(ctx, f.store, j, func(j *job.Job) error {
			return j.Transition(next, now)
		})
		require.NoError(t, err)
	}
	return j
}

func ptr[T any](v T) *T { return &v }

func TestCreateOrFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, "Instagram", " spring sale ")
	assert.Equal(t, job.StagePlanned, first.Stage)
	assert.Equal(t, job.SourceInteractive, first.Source)
	assert.Equal(t, "2024-06-05|instagram|spring sale", first.Slot.Key())
	assert.Equal(t, "flowers on a desk", first.Params.Prompt)
	assert.Equal(t, "professional", first.Params.Tone)

	again, created, err := f.svc.CreateOrFetch(ctx, gateway.CreateRequest{
		Date: "2024-06-05", Platform: "instagram", Theme: "spring sale",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	assert.Equal(t, []id.JobID{first.ID}, f.kicks.Kicked())
}

func TestCreateOrFetchDefaultsToToday(t *testing.T) {
	f := newFixture(t)
	j, created, err := f.svc.CreateOrFetch(context.Background(), gateway.CreateRequest{
		Platform: "twitter", Theme: "launch",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "2024-06-05", j.Slot.Date)
}

func TestCreateOrFetchRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateOrFetch(ctx, gateway.CreateRequest{Platform: "myspace", Theme: "launch"})
	assert.ErrorIs(t, err, dmagent.ErrUnknownPlatform)

	_, _, err = f.svc.CreateOrFetch(ctx, gateway.CreateRequest{Date: "June 5", Platform: "instagram", Theme: "launch"})
	assert.ErrorIs(t, err, dmagent.ErrInvalidSlot)

	_, _, err = f.svc.CreateOrFetch(ctx, gateway.CreateRequest{Platform: "instagram"})
	assert.ErrorIs(t, err, dmagent.ErrInvalidSlot)
}

func TestReviseMergesParams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.create(t, "instagram", "spring sale")

	revised, err := f.svc.Revise(ctx, j.ID, gateway.Patch{Tone: ptr("playful"), HashtagCount: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, job.StagePlanned, revised.Stage)
	assert.Equal(t, 1, revised.Revision)
	assert.Equal(t, "flowers on a desk", revised.Params.Prompt, "unset fields keep their value")
	assert.Equal(t, "playful", revised.Params.Tone)
	assert.Equal(t, 5, revised.Params.HashtagCount)
}

func TestReviseInFlightIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.moveTo(t, f.create(t, "instagram", "spring sale"), job.StageComposing)

	first, err := f.svc.Revise(ctx, j.ID, gateway.Patch{Tone: ptr("playful")})
	require.NoError(t, err)
	assert.Equal(t, job.StageComposing, first.Stage)
	require.NotNil(t, first.PendingRevision)

	// A second revision builds on the pending one.
	second, err := f.svc.Revise(ctx, j.ID, gateway.Patch{Template: ptr("bold")})
	require.NoError(t, err)
	require.NotNil(t, second.PendingRevision)
	assert.Equal(t, "playful", second.PendingRevision.Tone)
	assert.Equal(t, "bold", second.PendingRevision.Template)
}

func TestReviewFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	j := f.moveTo(t, f.create(t, "instagram", "spring sale"), job.StageAwaitingReview)
	at := now.Add(3 * time.Hour)
	approved, err := f.svc.Approve(ctx, j.ID, &at)
	require.NoError(t, err)
	assert.Equal(t, job.StageScheduled, approved.Stage)
	require.NotNil(t, approved.PublishAt)
	assert.True(t, approved.PublishAt.Equal(at))

	_, err = f.svc.Approve(ctx, j.ID, nil)
	assert.ErrorIs(t, err, dmagent.ErrInvalidTransition)

	other := f.moveTo(t, f.create(t, "twitter", "spring sale"), job.StageAwaitingReview)
	rejected, err := f.svc.Reject(ctx, other.ID, "off brand", nil)
	require.NoError(t, err)
	assert.Equal(t, job.StageCancelled, rejected.Stage)
	assert.Equal(t, "off brand", rejected.LastError)
}

func TestRejectWithRevision(t *testing.T) {
	f := newFixture(t)
	j := f.moveTo(t, f.create(t, "instagram", "spring sale"), job.StageAwaitingReview)

	revised, err := f.svc.Reject(context.Background(), j.ID, "", &gateway.Patch{Prompt: ptr("tulips")})
	require.NoError(t, err)
	assert.Equal(t, job.StagePlanned, revised.Stage)
	assert.Equal(t, "tulips", revised.Params.Prompt)
	assert.Empty(t, revised.Artifacts)
}

func TestCancelAndResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.create(t, "instagram", "spring sale")

	_, err := f.svc.Resubmit(ctx, j.ID, nil)
	assert.ErrorIs(t, err, dmagent.ErrInvalidTransition, "active jobs cannot be resubmitted")

	cancelled, err := f.svc.Cancel(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StageCancelled, cancelled.Stage)

	_, err = f.svc.Cancel(ctx, j.ID)
	assert.ErrorIs(t, err, dmagent.ErrInvalidTransition)

	fresh, err := f.svc.Resubmit(ctx, j.ID, &gateway.Patch{Style: ptr("watercolor")})
	require.NoError(t, err)
	assert.NotEqual(t, j.ID, fresh.ID)
	assert.Equal(t, j.ID, fresh.ResubmittedFrom)
	assert.Equal(t, job.StagePlanned, fresh.Stage)
	assert.Equal(t, "watercolor", fresh.Params.Style)
	assert.Equal(t, "flowers on a desk", fresh.Params.Prompt)

	assert.Contains(t, f.kicks.Kicked(), fresh.ID)
}

func TestScheduleFansOutToPlatforms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.moveTo(t, f.create(t, "instagram", "spring sale"), job.StageAwaitingReview)
	at := now.Add(time.Hour)

	res, err := f.svc.Schedule(ctx, j.ID, &at, []string{"instagram", "Twitter"})
	require.NoError(t, err)
	assert.Equal(t, job.StageScheduled, res.Approved.Stage)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "twitter", res.Created[0].Slot.Platform)
	assert.Equal(t, "flowers on a desk", res.Created[0].Params.Prompt)
	assert.Empty(t, res.Existing)

	_, err = f.svc.Schedule(ctx, j.ID, &at, []string{"friendster"})
	assert.ErrorIs(t, err, dmagent.ErrUnknownPlatform)
}

func TestStatusAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "instagram", "spring sale")
	f.create(t, "twitter", "spring sale")

	got, err := f.svc.Status(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = f.svc.Status(ctx, id.NewJobID())
	assert.ErrorIs(t, err, dmagent.ErrJobNotFound)

	jobs, err := f.svc.List(ctx, job.Filter{Platform: "twitter"}, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "twitter", jobs[0].Slot.Platform)

	jobs, err = f.svc.List(ctx, job.Filter{}, 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestCalendar(t *testing.T) {
	planned := calendar.Static{
		{Slot: job.NewSlot(now, "instagram", "thursday tips"), PublishAt: now.Add(25 * time.Hour)},
		{Slot: job.NewSlot(now, "instagram", "next month"), PublishAt: now.Add(40 * 24 * time.Hour)},
	}
	f := newFixture(t, gateway.WithCalendar(planned))
	ctx := context.Background()
	f.create(t, "instagram", "spring sale")

	view, err := f.svc.Calendar(ctx, "this_week")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03", view.From)
	assert.Equal(t, "2024-06-09", view.To)
	assert.Len(t, view.Jobs, 1)
	require.Len(t, view.Planned, 1)
	assert.Equal(t, "thursday tips", view.Planned[0].Slot.Theme)

	view, err = f.svc.Calendar(ctx, "next_week")
	require.NoError(t, err)
	assert.Empty(t, view.Jobs)

	_, err = f.svc.Calendar(ctx, "someday")
	assert.Error(t, err)
}

func TestPatch(t *testing.T) {
	base := job.Params{Prompt: "a", Tone: "professional", Hashtags: true, HashtagCount: 15}
	assert.True(t, gateway.Patch{}.Empty())
	assert.Equal(t, base, gateway.Patch{}.Apply(base))

	got := gateway.Patch{Hashtags: ptr(false), Prompt: ptr("")}.Apply(base)
	assert.False(t, got.Hashtags)
	assert.Empty(t, got.Prompt, "an explicit empty value clears the field")
	assert.Equal(t, 15, got.HashtagCount)

	assert.Equal(t, base, gateway.PatchFrom(base).Apply(job.Params{}))
}
