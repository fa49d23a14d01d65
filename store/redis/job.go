package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
)

// listBatch is how many ids ListJobs reads per round when filtering.
const listBatch = 200

// CreateJob stores the job and claims its slot in one script call.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return wrap("marshal job", err)
	}
	jID, slotKey := j.ID.String(), j.Slot.Key()

	res, err := createJobScript.Run(ctx, s.client,
		[]string{s.keys.job(jID), s.keys.active(slotKey), s.keys.published(slotKey), s.keys.jobIDs()},
		jID, data, micros(j.UpdatedAt), flag(j.Stage.Active()), flag(j.Stage == job.StagePublished),
	).Text()
	if err != nil {
		return wrap("create job", err)
	}
	switch res {
	case "ok":
		return nil
	case "published":
		return dmagent.ErrSlotPublished
	case "duplicate":
		return dmagent.ErrDuplicateActiveJob
	default:
		return fmt.Errorf("dmagent/redis: create job: id %s already exists", jID)
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJob(ctx, jobID.String())
}

// GetActiveJob returns the active job of slot.
func (s *Store) GetActiveJob(ctx context.Context, slot job.Slot) (*job.Job, error) {
	jID, err := s.client.Get(ctx, s.keys.active(slot.Normalize().Key())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, dmagent.ErrJobNotFound
	}
	if err != nil {
		return nil, wrap("get active job", err)
	}
	return s.getJob(ctx, jID)
}

// UpdateJob replaces the stored job when its UpdatedAt equals seen.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job, seen time.Time) error {
	cur, err := s.getJob(ctx, j.ID.String())
	if err != nil {
		return err
	}
	if !cur.UpdatedAt.Equal(seen) {
		return dmagent.ErrStaleWrite
	}

	next := j.Clone()
	// Slot and provenance are immutable.
	next.Slot, next.Source, next.CreatedAt = cur.Slot, cur.Source, cur.CreatedAt
	next.UpdatedAt = job.NextUpdatedAt(seen, time.Now())
	data, err := json.Marshal(next)
	if err != nil {
		return wrap("marshal job", err)
	}

	jID, slotKey := j.ID.String(), cur.Slot.Key()
	res, err := updateJobScript.Run(ctx, s.client,
		[]string{s.keys.job(jID), s.keys.active(slotKey), s.keys.published(slotKey)},
		jID, micros(seen), data, micros(next.UpdatedAt), flag(next.Stage.Active()), flag(next.Stage == job.StagePublished),
	).Text()
	if err != nil {
		return wrap("update job", err)
	}
	switch res {
	case "ok":
		j.UpdatedAt = next.UpdatedAt
		return nil
	case "stale":
		return dmagent.ErrStaleWrite
	case "duplicate":
		return dmagent.ErrDuplicateActiveJob
	default:
		return dmagent.ErrJobNotFound
	}
}

// ListJobs returns jobs matching filter ordered by ID. Filtering happens
// client-side while walking the lexicographic id index.
func (s *Store) ListJobs(ctx context.Context, filter job.Filter, opts job.ListOpts) ([]*job.Job, error) {
	from := "-"
	if !opts.After.IsNil() {
		from = "(" + opts.After.String()
	}

	result := make([]*job.Job, 0)
	for {
		ids, err := s.client.ZRangeByLex(ctx, s.keys.jobIDs(), &goredis.ZRangeBy{
			Min: from, Max: "+", Count: listBatch,
		}).Result()
		if err != nil {
			return nil, wrap("list job ids", err)
		}
		jobs, err := s.getJobs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			if !filter.Match(j) {
				continue
			}
			result = append(result, j)
			if opts.Limit > 0 && len(result) == opts.Limit {
				return result, nil
			}
		}
		if len(ids) < listBatch {
			return result, nil
		}
		from = "(" + ids[len(ids)-1]
	}
}

func (s *Store) getJob(ctx context.Context, jID string) (*job.Job, error) {
	vals, err := s.client.HMGet(ctx, s.keys.job(jID), "data", "updated_us").Result()
	if err != nil {
		return nil, wrap("get job", err)
	}
	return decodeJob(vals)
}

// getJobs loads ids in one pipeline, skipping ids whose hash vanished.
func (s *Store) getJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.SliceCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HMGet(ctx, s.keys.job(jID), "data", "updated_us")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrap("get jobs", err)
	}
	out := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		j, err := decodeJob(cmd.Val())
		if errors.Is(err, dmagent.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func decodeJob(vals []any) (*job.Job, error) {
	if len(vals) != 2 || vals[0] == nil {
		return nil, dmagent.ErrJobNotFound
	}
	data, _ := vals[0].(string)
	var j job.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, wrap("decode job", err)
	}
	if us, ok := vals[1].(string); ok {
		n, err := strconv.ParseInt(us, 10, 64)
		if err != nil {
			return nil, wrap("decode updated_us", err)
		}
		j.UpdatedAt = time.UnixMicro(n).UTC()
	}
	if j.Attempts == nil {
		j.Attempts = map[job.Stage]int{}
	}
	if j.Artifacts == nil {
		j.Artifacts = map[job.Stage]job.Artifact{}
	}
	return &j, nil
}

func micros(t time.Time) string { return strconv.FormatInt(t.UnixMicro(), 10) }

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func wrap(op string, err error) error {
	return fmt.Errorf("dmagent/redis: %s: %w", op, err)
}
