package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
)

const jobColumns = `data, updated_at`

// CreateJob inserts the job if its slot has neither an active nor a
// published job. A transaction-scoped advisory lock on the slot key
// serializes concurrent creates.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return wrap("marshal job", err)
	}
	slot := j.Slot.Normalize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap("begin create", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.Key()); err != nil {
		return wrap("lock slot", err)
	}

	var published, active bool
	err = tx.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM dmagent_jobs WHERE slot_key = $1 AND stage = 'published'),
			EXISTS(SELECT 1 FROM dmagent_jobs WHERE slot_key = $1 AND stage NOT IN ('published', 'failed', 'cancelled'))
	`, slot.Key()).Scan(&published, &active)
	if err != nil {
		return wrap("check slot", err)
	}
	if published {
		return dmagent.ErrSlotPublished
	}
	if active {
		return dmagent.ErrDuplicateActiveJob
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dmagent_jobs (
			id, slot_key, slot_date, platform, theme, stage, source,
			data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID.String(), slot.Key(), slot.Date, slot.Platform, slot.Theme,
		string(j.Stage), string(j.Source), data, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return uniqueViolation(err, j.ID)
		}
		return wrap("insert job", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return wrap("commit create", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM dmagent_jobs WHERE id = $1`, jobID.String())
	return scanJob(row)
}

// GetActiveJob returns the active job of slot.
func (s *Store) GetActiveJob(ctx context.Context, slot job.Slot) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM dmagent_jobs
		WHERE slot_key = $1 AND stage NOT IN ('published', 'failed', 'cancelled')`,
		slot.Normalize().Key(),
	)
	return scanJob(row)
}

// UpdateJob replaces the stored job when its updated_at equals seen.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job, seen time.Time) error {
	cur, err := s.GetJob(ctx, j.ID)
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

	tag, err := s.pool.Exec(ctx, `
		UPDATE dmagent_jobs SET stage = $2, data = $3, updated_at = $4
		WHERE id = $1 AND updated_at = $5`,
		j.ID.String(), string(next.Stage), data, next.UpdatedAt, seen,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return uniqueViolation(err, j.ID)
		}
		return wrap("update job", err)
	}
	if tag.RowsAffected() == 0 {
		// The row was deleted or rewritten between the read and the update.
		if _, err := s.GetJob(ctx, j.ID); err != nil {
			return err
		}
		return dmagent.ErrStaleWrite
	}
	j.UpdatedAt = next.UpdatedAt
	return nil
}

// ListJobs returns jobs matching filter ordered by ID.
func (s *Store) ListJobs(ctx context.Context, filter job.Filter, opts job.ListOpts) ([]*job.Job, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.Stages) > 0 {
		stages := make([]string, len(filter.Stages))
		for i, st := range filter.Stages {
			stages[i] = string(st)
		}
		add("stage = ANY($%d)", stages)
	}
	if filter.Date != "" {
		add("slot_date = $%d", filter.Date)
	}
	if filter.From != "" {
		add("slot_date >= $%d", filter.From)
	}
	if filter.To != "" {
		add("slot_date <= $%d", filter.To)
	}
	if filter.Platform != "" {
		add("platform = $%d", strings.ToLower(filter.Platform))
	}
	if filter.Theme != "" {
		add("theme = $%d", filter.Theme)
	}
	if filter.Source != "" {
		add("source = $%d", string(filter.Source))
	}
	if !opts.After.IsNil() {
		add("id > $%d", opts.After.String())
	}

	query := `SELECT ` + jobColumns + ` FROM dmagent_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list jobs", err)
	}
	defer rows.Close()

	result := make([]*job.Job, 0)
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list jobs", err)
	}
	return result, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		data      []byte
		updatedAt time.Time
	)
	if err := row.Scan(&data, &updatedAt); err != nil {
		if isNoRows(err) {
			return nil, dmagent.ErrJobNotFound
		}
		return nil, wrap("scan job", err)
	}
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, wrap("decode job", err)
	}
	j.UpdatedAt = updatedAt.UTC()
	if j.Attempts == nil {
		j.Attempts = map[job.Stage]int{}
	}
	if j.Artifacts == nil {
		j.Artifacts = map[job.Stage]job.Artifact{}
	}
	return &j, nil
}

func uniqueViolation(err error, jobID id.JobID) error {
	switch violatedConstraint(err) {
	case activeSlotIndex:
		return dmagent.ErrDuplicateActiveJob
	case publishedSlotIndex:
		return dmagent.ErrSlotPublished
	default:
		return fmt.Errorf("dmagent/postgres: job %s already exists: %w", jobID, err)
	}
}
