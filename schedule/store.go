package schedule

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/skeinworks/spindle/errors"
)

// Store handles persistence of scheduled jobs. It is the single source of
// truth for job definitions; the scheduler's trigger index is derived from
// it and rebuilt on startup.
//
// Concurrent updates to the same job are last-write-wins per field; there
// is no optimistic locking. The scheduler serializes its own mutations per
// job, so this only affects external writers racing each other.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, name, description, work_key, spec_id, schedule_json,
	state, max_instances, coalesce_fires, queue_depth, fail_policy,
	next_run_at, last_run_at, last_execution_id, created_at, updated_at`

// CreateJob inserts a new job.
func (s *Store) CreateJob(job *Job) error {
	scheduleJSON, err := json.Marshal(job.Schedule)
	if err != nil {
		return errors.Wrap(err, "failed to marshal schedule")
	}

	query := `
		INSERT INTO scheduled_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	specID := sql.NullString{String: job.SpecID, Valid: job.SpecID != ""}
	lastExecID := sql.NullString{String: job.LastExecutionID, Valid: job.LastExecutionID != ""}

	_, err = s.db.Exec(query,
		job.ID,
		job.Name,
		job.Description,
		job.WorkKey,
		specID,
		string(scheduleJSON),
		job.State,
		job.MaxInstances,
		job.Coalesce,
		job.QueueDepth,
		job.FailPolicy,
		nullTime(job.NextRunAt),
		nullTime(job.LastRunAt),
		lastExecID,
		job.CreatedAt.UTC().Format(time.RFC3339),
		job.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %s", job.ID)
	}
	return nil
}

// GetJob retrieves a job by id. Returns ErrJobNotFound when absent.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewJobNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// UpdateJob applies a typed partial update: only the patch's non-nil fields
// change. Returns ErrJobNotFound when the id does not exist.
func (s *Store) UpdateJob(id string, patch JobPatch) error {
	if patch.IsZero() {
		return nil
	}

	var sets []string
	var args []interface{}

	add := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.SpecID != nil {
		add("spec_id", sql.NullString{String: *patch.SpecID, Valid: *patch.SpecID != ""})
	}
	if patch.Schedule != nil {
		scheduleJSON, err := json.Marshal(*patch.Schedule)
		if err != nil {
			return errors.Wrap(err, "failed to marshal schedule")
		}
		add("schedule_json", string(scheduleJSON))
	}
	if patch.State != nil {
		add("state", *patch.State)
	}
	if patch.MaxInstances != nil {
		add("max_instances", *patch.MaxInstances)
	}
	if patch.Coalesce != nil {
		add("coalesce_fires", *patch.Coalesce)
	}
	if patch.QueueDepth != nil {
		add("queue_depth", *patch.QueueDepth)
	}
	if patch.FailPolicy != nil {
		add("fail_policy", *patch.FailPolicy)
	}
	if patch.ClearNextRun {
		add("next_run_at", nil)
	} else if patch.NextRunAt != nil {
		add("next_run_at", patch.NextRunAt.UTC().Format(time.RFC3339))
	}
	add("updated_at", time.Now().UTC().Format(time.RFC3339))

	query := `UPDATE scheduled_jobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewJobNotFound(id)
	}
	return nil
}

// UpdateJobAfterFire records a fire decision: the last run instant, the
// recomputed next fire time (nil when the schedule is exhausted), and an
// optional state change, persisted together.
func (s *Store) UpdateJobAfterFire(id string, lastRun time.Time, nextRun *time.Time, state *State) error {
	query := `
		UPDATE scheduled_jobs
		SET last_run_at = ?,
		    next_run_at = ?,
		    state = COALESCE(?, state),
		    updated_at = ?
		WHERE id = ?
	`

	var stateArg interface{}
	if state != nil {
		stateArg = string(*state)
	}

	result, err := s.db.Exec(query,
		lastRun.UTC().Format(time.RFC3339),
		nullTime(nextRun),
		stateArg,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s after fire", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewJobNotFound(id)
	}
	return nil
}

// SetLastExecution links the most recent execution record to the job.
func (s *Store) SetLastExecution(id string, executionID string) error {
	_, err := s.db.Exec(
		`UPDATE scheduled_jobs SET last_execution_id = ?, updated_at = ? WHERE id = ?`,
		executionID, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set last execution for job %s", id)
	}
	return nil
}

// DeleteJob removes a job. Idempotent at this layer: deleting a missing id
// is not an error; the bool reports whether a row was removed.
func (s *Store) DeleteJob(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete job %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows > 0, nil
}

// ListJobs returns jobs ordered by creation time, optionally filtered by
// state, with limit/skip pagination. limit <= 0 means no limit.
func (s *Store) ListJobs(states []State, limit, skip int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	var args []interface{}

	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, st := range states {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` WHERE state IN (` + strings.Join(placeholders, ", ") + `)`
	}

	query += ` ORDER BY created_at ASC, id ASC`
	if limit <= 0 {
		limit = -1 // SQLite: no limit, required before OFFSET
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var specID, nextRunAt, lastRunAt, lastExecID sql.NullString
	var scheduleJSON, createdAt, updatedAt string

	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.Description,
		&job.WorkKey,
		&specID,
		&scheduleJSON,
		&job.State,
		&job.MaxInstances,
		&job.Coalesce,
		&job.QueueDepth,
		&job.FailPolicy,
		&nextRunAt,
		&lastRunAt,
		&lastExecID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scheduleJSON), &job.Schedule); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal schedule for job %s", job.ID)
	}
	if specID.Valid {
		job.SpecID = specID.String
	}
	if lastExecID.Valid {
		job.LastExecutionID = lastExecID.String
	}

	if job.NextRunAt, err = parseNullTime(nextRunAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse next_run_at for job %s", job.ID)
	}
	if job.LastRunAt, err = parseNullTime(lastRunAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse last_run_at for job %s", job.ID)
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}

	return &job, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
