package schedule

import (
	"database/sql"
	"time"

	"github.com/skeinworks/spindle/errors"
)

// ExecutionStore persists execution history for scheduled jobs.
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution store.
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, job_id, status, started_at, completed_at,
	duration_ms, error_message, result_summary, created_at, updated_at`

// CreateExecution inserts a new execution record.
func (s *ExecutionStore) CreateExecution(exec *Execution) error {
	query := `
		INSERT INTO job_executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	errMsg := sql.NullString{String: exec.ErrorMessage, Valid: exec.ErrorMessage != ""}
	summary := sql.NullString{String: exec.ResultSummary, Valid: exec.ResultSummary != ""}

	var durationMs interface{}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}

	_, err := s.db.Exec(query,
		exec.ID,
		exec.JobID,
		exec.Status,
		exec.StartedAt.UTC().Format(time.RFC3339),
		nullTime(exec.CompletedAt),
		durationMs,
		errMsg,
		summary,
		exec.CreatedAt.UTC().Format(time.RFC3339),
		exec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create execution %s", exec.ID)
	}
	return nil
}

// UpdateExecution writes the final status of an execution.
func (s *ExecutionStore) UpdateExecution(exec *Execution) error {
	query := `
		UPDATE job_executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    error_message = ?,
		    result_summary = ?,
		    updated_at = ?
		WHERE id = ?
	`

	errMsg := sql.NullString{String: exec.ErrorMessage, Valid: exec.ErrorMessage != ""}
	summary := sql.NullString{String: exec.ResultSummary, Valid: exec.ResultSummary != ""}

	var durationMs interface{}
	if exec.DurationMs != nil {
		durationMs = *exec.DurationMs
	}

	result, err := s.db.Exec(query,
		exec.Status,
		nullTime(exec.CompletedAt),
		durationMs,
		errMsg,
		summary,
		time.Now().UTC().Format(time.RFC3339),
		exec.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update execution %s", exec.ID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Newf("execution not found: %s", exec.ID)
	}
	return nil
}

// GetExecution retrieves an execution by id.
func (s *ExecutionStore) GetExecution(id string) (*Execution, error) {
	row := s.db.QueryRow(`SELECT `+executionColumns+` FROM job_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf("execution not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}
	return exec, nil
}

// ListExecutionsByJob returns the most recent executions for a job.
func (s *ExecutionStore) ListExecutionsByJob(jobID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + executionColumns + `
		FROM job_executions
		WHERE job_id = ?
		ORDER BY started_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, jobID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list executions for job %s", jobID)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// DeleteExecutionsByJob removes execution history for a deleted job.
func (s *ExecutionStore) DeleteExecutionsByJob(jobID string) (int, error) {
	result, err := s.db.Exec(`DELETE FROM job_executions WHERE job_id = ?`, jobID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete executions for job %s", jobID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

func scanExecution(row scanner) (*Execution, error) {
	var exec Execution
	var startedAt, createdAt, updatedAt string
	var completedAt, errMsg, summary sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&exec.ID,
		&exec.JobID,
		&exec.Status,
		&startedAt,
		&completedAt,
		&durationMs,
		&errMsg,
		&summary,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if exec.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for execution %s", exec.ID)
	}
	if exec.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse completed_at for execution %s", exec.ID)
	}
	if exec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for execution %s", exec.ID)
	}
	if exec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for execution %s", exec.ID)
	}
	if durationMs.Valid {
		d := int(durationMs.Int64)
		exec.DurationMs = &d
	}
	if errMsg.Valid {
		exec.ErrorMessage = errMsg.String
	}
	if summary.Valid {
		exec.ResultSummary = summary.String
	}

	return &exec, nil
}
