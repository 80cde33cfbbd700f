package schedule

import "time"

// Execution records a single firing of a scheduled job: timing, outcome,
// and the error when the work function failed. Skipped firings (coalesced
// at the concurrency limit) are recorded too, so the execution history
// explains gaps in last_run_at.
type Execution struct {
	ID     string `json:"id"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int       `json:"duration_ms,omitempty"`

	ErrorMessage  string `json:"error_message,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution status constants.
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
	ExecutionStatusSkipped   = "skipped"
)
