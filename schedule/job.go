// Package schedule provides the spindle job scheduling core: a durable job
// store as the single source of truth, a derived in-memory trigger index,
// and a dispatcher that runs registered work functions with bounded
// per-job concurrency.
package schedule

import "time"

// State is the lifecycle state of a scheduled job.
type State string

const (
	// StateWorking means the job is armed and firing on schedule.
	StateWorking State = "working"
	// StatePaused means the trigger is suspended; no dispatches occur.
	StatePaused State = "paused"
	// StateResumed means the job was re-armed after a pause. Equivalent to
	// working for dispatch purposes; kept distinct for audit.
	StateResumed State = "resumed"
	// StateFailed means a work function failed and the job's fail policy
	// marked it terminal.
	StateFailed State = "failed"
	// StateCompleted means the schedule is exhausted (no further fire times).
	StateCompleted State = "completed"
)

// IsValidState returns true if s is a known job state.
func IsValidState(s State) bool {
	switch s {
	case StateWorking, StatePaused, StateResumed, StateFailed, StateCompleted:
		return true
	default:
		return false
	}
}

// runnable reports whether a job in this state should be armed for firing.
func (s State) runnable() bool {
	return s == StateWorking || s == StateResumed
}

// FailPolicy controls what happens to a job whose work function fails.
type FailPolicy string

const (
	// FailPolicyMark marks the job failed and stops further dispatch.
	FailPolicyMark FailPolicy = "mark-failed"
	// FailPolicyRetry leaves the job working; it retries on its next fire.
	FailPolicyRetry FailPolicy = "retry-next-fire"
)

// Job is a durable scheduled job definition.
//
// NextRunAt always reflects the trigger engine's computed value for
// Schedule; every schedule mutation recomputes and persists it under the
// job's lock before the job becomes observable again.
type Job struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// WorkKey is the stable registry key of the work function. Only the
	// key is persisted, never a closure; it must resolve at registration
	// time and across process restarts.
	WorkKey string `json:"work_key"`

	// SpecID optionally references a specification by id (weak reference).
	SpecID string `json:"spec_id,omitempty"`

	Schedule Schedule `json:"schedule"`
	State    State    `json:"state"`

	// Dispatch policy
	MaxInstances int        `json:"max_instances"`
	Coalesce     bool       `json:"coalesce"`
	QueueDepth   int        `json:"queue_depth"`
	FailPolicy   FailPolicy `json:"fail_policy"`

	NextRunAt       *time.Time `json:"next_run_at,omitempty"` // nil once exhausted
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastExecutionID string     `json:"last_execution_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobPatch is an explicit typed partial update: only non-nil fields change.
// No reflection-driven merging; the store builds its UPDATE from exactly
// these fields.
type JobPatch struct {
	Name         *string
	Description  *string
	SpecID       *string
	Schedule     *Schedule
	State        *State
	MaxInstances *int
	Coalesce     *bool
	QueueDepth   *int
	FailPolicy   *FailPolicy

	// NextRunAt is managed by the scheduler: it accompanies schedule and
	// state changes so the recomputed fire time persists atomically with
	// them. ClearNextRun sets the column NULL (schedule exhausted).
	NextRunAt    *time.Time
	ClearNextRun bool
}

// IsZero returns true when the patch changes nothing.
func (p JobPatch) IsZero() bool {
	return p.Name == nil && p.Description == nil && p.SpecID == nil &&
		p.Schedule == nil && p.State == nil && p.MaxInstances == nil &&
		p.Coalesce == nil && p.QueueDepth == nil && p.FailPolicy == nil &&
		p.NextRunAt == nil && !p.ClearNextRun
}
