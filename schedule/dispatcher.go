package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skeinworks/spindle/errors"
)

// SpecificationResolver looks up the parameter bundle a job references.
// Defined here so the scheduling core stays decoupled from the
// specification storage package.
type SpecificationResolver interface {
	// ResolveParams returns the bundle for the given specification id, or
	// ErrSpecificationNotFound when it does not exist.
	ResolveParams(ctx context.Context, specID string) (map[string]any, error)
}

// Dispatcher runs work functions for due jobs without blocking the
// scheduling loop. It enforces each job's max_instances bound; at
// capacity, a firing is skipped (coalesce=true) or deferred in a bounded
// per-job backlog (coalesce=false, up to queue_depth).
//
// Failures are isolated per invocation: an error or panic from a work
// function is recorded on its execution and, per the job's fail policy,
// either marks the job failed or leaves it working for the next fire. It
// never crashes the scheduler or other jobs' dispatch.
//
// Once an invocation has started it is fire-and-forget: delete prevents
// deferred firings from starting but does not cancel running work. There
// is no built-in work timeout; handlers own their internal timeouts.
type Dispatcher struct {
	registry *Registry
	specs    SpecificationResolver // may be nil when no jobs use specifications
	execs    *ExecutionStore
	store    *Store
	logger   *zap.SugaredLogger

	// onFailed is invoked after a job is marked failed, so the scheduler
	// can disarm its trigger immediately instead of at the next tick.
	onFailed func(jobID string)

	mu    sync.Mutex
	slots map[string]*jobSlots
	wg    sync.WaitGroup
}

// jobSlots tracks per-job occupancy: running invocations and the deferred
// backlog for coalesce=false jobs. forgotten marks a deleted job whose
// in-flight work is draining.
type jobSlots struct {
	running   int
	pending   int
	forgotten bool
}

// NewDispatcher creates a dispatcher. specs may be nil.
func NewDispatcher(store *Store, execs *ExecutionStore, registry *Registry, specs SpecificationResolver, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		specs:    specs,
		execs:    execs,
		store:    store,
		logger:   logger,
		slots:    make(map[string]*jobSlots),
	}
}

// Dispatch hands a due firing to the pool. Never blocks: at capacity the
// firing is skipped or deferred per the job's policy. The job value is a
// snapshot taken under the scheduler's per-job lock.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) {
	d.mu.Lock()
	st, ok := d.slots[job.ID]
	if !ok {
		st = &jobSlots{}
		d.slots[job.ID] = st
	}
	if st.forgotten {
		d.mu.Unlock()
		return
	}

	maxInstances := job.MaxInstances
	if maxInstances < 1 {
		maxInstances = 1
	}

	if st.running >= maxInstances {
		if job.Coalesce {
			d.mu.Unlock()
			d.logger.Infow("Firing skipped: concurrency limit reached",
				"job_id", job.ID,
				"work_key", job.WorkKey,
				"max_instances", maxInstances)
			d.recordSkip(job, "coalesced: concurrency limit reached")
			return
		}
		if st.pending >= job.QueueDepth {
			d.mu.Unlock()
			d.logger.Warnw("Firing dropped: deferred backlog full",
				"job_id", job.ID,
				"work_key", job.WorkKey,
				"queue_depth", job.QueueDepth)
			d.recordSkip(job, "dropped: deferred backlog full")
			return
		}
		st.pending++
		pending := st.pending
		d.mu.Unlock()
		d.logger.Debugw("Firing deferred until a slot frees",
			"job_id", job.ID,
			"pending", pending)
		return
	}

	st.running++
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(ctx, job)
}

// run executes one invocation and then drains the job's deferred backlog.
func (d *Dispatcher) run(ctx context.Context, job *Job) {
	defer d.wg.Done()

	for {
		d.invoke(ctx, job)

		d.mu.Lock()
		st := d.slots[job.ID]
		if st == nil {
			d.mu.Unlock()
			return
		}
		if st.pending > 0 && !st.forgotten {
			st.pending--
			d.mu.Unlock()
			continue
		}
		st.running--
		if st.running == 0 && st.pending == 0 {
			delete(d.slots, job.ID)
		}
		d.mu.Unlock()
		return
	}
}

// invoke runs the work function once, with an execution record bracketing it.
func (d *Dispatcher) invoke(ctx context.Context, job *Job) {
	start := time.Now()
	exec := &Execution{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    ExecutionStatusRunning,
		StartedAt: start,
		CreatedAt: start,
		UpdatedAt: start,
	}
	if err := d.execs.CreateExecution(exec); err != nil {
		// Execution history is best-effort; the work still runs.
		d.logger.Errorw("Failed to create execution record",
			"job_id", job.ID, "error", err)
	}
	if err := d.store.SetLastExecution(job.ID, exec.ID); err != nil {
		d.logger.Warnw("Failed to link execution to job",
			"job_id", job.ID, "execution_id", exec.ID, "error", err)
	}

	workErr := d.runWork(ctx, job)

	completed := time.Now()
	durationMs := int(completed.Sub(start).Milliseconds())
	exec.CompletedAt = &completed
	exec.DurationMs = &durationMs
	exec.UpdatedAt = completed

	if workErr != nil {
		exec.Status = ExecutionStatusFailed
		exec.ErrorMessage = workErr.Error()

		d.logger.Errorw("Job execution failed",
			"job_id", job.ID,
			"work_key", job.WorkKey,
			"execution_id", exec.ID,
			"duration_ms", durationMs,
			"fail_policy", job.FailPolicy,
			"error", workErr)

		if job.FailPolicy == FailPolicyMark {
			failed := StateFailed
			if err := d.store.UpdateJob(job.ID, JobPatch{State: &failed}); err != nil {
				d.logger.Errorw("Failed to mark job failed",
					"job_id", job.ID, "error", err)
			} else if d.onFailed != nil {
				d.onFailed(job.ID)
			}
		}
	} else {
		exec.Status = ExecutionStatusCompleted
		exec.ResultSummary = "ok"

		d.logger.Infow("Job execution completed",
			"job_id", job.ID,
			"work_key", job.WorkKey,
			"execution_id", exec.ID,
			"duration_ms", durationMs)
	}

	if err := d.execs.UpdateExecution(exec); err != nil {
		d.logger.Errorw("Failed to update execution record",
			"execution_id", exec.ID, "error", err)
	}
}

// runWork resolves the specification and work function and invokes the
// work, converting panics into errors so one job cannot take down the pool.
func (d *Dispatcher) runWork(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("work function panicked: %v", r)
		}
	}()

	var params map[string]any
	if job.SpecID != "" {
		if d.specs == nil {
			return errors.NewSpecificationNotFound(job.SpecID)
		}
		params, err = d.specs.ResolveParams(ctx, job.SpecID)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve specification for job %s", job.ID)
		}
	}

	fn, err := d.registry.Resolve(job.WorkKey)
	if err != nil {
		return err
	}

	return fn(ctx, job, params)
}

// recordSkip writes an execution record for a firing that never started.
func (d *Dispatcher) recordSkip(job *Job, summary string) {
	now := time.Now()
	zero := 0
	exec := &Execution{
		ID:            uuid.NewString(),
		JobID:         job.ID,
		Status:        ExecutionStatusSkipped,
		StartedAt:     now,
		CompletedAt:   &now,
		DurationMs:    &zero,
		ResultSummary: summary,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.execs.CreateExecution(exec); err != nil {
		d.logger.Warnw("Failed to record skipped firing",
			"job_id", job.ID, "error", err)
	}
}

// Forget drops the deferred backlog for a deleted job so no
// not-yet-started firing begins. Running invocations are not cancelled.
func (d *Dispatcher) Forget(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.slots[jobID]
	if !ok {
		return
	}
	st.pending = 0
	if st.running == 0 {
		delete(d.slots, jobID)
		return
	}
	st.forgotten = true
}

// RunningCount returns the number of in-flight invocations for a job.
func (d *Dispatcher) RunningCount(jobID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.slots[jobID]; ok {
		return st.running
	}
	return 0
}

// Stop waits for all in-flight invocations to finish.
func (d *Dispatcher) Stop() {
	d.wg.Wait()
}
