package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skeinworks/spindle/errors"
)

// Options configures a Scheduler.
type Options struct {
	// TickInterval is the resolution of the scheduling loop. Default 1s.
	TickInterval time.Duration
	// DefaultMaxInstances applies to jobs added without an explicit bound.
	DefaultMaxInstances int
	// DefaultQueueDepth bounds deferred firings for coalesce=false jobs.
	DefaultQueueDepth int
}

// triggerEntry is the in-memory trigger state for one job. The index holds
// every non-deleted job; suspended entries (paused, failed, completed) are
// tracked but never fire.
type triggerEntry struct {
	schedule  Schedule
	nextFire  *time.Time // nil when exhausted
	suspended bool
}

// Scheduler is the job scheduling core. The sqlite store is the single
// source of truth; the trigger index is derived state, rebuilt from the
// store on Start. Mutations update the index first, then the store, with a
// compensating index rollback when the store write fails, so both stay
// consistent. A divergence found on read is surfaced as a consistency
// fault, never silently reconciled.
//
// Each job has its own mutation lock; the "check due, recompute next fire,
// persist" section runs exclusively per job, so a concurrent pause or
// reschedule can never interleave with a firing decision for the same job.
type Scheduler struct {
	store      *Store
	registry   *Registry
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger

	interval            time.Duration
	defaultMaxInstances int
	defaultQueueDepth   int

	// now is the scheduling clock. Tests override it.
	now func() time.Time

	mu    sync.RWMutex
	index map[string]*triggerEntry
	locks map[string]*sync.Mutex

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler around an existing store, registry and
// dispatcher. The dispatcher's failure callback is wired here so a job
// marked failed is disarmed immediately.
func NewScheduler(store *Store, registry *Registry, dispatcher *Dispatcher, opts Options, logger *zap.SugaredLogger) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.DefaultMaxInstances <= 0 {
		opts.DefaultMaxInstances = 1
	}
	if opts.DefaultQueueDepth <= 0 {
		opts.DefaultQueueDepth = 16
	}

	s := &Scheduler{
		store:               store,
		registry:            registry,
		dispatcher:          dispatcher,
		logger:              logger,
		interval:            opts.TickInterval,
		defaultMaxInstances: opts.DefaultMaxInstances,
		defaultQueueDepth:   opts.DefaultQueueDepth,
		now:                 time.Now,
		index:               make(map[string]*triggerEntry),
		locks:               make(map[string]*sync.Mutex),
	}
	dispatcher.onFailed = s.disarm
	return s
}

// AddJob registers a new job, computes its first fire time, and persists
// it. Fails fast when the work key has no registered function or the
// schedule is invalid. Returns the job with its generated id and computed
// next_run_at filled in.
func (s *Scheduler) AddJob(job *Job) (*Job, error) {
	if !s.registry.Has(job.WorkKey) {
		return nil, errors.WithDetailf(
			errors.Wrapf(errors.ErrUnresolvableWork, "work key %q", job.WorkKey),
			"Work key: %s", job.WorkKey)
	}
	if err := job.Schedule.Validate(); err != nil {
		return nil, err
	}

	job.ID = uuid.NewString()
	if job.Name == "" {
		job.Name = job.WorkKey
	}
	if job.MaxInstances <= 0 {
		job.MaxInstances = s.defaultMaxInstances
	}
	if job.QueueDepth <= 0 {
		job.QueueDepth = s.defaultQueueDepth
	}
	if job.FailPolicy == "" {
		job.FailPolicy = FailPolicyRetry
	}
	if job.State == "" {
		job.State = StateWorking
	}
	if !IsValidState(job.State) {
		return nil, errors.Newf("invalid job state %q", job.State)
	}

	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	next, ok := job.Schedule.NextFire(now)
	if !ok {
		// Exhausted before the first fire (end bound in the past).
		return nil, errors.Wrapf(errors.ErrInvalidSchedule,
			"schedule for job %q produces no future fire times", job.Name)
	}
	entry := &triggerEntry{
		schedule:  job.Schedule,
		nextFire:  &next,
		suspended: !job.State.runnable(),
	}
	job.NextRunAt = &next

	s.mu.Lock()
	s.index[job.ID] = entry
	s.mu.Unlock()

	if err := s.store.CreateJob(job); err != nil {
		s.mu.Lock()
		delete(s.index, job.ID)
		s.mu.Unlock()
		return nil, errors.Wrapf(err, "failed to add job %q", job.Name)
	}

	s.logger.Infow("Job added",
		"job_id", job.ID,
		"name", job.Name,
		"work_key", job.WorkKey,
		"next_run_at", job.NextRunAt)
	return job, nil
}

// UpdateJob applies a typed partial update. A schedule change is validated
// and the next fire time recomputed before the new schedule is observable.
// A state change to paused suspends the trigger; working or resumed
// re-arms it with a freshly computed fire time.
func (s *Scheduler) UpdateJob(id string, patch JobPatch) error {
	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	if patch.Schedule != nil {
		if err := patch.Schedule.Validate(); err != nil {
			return err
		}
	}
	if patch.State != nil && !IsValidState(*patch.State) {
		return errors.Newf("invalid job state %q", *patch.State)
	}
	// next_run_at is derived state; callers cannot set it directly.
	patch.NextRunAt = nil
	patch.ClearNextRun = false

	s.mu.Lock()
	entry, ok := s.index[id]
	if !ok {
		// An unknown id must not leave its freshly minted lock behind.
		delete(s.locks, id)
		s.mu.Unlock()
		return errors.NewJobNotFound(id)
	}
	prev := *entry

	recompute := false
	if patch.Schedule != nil {
		entry.schedule = *patch.Schedule
		recompute = true
	}
	if patch.State != nil {
		wasSuspended := entry.suspended
		entry.suspended = !patch.State.runnable()
		if wasSuspended && !entry.suspended {
			// Re-arming after a pause recomputes rather than firing a
			// backlog of missed times.
			recompute = true
		}
	}
	if recompute {
		if next, ok := entry.schedule.NextFire(s.now()); ok {
			entry.nextFire = &next
			patch.NextRunAt = &next
		} else {
			entry.nextFire = nil
			entry.suspended = true
			patch.ClearNextRun = true
			completed := StateCompleted
			patch.State = &completed
		}
	}
	s.mu.Unlock()

	if err := s.store.UpdateJob(id, patch); err != nil {
		s.mu.Lock()
		if cur, ok := s.index[id]; ok {
			*cur = prev
		}
		s.mu.Unlock()
		return err
	}

	s.logger.Infow("Job updated", "job_id", id)
	return nil
}

// RescheduleJob replaces a job's schedule wholesale and recomputes its next
// fire time. The pause state is left unchanged: a paused job stays paused
// under its new schedule.
func (s *Scheduler) RescheduleJob(id string, sched Schedule) error {
	return s.UpdateJob(id, JobPatch{Schedule: &sched})
}

// ApplySpecification attaches a specification to a job (or detaches with an
// empty id). The specification must exist at attach time; at fire time the
// reference stays weak and is resolved again.
func (s *Scheduler) ApplySpecification(id string, specID string) error {
	if specID != "" {
		if s.dispatcher.specs == nil {
			return errors.NewSpecificationNotFound(specID)
		}
		if _, err := s.dispatcher.specs.ResolveParams(context.Background(), specID); err != nil {
			return err
		}
	}
	return s.UpdateJob(id, JobPatch{SpecID: &specID})
}

// PauseJob suspends a job's trigger without losing its definition.
func (s *Scheduler) PauseJob(id string) error {
	paused := StatePaused
	return s.UpdateJob(id, JobPatch{State: &paused})
}

// ResumeJob re-arms a paused job with a freshly computed fire time.
func (s *Scheduler) ResumeJob(id string) error {
	resumed := StateResumed
	return s.UpdateJob(id, JobPatch{State: &resumed})
}

// DeleteJob removes a job from the index and the store and drops its
// deferred firings. In-flight work is not cancelled. Returns
// ErrJobNotFound when the id is not tracked.
func (s *Scheduler) DeleteJob(id string) error {
	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	entry, ok := s.index[id]
	if !ok {
		delete(s.locks, id)
		s.mu.Unlock()
		return errors.NewJobNotFound(id)
	}
	delete(s.index, id)
	s.mu.Unlock()

	s.dispatcher.Forget(id)

	deleted, err := s.store.DeleteJob(id)
	if err != nil {
		s.mu.Lock()
		s.index[id] = entry
		s.mu.Unlock()
		return err
	}
	if !deleted {
		// Index had the job but the store did not.
		return errors.Wrapf(errors.ErrConsistencyFault, "job %s tracked but missing from store", id)
	}

	if _, err := s.dispatcher.execs.DeleteExecutionsByJob(id); err != nil {
		s.logger.Warnw("Failed to delete execution history", "job_id", id, "error", err)
	}

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()

	s.logger.Infow("Job deleted", "job_id", id)
	return nil
}

// DeleteJobs removes several jobs. Missing ids are skipped with a log;
// other failures are collected and the rest of the batch still runs.
func (s *Scheduler) DeleteJobs(ids []string) error {
	var combined error
	for _, id := range ids {
		err := s.DeleteJob(id)
		if err == nil {
			continue
		}
		if errors.Is(err, errors.ErrJobNotFound) {
			s.logger.Warnw("Skipping delete of unknown job", "job_id", id)
			continue
		}
		combined = errors.CombineErrors(combined, err)
	}
	return combined
}

// GetJob returns a job by id. Once the scheduler has started, the trigger
// index and the store must agree on the job's existence; a divergence is
// reported as a consistency fault.
func (s *Scheduler) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	started := s.started
	_, inIndex := s.index[id]
	s.mu.RUnlock()

	job, err := s.store.GetJob(id)
	if !started {
		return job, err
	}
	if err != nil {
		if errors.Is(err, errors.ErrJobNotFound) && inIndex {
			return nil, errors.Wrapf(errors.ErrConsistencyFault, "job %s tracked but missing from store", id)
		}
		return nil, err
	}
	if !inIndex {
		return nil, errors.Wrapf(errors.ErrConsistencyFault, "job %s in store but not tracked", id)
	}
	return job, nil
}

// GetRunningJobs returns the jobs whose triggers are currently armed,
// paginated by skip and limit (0 limit means no bound). Pagination applies
// after the index intersection, so it counts only jobs actually returned.
// Reads degrade: a store failure is logged and yields an empty result
// rather than an error.
func (s *Scheduler) GetRunningJobs(skip, limit int) []*Job {
	jobs, err := s.store.ListJobs([]State{StateWorking, StateResumed}, 0, 0)
	if err != nil {
		s.logger.Errorw("Failed to list running jobs", "error", err)
		return nil
	}

	s.mu.RLock()
	if s.started {
		armed := jobs[:0]
		for _, job := range jobs {
			if entry, ok := s.index[job.ID]; ok && !entry.suspended {
				armed = append(armed, job)
			}
		}
		jobs = armed
	}
	s.mu.RUnlock()

	if skip > 0 {
		if skip >= len(jobs) {
			return nil
		}
		jobs = jobs[skip:]
	}
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// ListJobs returns jobs from the store, optionally filtered by state.
// Degrading read, same as GetRunningJobs.
func (s *Scheduler) ListJobs(states []State, limit, skip int) []*Job {
	jobs, err := s.store.ListJobs(states, limit, skip)
	if err != nil {
		s.logger.Errorw("Failed to list jobs", "error", err)
		return nil
	}
	return jobs
}

// Start rebuilds the trigger index from the store and begins the
// scheduling loop. Idempotent: a second call on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	jobs, err := s.store.ListJobs(nil, 0, 0)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "failed to load jobs for scheduling")
	}

	now := s.now()
	s.index = make(map[string]*triggerEntry, len(jobs))
	for _, job := range jobs {
		entry := &triggerEntry{
			schedule:  job.Schedule,
			nextFire:  job.NextRunAt,
			suspended: !job.State.runnable(),
		}
		// A runnable job without a persisted fire time (crash between
		// mutations) gets one recomputed; a stale past time fires once at
		// the first tick, which catches up a missed firing.
		if !entry.suspended && entry.nextFire == nil {
			if next, ok := job.Schedule.NextFire(now); ok {
				entry.nextFire = &next
			} else {
				entry.suspended = true
			}
		}
		s.index[job.ID] = entry
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Infow("Scheduler started",
		"jobs", len(jobs),
		"tick_interval", s.interval)
	return nil
}

// Stop halts the scheduling loop and waits for in-flight work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.dispatcher.Stop()
	s.logger.Infow("Scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick collects due armed jobs and fires each under its own lock.
func (s *Scheduler) tick() {
	now := s.now()

	s.mu.RLock()
	var due []string
	for id, entry := range s.index {
		if !entry.suspended && entry.nextFire != nil && !entry.nextFire.After(now) {
			due = append(due, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range due {
		s.fire(id, now)
	}
}

// fire runs the exclusive per-job section: re-check due, recompute the next
// fire time, persist both, then hand the firing to the dispatcher.
func (s *Scheduler) fire(id string, now time.Time) {
	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	entry, ok := s.index[id]
	if !ok || entry.suspended || entry.nextFire == nil || entry.nextFire.After(now) {
		// Deleted, paused or rescheduled between collection and firing.
		s.mu.Unlock()
		return
	}
	prev := *entry

	var nextPtr *time.Time
	var stateChange *State
	if next, hasNext := entry.schedule.NextFire(now); hasNext {
		entry.nextFire = &next
		nextPtr = &next
	} else {
		entry.nextFire = nil
		entry.suspended = true
		completed := StateCompleted
		stateChange = &completed
	}
	s.mu.Unlock()

	if err := s.store.UpdateJobAfterFire(id, now, nextPtr, stateChange); err != nil {
		// Without a durable record of the fire decision the firing is
		// withheld; the trigger rolls back and retries at the next tick.
		s.logger.Errorw("Failed to persist fire decision, firing withheld",
			"job_id", id, "error", err)
		s.mu.Lock()
		if cur, ok := s.index[id]; ok {
			*cur = prev
		}
		s.mu.Unlock()
		return
	}
	if stateChange != nil {
		s.logger.Infow("Job schedule exhausted", "job_id", id)
	}

	job, err := s.store.GetJob(id)
	if err != nil {
		s.logger.Errorw("Failed to load job for dispatch", "job_id", id, "error", err)
		return
	}
	s.dispatcher.Dispatch(s.ctx, job)
}

// disarm suspends a job's trigger after its fail policy marked it failed.
func (s *Scheduler) disarm(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.index[jobID]; ok {
		entry.suspended = true
		entry.nextFire = nil
	}
}

// jobLock returns the mutation lock for a job, creating it on first use.
func (s *Scheduler) jobLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}
