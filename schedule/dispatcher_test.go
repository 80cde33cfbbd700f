package schedule

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spindletest "github.com/skeinworks/spindle/internal/testing"
	"github.com/skeinworks/spindle/logger"
)

type dispatcherFixture struct {
	store    *Store
	execs    *ExecutionStore
	registry *Registry
	disp     *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	conn := spindletest.CreateTestDB(t)
	f := &dispatcherFixture{
		store:    NewStore(conn),
		execs:    NewExecutionStore(conn),
		registry: NewRegistry(),
	}
	f.disp = NewDispatcher(f.store, f.execs, f.registry, nil, logger.Nop())
	return f
}

func (f *dispatcherFixture) addJob(t *testing.T, job *Job) *Job {
	t.Helper()
	require.NoError(t, f.store.CreateJob(job))
	return job
}

func TestDispatcherRunsWork(t *testing.T) {
	f := newDispatcherFixture(t)

	var calls atomic.Int32
	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		calls.Add(1)
		return nil
	})

	job := f.addJob(t, makeJob(t))
	f.disp.Dispatch(context.Background(), job)
	f.disp.Stop()

	assert.Equal(t, int32(1), calls.Load())

	execs, err := f.execs.ListExecutionsByJob(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusCompleted, execs[0].Status)
	require.NotNil(t, execs[0].CompletedAt)

	got, err := f.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, execs[0].ID, got.LastExecutionID)
}

func TestDispatcherFailPolicyMark(t *testing.T) {
	f := newDispatcherFixture(t)

	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		return assert.AnError
	})

	var disarmed atomic.Value
	f.disp.onFailed = func(jobID string) { disarmed.Store(jobID) }

	job := makeJob(t)
	job.FailPolicy = FailPolicyMark
	f.addJob(t, job)

	f.disp.Dispatch(context.Background(), job)
	f.disp.Stop()

	got, err := f.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, job.ID, disarmed.Load())

	execs, err := f.execs.ListExecutionsByJob(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusFailed, execs[0].Status)
	assert.Contains(t, execs[0].ErrorMessage, assert.AnError.Error())
}

func TestDispatcherFailPolicyRetryLeavesJobWorking(t *testing.T) {
	f := newDispatcherFixture(t)

	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		return assert.AnError
	})

	job := makeJob(t)
	job.FailPolicy = FailPolicyRetry
	f.addJob(t, job)

	f.disp.Dispatch(context.Background(), job)
	f.disp.Stop()

	got, err := f.store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWorking, got.State)
}

func TestDispatcherRecoversPanic(t *testing.T) {
	f := newDispatcherFixture(t)

	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		panic("selector blew up")
	})

	job := f.addJob(t, makeJob(t))
	f.disp.Dispatch(context.Background(), job)
	f.disp.Stop()

	execs, err := f.execs.ListExecutionsByJob(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusFailed, execs[0].Status)
	assert.Contains(t, execs[0].ErrorMessage, "panicked")
}

func TestDispatcherCoalesceSkipsAtCapacity(t *testing.T) {
	f := newDispatcherFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		entered <- struct{}{}
		<-release
		return nil
	})

	job := makeJob(t)
	job.MaxInstances = 1
	job.Coalesce = true
	f.addJob(t, job)

	f.disp.Dispatch(context.Background(), job)
	<-entered
	require.Equal(t, 1, f.disp.RunningCount(job.ID))

	// Second firing while the first still runs is skipped, not queued.
	f.disp.Dispatch(context.Background(), job)
	assert.Equal(t, 1, f.disp.RunningCount(job.ID))

	close(release)
	f.disp.Stop()

	execs, err := f.execs.ListExecutionsByJob(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 2)

	statuses := []string{execs[0].Status, execs[1].Status}
	assert.Contains(t, statuses, ExecutionStatusCompleted)
	assert.Contains(t, statuses, ExecutionStatusSkipped)
}

func TestDispatcherBoundedBacklog(t *testing.T) {
	f := newDispatcherFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	})

	job := makeJob(t)
	job.MaxInstances = 1
	job.Coalesce = false
	job.QueueDepth = 1
	f.addJob(t, job)

	f.disp.Dispatch(context.Background(), job)
	<-entered

	// One deferred firing fits the backlog; the next is dropped.
	f.disp.Dispatch(context.Background(), job)
	f.disp.Dispatch(context.Background(), job)

	close(release)
	<-entered // deferred firing starts after the first completes
	f.disp.Stop()

	assert.Equal(t, int32(2), calls.Load())

	execs, err := f.execs.ListExecutionsByJob(job.ID, 0)
	require.NoError(t, err)

	var skipped int
	for _, exec := range execs {
		if exec.Status == ExecutionStatusSkipped {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
}

func TestDispatcherForgetDropsBacklog(t *testing.T) {
	f := newDispatcherFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	})

	job := makeJob(t)
	job.MaxInstances = 1
	job.Coalesce = false
	job.QueueDepth = 4
	f.addJob(t, job)

	f.disp.Dispatch(context.Background(), job)
	<-entered
	f.disp.Dispatch(context.Background(), job) // deferred

	f.disp.Forget(job.ID)
	close(release)
	f.disp.Stop()

	// The deferred firing never started.
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, f.disp.RunningCount(job.ID))
}

func TestDispatcherResolvesSpecificationParams(t *testing.T) {
	f := newDispatcherFixture(t)
	f.disp.specs = specResolverFunc(func(ctx context.Context, specID string) (map[string]any, error) {
		require.Equal(t, "spec-1", specID)
		return map[string]any{"urls": []string{"https://example.com"}}, nil
	})

	var got atomic.Value
	f.registry.Register("ingest.news-spider", func(ctx context.Context, job *Job, params map[string]any) error {
		got.Store(params["urls"])
		return nil
	})

	job := makeJob(t)
	job.SpecID = "spec-1"
	f.addJob(t, job)

	f.disp.Dispatch(context.Background(), job)
	f.disp.Stop()

	assert.Equal(t, []string{"https://example.com"}, got.Load())
}

// specResolverFunc adapts a function to the SpecificationResolver interface.
type specResolverFunc func(ctx context.Context, specID string) (map[string]any, error)

func (f specResolverFunc) ResolveParams(ctx context.Context, specID string) (map[string]any, error) {
	return f(ctx, specID)
}

func TestDispatcherUnresolvableWorkFailsExecution(t *testing.T) {
	f := newDispatcherFixture(t)

	job := f.addJob(t, makeJob(t)) // work key never registered

	f.disp.Dispatch(context.Background(), job)
	f.disp.Stop()

	execs, err := f.execs.ListExecutionsByJob(job.ID, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionStatusFailed, execs[0].Status)
	assert.Contains(t, execs[0].ErrorMessage, "unresolvable work function")
}
