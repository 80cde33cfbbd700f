package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/spindle/errors"
	spindletest "github.com/skeinworks/spindle/internal/testing"
	"github.com/skeinworks/spindle/internal/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(spindletest.CreateTestDB(t))
}

func makeJob(t *testing.T) *Job {
	t.Helper()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	next := now.Add(10 * time.Second)
	return &Job{
		ID:           uuid.NewString(),
		Name:         "news ingest",
		Description:  "fetches headlines",
		WorkKey:      "ingest.news-spider",
		Schedule:     Every(10 * time.Second),
		State:        StateWorking,
		MaxInstances: 1,
		Coalesce:     true,
		QueueDepth:   16,
		FailPolicy:   FailPolicyRetry,
		NextRunAt:    &next,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStoreCreateAndGetJob(t *testing.T) {
	store := newTestStore(t)
	job := makeJob(t)

	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Name, got.Name)
	assert.Equal(t, job.Description, got.Description)
	assert.Equal(t, job.WorkKey, got.WorkKey)
	assert.Equal(t, job.Schedule, got.Schedule)
	assert.Equal(t, StateWorking, got.State)
	assert.Equal(t, 1, got.MaxInstances)
	assert.True(t, got.Coalesce)
	assert.Equal(t, 16, got.QueueDepth)
	assert.Equal(t, FailPolicyRetry, got.FailPolicy)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(*job.NextRunAt))
	assert.Nil(t, got.LastRunAt)
	assert.Empty(t, got.LastExecutionID)
}

func TestStoreGetJobNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetJob("missing")
	require.ErrorIs(t, err, errors.ErrJobNotFound)
}

func TestStoreUpdateJobPartialPatch(t *testing.T) {
	store := newTestStore(t)
	job := makeJob(t)
	require.NoError(t, store.CreateJob(job))

	newSched := Every(time.Minute)
	err := store.UpdateJob(job.ID, JobPatch{
		Name:     util.Ptr("renamed"),
		Schedule: &newSched,
	})
	require.NoError(t, err)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, newSched, got.Schedule)
	// Untouched fields survive.
	assert.Equal(t, job.Description, got.Description)
	assert.Equal(t, job.WorkKey, got.WorkKey)
	assert.Equal(t, StateWorking, got.State)
}

func TestStoreUpdateJobEmptyPatchIsNoop(t *testing.T) {
	store := newTestStore(t)
	job := makeJob(t)
	require.NoError(t, store.CreateJob(job))

	require.NoError(t, store.UpdateJob(job.ID, JobPatch{}))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Name, got.Name)
}

func TestStoreUpdateJobNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateJob("missing", JobPatch{Name: util.Ptr("x")})
	require.ErrorIs(t, err, errors.ErrJobNotFound)
}

func TestStoreUpdateJobClearNextRun(t *testing.T) {
	store := newTestStore(t)
	job := makeJob(t)
	require.NoError(t, store.CreateJob(job))

	completed := StateCompleted
	err := store.UpdateJob(job.ID, JobPatch{State: &completed, ClearNextRun: true})
	require.NoError(t, err)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Nil(t, got.NextRunAt)
}

func TestStoreUpdateJobAfterFire(t *testing.T) {
	store := newTestStore(t)
	job := makeJob(t)
	require.NoError(t, store.CreateJob(job))

	fired := time.Date(2026, 1, 15, 12, 0, 10, 0, time.UTC)
	next := fired.Add(10 * time.Second)
	require.NoError(t, store.UpdateJobAfterFire(job.ID, fired, &next, nil))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(fired))
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(next))
	assert.Equal(t, StateWorking, got.State) // COALESCE keeps state when nil

	// Exhaustion: nil next fire, state flips to completed.
	completed := StateCompleted
	require.NoError(t, store.UpdateJobAfterFire(job.ID, next, nil, &completed))

	got, err = store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, StateCompleted, got.State)
}

func TestStoreUpdateJobAfterFireNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateJobAfterFire("missing", time.Now(), nil, nil)
	require.ErrorIs(t, err, errors.ErrJobNotFound)
}

func TestStoreDeleteJobIdempotent(t *testing.T) {
	store := newTestStore(t)
	job := makeJob(t)
	require.NoError(t, store.CreateJob(job))

	deleted, err := store.DeleteJob(job.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteJob(job.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStoreListJobs(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	states := []State{StateWorking, StatePaused, StateCompleted}
	var ids []string
	for i, st := range states {
		job := makeJob(t)
		job.Name = "job"
		job.State = st
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		job.UpdatedAt = job.CreatedAt
		require.NoError(t, store.CreateJob(job))
		ids = append(ids, job.ID)
	}

	t.Run("all jobs in creation order", func(t *testing.T) {
		jobs, err := store.ListJobs(nil, 0, 0)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, ids[0], jobs[0].ID)
		assert.Equal(t, ids[2], jobs[2].ID)
	})

	t.Run("filter by state", func(t *testing.T) {
		jobs, err := store.ListJobs([]State{StateWorking, StatePaused}, 0, 0)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
	})

	t.Run("limit and skip", func(t *testing.T) {
		jobs, err := store.ListJobs(nil, 1, 1)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, ids[1], jobs[0].ID)
	})
}
