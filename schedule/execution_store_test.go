package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spindletest "github.com/skeinworks/spindle/internal/testing"
)

func makeExecution(jobID string, startedAt time.Time) *Execution {
	return &Execution{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Status:    ExecutionStatusRunning,
		StartedAt: startedAt,
		CreatedAt: startedAt,
		UpdatedAt: startedAt,
	}
}

func TestExecutionStoreLifecycle(t *testing.T) {
	execs := NewExecutionStore(spindletest.CreateTestDB(t))

	started := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	exec := makeExecution("job-1", started)
	require.NoError(t, execs.CreateExecution(exec))

	got, err := execs.GetExecution(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusRunning, got.Status)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.DurationMs)

	completed := started.Add(3 * time.Second)
	duration := 3000
	exec.Status = ExecutionStatusFailed
	exec.CompletedAt = &completed
	exec.DurationMs = &duration
	exec.ErrorMessage = "connection refused"
	require.NoError(t, execs.UpdateExecution(exec))

	got, err = execs.GetExecution(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, 3000, *got.DurationMs)
	assert.Equal(t, "connection refused", got.ErrorMessage)
}

func TestExecutionStoreUpdateUnknownExecution(t *testing.T) {
	execs := NewExecutionStore(spindletest.CreateTestDB(t))

	exec := makeExecution("job-1", time.Now().UTC())
	err := execs.UpdateExecution(exec)
	require.Error(t, err)
}

func TestExecutionStoreListByJob(t *testing.T) {
	execs := NewExecutionStore(spindletest.CreateTestDB(t))

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		exec := makeExecution("job-1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, execs.CreateExecution(exec))
	}
	require.NoError(t, execs.CreateExecution(makeExecution("job-2", base)))

	list, err := execs.ListExecutionsByJob("job-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	// Most recent first.
	assert.True(t, list[0].StartedAt.After(list[1].StartedAt))

	list, err = execs.ListExecutionsByJob("job-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestExecutionStoreDeleteByJob(t *testing.T) {
	execs := NewExecutionStore(spindletest.CreateTestDB(t))

	base := time.Now().UTC()
	require.NoError(t, execs.CreateExecution(makeExecution("job-1", base)))
	require.NoError(t, execs.CreateExecution(makeExecution("job-1", base)))
	require.NoError(t, execs.CreateExecution(makeExecution("job-2", base)))

	n, err := execs.DeleteExecutionsByJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := execs.ListExecutionsByJob("job-1", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
