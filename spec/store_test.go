package spec

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/spindle/errors"
	spindletest "github.com/skeinworks/spindle/internal/testing"
	"github.com/skeinworks/spindle/schedule"
)

func TestSpecificationCreateAndGet(t *testing.T) {
	store := NewStore(spindletest.CreateTestDB(t))

	spec := &Specification{
		Name: "news sources",
		Params: map[string]any{
			"urls":  []any{"https://example.com/news"},
			"depth": float64(2),
		},
	}
	require.NoError(t, store.Create(spec))
	require.NotEmpty(t, spec.ID)

	got, err := store.Get(spec.ID)
	require.NoError(t, err)
	assert.Equal(t, "news sources", got.Name)
	assert.Equal(t, spec.Params, got.Params)
}

func TestSpecificationGetNotFound(t *testing.T) {
	store := NewStore(spindletest.CreateTestDB(t))

	_, err := store.Get("missing")
	require.ErrorIs(t, err, errors.ErrSpecificationNotFound)
}

func TestSpecificationUpdate(t *testing.T) {
	store := NewStore(spindletest.CreateTestDB(t))

	spec := &Specification{Name: "old", Params: map[string]any{"a": float64(1)}}
	require.NoError(t, store.Create(spec))

	require.NoError(t, store.Update(spec.ID, "new", map[string]any{"b": float64(2)}))

	got, err := store.Get(spec.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)
	assert.Equal(t, map[string]any{"b": float64(2)}, got.Params)

	err = store.Update("missing", "x", nil)
	require.ErrorIs(t, err, errors.ErrSpecificationNotFound)
}

func TestSpecificationDelete(t *testing.T) {
	store := NewStore(spindletest.CreateTestDB(t))

	spec := &Specification{Name: "sources"}
	require.NoError(t, store.Create(spec))

	require.NoError(t, store.Delete(spec.ID))

	_, err := store.Get(spec.ID)
	require.ErrorIs(t, err, errors.ErrSpecificationNotFound)

	err = store.Delete(spec.ID)
	require.ErrorIs(t, err, errors.ErrSpecificationNotFound)
}

func TestSpecificationDeleteRejectedWhileReferenced(t *testing.T) {
	conn := spindletest.CreateTestDB(t)
	store := NewStore(conn)
	jobs := schedule.NewStore(conn)

	spec := &Specification{Name: "sources"}
	require.NoError(t, store.Create(spec))

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	job := &schedule.Job{
		ID:           uuid.NewString(),
		Name:         "news ingest",
		WorkKey:      "ingest.news-spider",
		SpecID:       spec.ID,
		Schedule:     schedule.Every(time.Minute),
		State:        schedule.StateWorking,
		MaxInstances: 1,
		QueueDepth:   16,
		FailPolicy:   schedule.FailPolicyRetry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, jobs.CreateJob(job))

	err := store.Delete(spec.ID)
	require.ErrorIs(t, err, errors.ErrConflict)

	// Detaching the job unblocks the delete.
	empty := ""
	require.NoError(t, jobs.UpdateJob(job.ID, schedule.JobPatch{SpecID: &empty}))
	require.NoError(t, store.Delete(spec.ID))
}

func TestSpecificationList(t *testing.T) {
	store := NewStore(spindletest.CreateTestDB(t))

	require.NoError(t, store.Create(&Specification{Name: "a"}))
	require.NoError(t, store.Create(&Specification{Name: "b"}))

	specs, err := store.List()
	require.NoError(t, err)
	require.Len(t, specs, 2)
}

func TestResolverResolveParams(t *testing.T) {
	store := NewStore(spindletest.CreateTestDB(t))
	resolver := NewResolver(store)

	spec := &Specification{Name: "sources", Params: map[string]any{"urls": []any{"https://example.com"}}}
	require.NoError(t, store.Create(spec))

	params, err := resolver.ResolveParams(context.Background(), spec.ID)
	require.NoError(t, err)
	assert.Equal(t, spec.Params, params)

	_, err = resolver.ResolveParams(context.Background(), "missing")
	require.ErrorIs(t, err, errors.ErrSpecificationNotFound)
}
