package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/breg-harvester/errors"
)

func newTestScheduledJob(id string, interval int, next time.Time) *Job {
	return &Job{
		ID:              id,
		Name:            "scheduled harvest",
		HandlerName:     "harvest.run",
		Payload:         []byte(`{"strict":false}`),
		IntervalSeconds: interval,
		NextRunAt:       next,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore(createTestDB(t))

	next := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, store.CreateJob(newTestScheduledJob("sched-1", 3600, next)))

	got, err := store.GetJob("sched-1")
	require.NoError(t, err)
	assert.Equal(t, "scheduled harvest", got.Name)
	assert.Equal(t, "harvest.run", got.HandlerName)
	assert.Equal(t, 3600, got.IntervalSeconds)
	assert.Equal(t, StateActive, got.State)
	assert.True(t, next.Equal(got.NextRunAt))
	assert.JSONEq(t, `{"strict":false}`, string(got.Payload))
	assert.Nil(t, got.LastRunAt)

	_, err = store.GetJob("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreRejectsInvalidInterval(t *testing.T) {
	store := NewStore(createTestDB(t))

	err := store.CreateJob(newTestScheduledJob("sched-1", 0, time.Now()))
	assert.True(t, errors.IsInvalidRequestError(err))

	require.NoError(t, store.CreateJob(newTestScheduledJob("sched-2", 60, time.Now())))
	assert.True(t, errors.IsInvalidRequestError(store.UpdateJobInterval("sched-2", -5)))
	assert.True(t, errors.IsInvalidRequestError(store.UpdateJobState("sched-2", "deleted")))
}

func TestStoreEnsureJob(t *testing.T) {
	store := NewStore(createTestDB(t))

	job, created, err := store.EnsureJob(newTestScheduledJob("sched-1", 60, time.Now()))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 60, job.IntervalSeconds)

	job, created, err = store.EnsureJob(newTestScheduledJob("sched-1", 120, time.Now()))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 60, job.IntervalSeconds, "existing job is kept")
}

func TestStoreReplaceJob(t *testing.T) {
	db := createTestDB(t)
	store := NewStore(db)

	require.NoError(t, store.CreateJob(newTestScheduledJob("sched-1", 60, time.Now())))
	exec := NewExecution("sched-1", time.Now())
	require.NoError(t, NewExecutionStore(db).CreateExecution(exec))

	require.NoError(t, store.ReplaceJob(newTestScheduledJob("sched-1", 7200, time.Now().Add(2*time.Hour))))

	got, err := store.GetJob("sched-1")
	require.NoError(t, err)
	assert.Equal(t, 7200, got.IntervalSeconds)

	_, total, err := NewExecutionStore(db).ListExecutions("sched-1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "history of the replaced job is dropped")

	require.NoError(t, store.ReplaceJob(newTestScheduledJob("sched-new", 60, time.Now())), "replace also creates")
}

func TestStoreListJobsDue(t *testing.T) {
	store := NewStore(createTestDB(t))
	now := time.Now()

	require.NoError(t, store.CreateJob(newTestScheduledJob("due-late", 60, now.Add(-time.Hour))))
	require.NoError(t, store.CreateJob(newTestScheduledJob("due-early", 60, now.Add(-2*time.Hour))))
	require.NoError(t, store.CreateJob(newTestScheduledJob("future", 60, now.Add(time.Hour))))
	require.NoError(t, store.CreateJob(newTestScheduledJob("paused", 60, now.Add(-time.Hour))))
	require.NoError(t, store.UpdateJobState("paused", StatePaused))

	due, err := store.ListJobsDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "due-early", due[0].ID)
	assert.Equal(t, "due-late", due[1].ID)

	next, err := store.GetNextScheduledJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "due-early", next.ID)

	all, err := store.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStoreGetNextScheduledJobEmpty(t *testing.T) {
	store := NewStore(createTestDB(t))

	next, err := store.GetNextScheduledJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestStoreUpdateJobAfterExecution(t *testing.T) {
	store := NewStore(createTestDB(t))

	now := time.Now().Truncate(time.Second)
	require.NoError(t, store.CreateJob(newTestScheduledJob("sched-1", 60, now)))

	next := now.Add(time.Minute)
	require.NoError(t, store.UpdateJobAfterExecution("sched-1", now, "exec-1", next))

	got, err := store.GetJob("sched-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, now.Equal(*got.LastRunAt))
	assert.True(t, next.Equal(got.NextRunAt))
	assert.Equal(t, "exec-1", got.LastExecutionID)

	assert.True(t, errors.IsNotFoundError(store.UpdateJobAfterExecution("missing", now, "exec-2", next)))
}

func TestStoreDeleteJob(t *testing.T) {
	store := NewStore(createTestDB(t))

	require.NoError(t, store.CreateJob(newTestScheduledJob("sched-1", 60, time.Now())))
	require.NoError(t, store.DeleteJob("sched-1"))
	assert.True(t, errors.IsNotFoundError(store.DeleteJob("sched-1")))
}
