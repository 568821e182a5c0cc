package async

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/breg-harvester/errors"
	testdb "github.com/teranos/breg-harvester/internal/testing"
)

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	job, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)
	job.UpdateProgress(0, 3)
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "harvest.run", got.HandlerName)
	assert.Equal(t, "api", got.Source)
	assert.Equal(t, job.Description, got.Description)
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Equal(t, 3, got.Progress.Total)
	assert.JSONEq(t, string(job.Payload), string(got.Payload))
	assert.Nil(t, got.Result)
	assert.Nil(t, got.StartedAt)
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestStoreGetMissingJob(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	_, err := store.GetJob("01HXMISSING")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreUpdateJob(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	job, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(job))

	job.Start()
	require.NoError(t, job.SetResult(map[string]interface{}{"num_triples": 7}))
	job.Complete()
	require.NoError(t, store.UpdateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"num_triples":7}`, string(got.Result))
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	missing, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)
	assert.True(t, errors.IsNotFoundError(store.UpdateJob(missing)))
}

func TestStoreNextQueuedIsFIFO(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	next, err := store.NextQueued()
	require.NoError(t, err)
	assert.Nil(t, next, "empty queue")

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := createTestJob("harvest.run", "api")
		require.NoError(t, err)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateJob(job))
		ids = append(ids, job.ID)
	}

	next, err = store.NextQueued()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, ids[0], next.ID)
}

func TestStoreListJobs(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	base := time.Now().Add(-time.Hour)
	statuses := []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed}
	for i, status := range statuses {
		job, err := createTestJob("harvest.run", "api")
		require.NoError(t, err)
		job.Status = status
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateJob(job))
	}

	all, err := store.ListJobs(nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, JobStatusFailed, all[0].Status, "newest first")

	completed := JobStatusCompleted
	done, err := store.ListJobs(&completed, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)

	limited, err := store.ListJobs(nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	active, err := store.ListActiveJobs(10)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestStoreCountByStatus(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	for _, status := range []JobStatus{JobStatusQueued, JobStatusQueued, JobStatusFailed} {
		job, err := createTestJob("harvest.run", "api")
		require.NoError(t, err)
		job.Status = status
		require.NoError(t, store.CreateJob(job))
	}

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, map[JobStatus]int{JobStatusQueued: 2, JobStatusFailed: 1}, counts)
}

func TestStoreCleanupOldJobs(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	old := time.Now().Add(-48 * time.Hour)
	mk := func(status JobStatus, updated time.Time) string {
		job, err := createTestJob("harvest.run", "api")
		require.NoError(t, err)
		job.Status = status
		job.UpdatedAt = updated
		require.NoError(t, store.CreateJob(job))
		return job.ID
	}

	oldDone := mk(JobStatusCompleted, old)
	oldFailed := mk(JobStatusFailed, old)
	oldQueued := mk(JobStatusQueued, old)
	recentDone := mk(JobStatusCompleted, time.Now())

	removed, err := store.CleanupOldJobs(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, id := range []string{oldDone, oldFailed} {
		_, err := store.GetJob(id)
		assert.True(t, errors.IsNotFoundError(err), id)
	}
	for _, id := range []string{oldQueued, recentDone} {
		_, err := store.GetJob(id)
		assert.NoError(t, err, id)
	}
}

func TestStoreDeleteJob(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	job, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(job))

	require.NoError(t, store.DeleteJob(job.ID))
	assert.True(t, errors.IsNotFoundError(store.DeleteJob(job.ID)))
}

func TestStoreFindActiveJobBySourceAndHandler(t *testing.T) {
	store := NewStore(testdb.CreateTestDB(t))

	found, err := store.FindActiveJobBySourceAndHandler("scheduler", "harvest.run")
	require.NoError(t, err)
	assert.Nil(t, found)

	done, err := createTestJob("harvest.run", "scheduler")
	require.NoError(t, err)
	done.Status = JobStatusCompleted
	require.NoError(t, store.CreateJob(done))

	found, err = store.FindActiveJobBySourceAndHandler("scheduler", "harvest.run")
	require.NoError(t, err)
	assert.Nil(t, found, "finished jobs are not active")

	running, err := createTestJob("harvest.run", "scheduler")
	require.NoError(t, err)
	running.Status = JobStatusRunning
	require.NoError(t, store.CreateJob(running))

	found, err = store.FindActiveJobBySourceAndHandler("scheduler", "harvest.run")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, running.ID, found.ID)

	found, err = store.FindActiveJobBySourceAndHandler("api", "harvest.run")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStoreDatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	broken := errors.New("disk I/O error")

	job, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO async_jobs").WillReturnError(broken)
	err = store.CreateJob(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, broken))

	mock.ExpectQuery("SELECT .* FROM async_jobs WHERE id").WillReturnError(broken)
	_, err = store.GetJob(job.ID)
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))

	mock.ExpectQuery("SELECT status, COUNT").WillReturnError(broken)
	_, err = store.CountByStatus()
	assert.Error(t, err)

	mock.ExpectExec("DELETE FROM async_jobs").WillReturnError(broken)
	_, err = store.CleanupOldJobs(time.Hour)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
