package async

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/breg-harvester/errors"
)

func TestNewJobWithPayload(t *testing.T) {
	payload := json.RawMessage(`{"strict":true}`)
	job, err := NewJobWithPayload("harvest.run", "api", "harvest 2 sources", payload)
	require.NoError(t, err)

	assert.Len(t, job.ID, 26, "ULID string")
	assert.Equal(t, "harvest.run", job.HandlerName)
	assert.Equal(t, "api", job.Source)
	assert.Equal(t, "harvest 2 sources", job.Description)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.JSONEq(t, `{"strict":true}`, string(job.Payload))
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.StartedAt)

	other, err := NewJobWithPayload("harvest.run", "api", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, other.ID)
	assert.Less(t, job.ID, other.ID, "IDs sort by creation")
}

func TestNewJobRequiresHandler(t *testing.T) {
	_, err := NewJobWithPayload("", "api", "", nil)
	assert.Error(t, err)
}

func TestJobLifecycle(t *testing.T) {
	job, err := createTestJob("harvest.run", "scheduler")
	require.NoError(t, err)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.UpdateProgress(1, 4)
	assert.Equal(t, 25.0, job.Progress.Percentage())

	require.NoError(t, job.SetResult(map[string]int{"num_triples": 12}))
	job.Complete()
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.JSONEq(t, `{"num_triples":12}`, string(job.Result))
	assert.True(t, job.Status.IsFinal())
}

func TestJobFailAndCancel(t *testing.T) {
	job, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)

	job.Start()
	job.Fail(errors.New("store rejected update"))
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "store rejected update", job.Error)
	assert.NotNil(t, job.CompletedAt)

	other, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)
	other.Cancel("superseded")
	assert.Equal(t, JobStatusCancelled, other.Status)
	assert.Equal(t, "superseded", other.Error)
}

func TestJobRequeue(t *testing.T) {
	job, err := createTestJob("harvest.run", "api")
	require.NoError(t, err)

	job.Start()
	job.UpdateProgress(2, 3)
	job.Error = "interrupted"
	job.Requeue()

	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Empty(t, job.Error)
	assert.Equal(t, 2, job.Progress.Current, "progress survives requeue")
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"queued", "running", "completed", "failed", "cancelled"} {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("paused"))
	assert.False(t, IsValidStatus(""))

	assert.False(t, JobStatusQueued.IsFinal())
	assert.False(t, JobStatusRunning.IsFinal())
}

func TestProgressPercentageWithoutTotal(t *testing.T) {
	assert.Zero(t, Progress{Current: 3}.Percentage())
}
