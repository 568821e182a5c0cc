package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	testdb "github.com/teranos/breg-harvester/internal/testing"
)

func TestEmitterPersistsProgress(t *testing.T) {
	q := NewQueue(testdb.CreateTestDB(t))
	job := enqueueTestJob(t, q, "api")

	emitter := NewJobProgressEmitter(job, q, zap.NewNop().Sugar())
	emitter.EmitProgress(2, 5)
	emitter.EmitStage("validate", "validating 5 sources")
	emitter.EmitError("parse", errors.NewParseError(errors.New("bad token"), "parse source"))

	got, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, Progress{Current: 2, Total: 5}, got.Progress)
	assert.Equal(t, JobStatusQueued, got.Status, "errors do not change status")
}

func TestEmitterWithoutQueue(t *testing.T) {
	job, err := createTestJob("harvest.run", "cli")
	require.NoError(t, err)

	emitter := NewJobProgressEmitter(job, nil, zap.NewNop().Sugar())
	emitter.EmitProgress(1, 1)
	emitter.EmitStage("done", "")

	assert.Equal(t, 100.0, job.Progress.Percentage())
}
