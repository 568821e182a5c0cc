package async

import (
	"time"

	"go.uber.org/zap"
)

// JobProgressEmitter lets a handler publish progress of the job it runs.
// Every emission persists the job, which also notifies queue subscribers.
type JobProgressEmitter struct {
	job   *Job
	queue *Queue
	log   *zap.SugaredLogger
}

// NewJobProgressEmitter creates a new progress emitter for an async job.
func NewJobProgressEmitter(job *Job, queue *Queue, baseLogger *zap.SugaredLogger) *JobProgressEmitter {
	return &JobProgressEmitter{
		job:   job,
		queue: queue,
		log:   baseLogger.With("job_id", job.ID),
	}
}

// EmitStage logs a stage transition and touches the job so stream
// subscribers see activity between progress updates.
func (e *JobProgressEmitter) EmitStage(stage, message string) {
	e.log.Debugw("Job stage", "stage", stage, "message", message)
	e.job.UpdatedAt = time.Now()
	if e.queue == nil {
		return
	}
	if err := e.queue.UpdateJob(e.job); err != nil {
		e.log.Warnw("Failed to update job for stage",
			"stage", stage,
			"error", err,
		)
	}
}

// EmitProgress sets job progress to current of total.
func (e *JobProgressEmitter) EmitProgress(current, total int) {
	e.job.UpdateProgress(current, total)
	if e.queue == nil {
		return
	}
	if err := e.queue.UpdateJob(e.job); err != nil {
		e.log.Warnw("Failed to update job progress",
			"current", current,
			"total", total,
			"error", err,
		)
	}
}

// EmitError logs a classified error without failing the job.
func (e *JobProgressEmitter) EmitError(stage string, err error) {
	ctx := ClassifyError(stage, err)
	e.log.Warnw("Job error",
		"stage", stage,
		"error_code", ctx.Code,
		"error", err,
		"transient", ctx.Transient,
	)
}
