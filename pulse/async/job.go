// Package async runs harvests and other long operations as persistent
// jobs: a sqlite-backed queue, a registry of named handlers and a pool
// of workers that execute them.
package async

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/teranos/breg-harvester/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether a job in this status will not run again.
func (s JobStatus) IsFinal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Progress represents job progress information
type Progress struct {
	Current int `json:"current,omitempty"` // Completed operations
	Total   int `json:"total,omitempty"`   // Total operations
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Job is one unit of background work.
//
// The queue is domain-agnostic: HandlerName routes the job to a
// registered JobHandler, which owns the structure of Payload and Result.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`          // "harvest.run"
	Payload     json.RawMessage `json:"payload,omitempty"`     // Handler-specific input
	Source      string          `json:"source"`                // For deduplication and logging
	Description string          `json:"description,omitempty"` // Human-readable summary of the call
	Status      JobStatus       `json:"status"`
	Progress    Progress        `json:"progress,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"` // Handler output, set on completion
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJobWithPayload creates a queued job with a fresh ULID.
func NewJobWithPayload(handlerName, source, description string, payload json.RawMessage) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}

	now := time.Now()
	return &Job{
		ID:          ulid.Make().String(),
		HandlerName: handlerName,
		Payload:     payload,
		Source:      source,
		Description: description,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Requeue puts a job back in the queue, keeping its payload and progress.
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.StartedAt = nil
	j.Error = ""
	j.UpdatedAt = time.Now()
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// UpdateProgress updates the job's progress
func (j *Job) UpdateProgress(current, total int) {
	j.Progress.Current = current
	j.Progress.Total = total
	j.UpdatedAt = time.Now()
}

// SetResult stores v as the job's JSON result.
func (j *Job) SetResult(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode result of job %s", j.ID)
	}
	j.Result = data
	j.UpdatedAt = time.Now()
	return nil
}
