package schedule

import "time"

// Execution is one firing of a scheduled job: the attempt to enqueue its
// async job, and the link to that job when it was created.
type Execution struct {
	ID             string  `json:"id"`                     // UUID
	ScheduledJobID string  `json:"scheduled_job_id"`       // FK to Job
	AsyncJobID     *string `json:"async_job_id,omitempty"` // Enqueued (or deduplicated) async job

	Status string `json:"status"` // "running", "completed", "skipped", "failed"

	StartedAt   string  `json:"started_at"`             // RFC3339 timestamp
	CompletedAt *string `json:"completed_at,omitempty"` // RFC3339 timestamp (null if running)
	DurationMs  *int    `json:"duration_ms,omitempty"`

	ResultSummary *string `json:"result_summary,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Execution status constants for type safety
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusSkipped   = "skipped"
	ExecutionStatusFailed    = "failed"
)

// finish stamps the end of the execution.
func (e *Execution) finish(status string, at time.Time, took time.Duration) {
	ts := formatTime(at)
	ms := int(took.Milliseconds())
	e.Status = status
	e.CompletedAt = &ts
	e.DurationMs = &ms
	e.UpdatedAt = ts
}

func ptr[T any](v T) *T { return &v }
