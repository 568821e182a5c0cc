// Package schedule provides recurring job scheduling on top of pulse/async.
package schedule

import (
	"time"
)

// Job represents a recurring scheduled execution job
type Job struct {
	ID              string
	Name            string // Display name, e.g. "breg_harvester.scheduled_harvest"
	HandlerName     string // Async handler to invoke (e.g., "harvest.run")
	Payload         []byte // Default JSON payload for the handler
	Source          string // Source recorded on enqueued jobs, used for deduplication
	IntervalSeconds int
	NextRunAt       time.Time
	LastRunAt       *time.Time
	LastExecutionID string
	State           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// State constants for scheduled jobs
const (
	StateActive = "active" // Job is running on schedule
	StatePaused = "paused" // Job is temporarily paused by user
)

// Interval returns the job interval as a duration.
func (j *Job) Interval() time.Duration {
	return time.Duration(j.IntervalSeconds) * time.Second
}

// NextDate returns the first run time not before now, rolling NextRunAt
// forward by whole intervals when the ticker has fallen behind.
func (j *Job) NextDate(now time.Time) time.Time {
	return NextDate(j.NextRunAt, j.Interval(), now)
}

// NextDate rolls base forward by whole multiples of interval until it is
// at or after now. A base already in the future is returned unchanged.
func NextDate(base time.Time, interval time.Duration, now time.Time) time.Time {
	diff := now.Sub(base)
	if diff <= 0 || interval <= 0 {
		return base
	}
	steps := diff / interval
	if diff%interval != 0 {
		steps++
	}
	return base.Add(steps * interval)
}

// Summary is the public view of a scheduled job.
type Summary struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	IntervalSeconds int        `json:"interval_seconds"`
	NextDate        time.Time  `json:"next_date"`
	State           string     `json:"state"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

// Summarize builds the public view of j as seen at now.
func (j *Job) Summarize(now time.Time) Summary {
	return Summary{
		ID:              j.ID,
		Name:            j.Name,
		IntervalSeconds: j.IntervalSeconds,
		NextDate:        j.NextDate(now),
		State:           j.State,
		LastRunAt:       j.LastRunAt,
	}
}
