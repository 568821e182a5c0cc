package async

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/breg-harvester/errors"
)

const (
	// DefaultListLimit bounds job listings when the caller gives no limit
	DefaultListLimit = 100
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue is the persistent FIFO of jobs plus a fan-out of job updates.
type Queue struct {
	store       *Store
	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store:       NewStore(db),
		subscribers: make([]chan *Job, 0),
	}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		err = errors.WithDetail(err, fmt.Sprintf("Source: %s", job.Source))
		return err
	}

	q.notifySubscribers(job)
	return nil
}

// Dequeue takes the oldest queued job and marks it as running.
// Returns nil when nothing is queued.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.NextQueued()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued job")
	}
	if job == nil {
		return nil, nil
	}

	job.Start()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as running")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		return nil, err
	}

	q.notifySubscribers(job)
	return job, nil
}

// GetJob retrieves a job by ID. Unknown IDs return a not-found error.
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// UpdateJob persists a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}

	q.notifySubscribers(job)
	return nil
}

// CompleteJob marks a running job as completed, keeping the result the
// handler stored on it.
func (q *Queue) CompleteJob(job *Job) error {
	job.Complete()
	if err := q.UpdateJob(job); err != nil {
		return errors.Wrapf(err, "failed to complete job %s", job.ID)
	}
	return nil
}

// FailJob marks a job as failed with an error
func (q *Queue) FailJob(job *Job, jobErr error) error {
	job.Fail(jobErr)
	if err := q.UpdateJob(job); err != nil {
		err = errors.Wrapf(err, "failed to mark job %s as failed", job.ID)
		return errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
	}
	return nil
}

// CancelJob cancels a queued job. Running and finished jobs are left
// alone and reported as invalid requests.
func (q *Queue) CancelJob(id string, reason string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusQueued {
		return nil, errors.NewInvalidRequestError("job %s is %s, only queued jobs can be cancelled", id, job.Status)
	}

	job.Cancel(reason)
	if err := q.store.UpdateJob(job); err != nil {
		return nil, errors.Wrapf(err, "failed to cancel job %s", id)
	}

	q.notifySubscribers(job)
	return job, nil
}

// DeleteJob removes a finished job
func (q *Queue) DeleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if !job.Status.IsFinal() {
		return errors.NewInvalidRequestError("job %s is %s and cannot be deleted", id, job.Status)
	}
	return q.store.DeleteJob(id)
}

// ListJobs returns the newest jobs, optionally filtered by status
func (q *Queue) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	return q.store.ListJobs(status, limit)
}

// ListActiveJobs returns queued and running jobs
func (q *Queue) ListActiveJobs(limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	return q.store.ListActiveJobs(limit)
}

// FindActiveJobBySourceAndHandler finds a queued or running job by source and handler name.
// Returns nil if there is none.
func (q *Queue) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.FindActiveJobBySourceAndHandler(source, handlerName)
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers close it themselves
// after unsubscribing if needed.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a snapshot of job to all subscribers.
// REQUIRES: q.mu must be held by caller (either Lock or RLock).
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	snapshot := *job
	for _, ch := range q.subscribers {
		select {
		case ch <- &snapshot:
		default:
			// Channel full, skip (non-blocking)
		}
	}
}

// Cleanup removes finished jobs older than olderThan
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
		Cancelled: counts[JobStatusCancelled],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// StatusCounts flattens the stats into a status -> count map.
func (s *QueueStats) StatusCounts() map[string]int {
	return map[string]int{
		string(JobStatusQueued):    s.Queued,
		string(JobStatusRunning):   s.Running,
		string(JobStatusCompleted): s.Completed,
		string(JobStatusFailed):    s.Failed,
		string(JobStatusCancelled): s.Cancelled,
	}
}
