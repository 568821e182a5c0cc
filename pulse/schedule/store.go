package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/breg-harvester/errors"
)

// Timestamps are stored as UTC RFC3339 text so that string comparison in
// SQL orders them chronologically.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Store handles persistence of scheduled jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for the execution store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateJob creates a new scheduled job
func (s *Store) CreateJob(job *Job) error {
	return createJob(s.db, job)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func createJob(db execer, job *Job) error {
	if job.IntervalSeconds <= 0 {
		return errors.NewInvalidRequestError("interval must be positive, got %d", job.IntervalSeconds)
	}
	if job.State == "" {
		job.State = StateActive
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	var lastRunAt interface{}
	if job.LastRunAt != nil {
		lastRunAt = formatTime(*job.LastRunAt)
	}
	var lastExecutionID interface{}
	if job.LastExecutionID != "" {
		lastExecutionID = job.LastExecutionID
	}
	var payload interface{}
	if len(job.Payload) > 0 {
		payload = string(job.Payload)
	}

	query := `
		INSERT INTO scheduled_jobs (
			id, name, handler_name, payload, source,
			interval_seconds, next_run_at, last_run_at,
			last_execution_id, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		job.ID,
		job.Name,
		job.HandlerName,
		payload,
		job.Source,
		job.IntervalSeconds,
		formatTime(job.NextRunAt),
		lastRunAt,
		lastExecutionID,
		job.State,
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create scheduled job")
	}

	return nil
}

// ReplaceJob deletes any job with the same ID and creates job in its place,
// dropping the execution history of the old one.
func (s *Store) ReplaceJob(job *Job) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schedule_executions WHERE scheduled_job_id = ?`, job.ID); err != nil {
		return errors.Wrap(err, "failed to delete executions of replaced job")
	}
	if _, err := tx.Exec(`DELETE FROM scheduled_jobs WHERE id = ?`, job.ID); err != nil {
		return errors.Wrap(err, "failed to delete replaced job")
	}
	if err := createJob(tx, job); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit replaced job")
}

// EnsureJob creates job unless a job with its ID exists, in which case
// the existing job is returned untouched.
func (s *Store) EnsureJob(job *Job) (*Job, bool, error) {
	existing, err := s.GetJob(job.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, false, err
	}
	if err := s.CreateJob(job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

const jobColumns = `id, name, handler_name, payload, source,
		       interval_seconds, next_run_at, last_run_at,
		       last_execution_id, state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var nextRunAt, createdAt, updatedAt string
	var payload, lastRunAt, lastExecutionID sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.HandlerName,
		&payload,
		&job.Source,
		&job.IntervalSeconds,
		&nextRunAt,
		&lastRunAt,
		&lastExecutionID,
		&job.State,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Unparseable timestamps mean data corruption or a schema mismatch
	if job.NextRunAt, err = time.Parse(timeLayout, nextRunAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse next_run_at for job %s", job.ID)
	}
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}
	if lastRunAt.Valid {
		t, err := time.Parse(timeLayout, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for job %s", job.ID)
		}
		job.LastRunAt = &t
	}
	if payload.Valid {
		job.Payload = []byte(payload.String)
	}
	if lastExecutionID.Valid {
		job.LastExecutionID = lastExecutionID.String
	}

	return &job, nil
}

// GetJob retrieves a scheduled job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("scheduled job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get scheduled job")
	}
	return job, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query scheduled jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan scheduled job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating scheduled jobs")
	}
	return jobs, nil
}

// ListJobsDue returns active jobs whose next run is at or before now,
// oldest first. Limited to 100 jobs per batch.
func (s *Store) ListJobsDue(ctx context.Context, now time.Time) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE state = ? AND next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT 100`

	return s.queryJobs(ctx, query, StateActive, formatTime(now))
}

// ListJobs returns every scheduled job ordered by creation
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs ORDER BY created_at ASC, id ASC`
	return s.queryJobs(ctx, query)
}

// GetNextScheduledJob returns the active job that runs soonest, or nil.
func (s *Store) GetNextScheduledJob(ctx context.Context) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE state = ?
		ORDER BY next_run_at ASC
		LIMIT 1`

	jobs, err := s.queryJobs(ctx, query, StateActive)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

func (s *Store) updateOne(jobID, query string, args ...interface{}) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update scheduled job %s", jobID)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("scheduled job %s", jobID)
	}
	return nil
}

// UpdateJobState pauses or resumes a job
func (s *Store) UpdateJobState(jobID string, newState string) error {
	if newState != StateActive && newState != StatePaused {
		return errors.NewInvalidRequestError("invalid schedule state %q", newState)
	}
	return s.updateOne(jobID,
		`UPDATE scheduled_jobs SET state = ?, updated_at = ? WHERE id = ?`,
		newState, formatTime(time.Now()), jobID)
}

// UpdateJobInterval changes the interval of a job without moving its next run
func (s *Store) UpdateJobInterval(jobID string, newInterval int) error {
	if newInterval <= 0 {
		return errors.NewInvalidRequestError("interval must be positive, got %d", newInterval)
	}
	return s.updateOne(jobID,
		`UPDATE scheduled_jobs SET interval_seconds = ?, updated_at = ? WHERE id = ?`,
		newInterval, formatTime(time.Now()), jobID)
}

// UpdateJobAfterExecution records a firing and moves the job to nextRun
func (s *Store) UpdateJobAfterExecution(jobID string, lastRun time.Time, executionID string, nextRun time.Time) error {
	return s.updateOne(jobID, `
		UPDATE scheduled_jobs
		SET last_run_at = ?,
		    last_execution_id = ?,
		    next_run_at = ?,
		    updated_at = ?
		WHERE id = ?`,
		formatTime(lastRun), executionID, formatTime(nextRun), formatTime(time.Now()), jobID)
}

// DeleteJob removes a scheduled job and its execution history
func (s *Store) DeleteJob(jobID string) error {
	if _, err := s.db.Exec(`DELETE FROM schedule_executions WHERE scheduled_job_id = ?`, jobID); err != nil {
		return errors.Wrap(err, "failed to delete executions")
	}
	return s.updateOne(jobID, `DELETE FROM scheduled_jobs WHERE id = ?`, jobID)
}
