package async

import (
	"database/sql"
	"time"

	"github.com/teranos/breg-harvester/errors"
)

// Store handles persistence of async jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new async job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func nullRaw(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO async_jobs (
			id, handler_name, source, description, status,
			progress_current, progress_total,
			payload, result, error, retry_count,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		job.ID,
		job.HandlerName,
		job.Source,
		job.Description,
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		nullRaw(job.Payload),
		nullRaw(job.Result),
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		job.RetryCount,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID. A missing job is a not-found error.
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM async_jobs WHERE id = ?`

	var job Job
	err := scanJob(s.db.QueryRow(query, id), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return &job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE async_jobs
		SET status = ?,
		    description = ?,
		    progress_current = ?,
		    progress_total = ?,
		    payload = ?,
		    result = ?,
		    error = ?,
		    retry_count = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		job.Status,
		job.Description,
		job.Progress.Current,
		job.Progress.Total,
		nullRaw(job.Payload),
		nullRaw(job.Result),
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		job.RetryCount,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job %s", job.ID)
	}

	return nil
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextQueued() (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM async_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	var job Job
	err := scanJob(s.db.QueryRow(query), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next queued job")
	}
	return &job, nil
}

// ListJobs returns the newest jobs, optionally filtered by status
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + jobColumns + ` FROM async_jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC, id DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListActiveJobs returns all jobs that are currently queued or running
func (s *Store) ListActiveJobs(limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM async_jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

// CountByStatus returns the number of jobs in each status.
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM async_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM async_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}

	if rows == 0 {
		return errors.NewNotFoundError("job %s", id)
	}

	return nil
}

// CleanupOldJobs removes finished jobs last updated before now-olderThan.
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM async_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// FindActiveJobBySourceAndHandler finds a queued or running job by source and handler name.
// Returns nil if there is none.
func (s *Store) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM async_jobs
		WHERE source = ?
		  AND handler_name = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`

	var job Job
	err := scanJob(s.db.QueryRow(query, source, handlerName), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No active job found - this is not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job by source and handler")
	}

	return &job, nil
}
